package participant

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"image/color"
	"math"
	"strings"
)

// Registry answers "who is the primary user" for one run. Names are compared case-insensitively
// after trimming.
type Registry struct {
	primary string
	known   map[string]string
}

func NewRegistry(primary string, others ...string) *Registry {
	r := &Registry{
		primary: normalize(primary),
		known:   make(map[string]string),
	}
	r.Add(primary)
	for _, name := range others {
		r.Add(name)
	}
	return r
}

// Add records a participant display name. The first spelling seen wins.
func (r *Registry) Add(name string) {
	key := normalize(name)
	if key == "" {
		return
	}
	if _, ok := r.known[key]; !ok {
		r.known[key] = strings.TrimSpace(name)
	}
}

func (r *Registry) IsPrimary(name string) bool {
	return r.primary != "" && normalize(name) == r.primary
}

func (r *Registry) Primary() string {
	return r.known[r.primary]
}

func (r *Registry) Count() int {
	return len(r.known)
}

// Color returns a stable, readable color for a speaker.
func (r *Registry) Color(name string) color.RGBA {
	return NameColor(name)
}

// NameColor spreads hues by hashing the normalized name (golden-angle step, fixed S/L).
func NameColor(name string) color.RGBA {
	sum := md5.Sum([]byte(normalize(name)))
	n := binary.BigEndian.Uint32(sum[:4])
	hue := float64((uint64(n) * 137) % 360)
	return hslToRGB(hue/360, 0.7, 0.55)
}

func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func hslToRGB(h, s, l float64) color.RGBA {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) uint8 {
		t = t - math.Floor(t)
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return color.RGBA{R: conv(h + 1.0/3), G: conv(h), B: conv(h - 1.0/3), A: 255}
}
