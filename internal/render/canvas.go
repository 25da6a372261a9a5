package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/chatreel/internal/media"
	"github.com/ivlev/chatreel/internal/participant"
	"github.com/ivlev/chatreel/internal/source"
	"github.com/ivlev/chatreel/internal/system"
)

var (
	colBackground = color.RGBA{0x12, 0x14, 0x18, 0xff}
	colHeader     = color.RGBA{0x1f, 0x23, 0x2b, 0xff}
	colOwnBubble  = color.RGBA{0x2b, 0x52, 0x78, 0xff}
	colPeerBubble = color.RGBA{0x26, 0x2b, 0x33, 0xff}
	colText       = color.RGBA{0xee, 0xee, 0xee, 0xff}
	colMuted      = color.RGBA{0x8a, 0x90, 0x99, 0xff}
	colBar        = color.RGBA{0x1a, 0x1d, 0x22, 0xff}
)

const (
	charW   = 7
	lineH   = 16
	pad     = 10
	headerH = 44
	barH    = 56
	gap     = 8
)

// CanvasRenderer draws chat frames with the built-in bitmap font and writes numbered PNGs.
type CanvasRenderer struct {
	dir      string
	width    int
	height   int
	registry *participant.Registry
	pool     *system.ImagePool

	mu     sync.Mutex
	n      int
	thumbs map[string]image.Image
	closed bool
}

func NewCanvasRenderer(dir string, width, height int, registry *participant.Registry) (*CanvasRenderer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create frame dir %s", dir)
	}
	return &CanvasRenderer{
		dir:      dir,
		width:    width,
		height:   height,
		registry: registry,
		pool:     system.NewImagePool(),
		thumbs:   make(map[string]image.Image),
	}, nil
}

func (r *CanvasRenderer) Render(ctx context.Context, state FrameState) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", errors.New("renderer is closed")
	}
	r.n++
	path := filepath.Join(r.dir, fmt.Sprintf("frame_%05d.png", r.n))
	r.mu.Unlock()

	img := r.pool.Get(r.width, r.height)
	defer r.pool.Put(img)

	r.paint(img, state)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return "", errors.Wrapf(err, "failed to encode %s", path)
	}
	return path, nil
}

func (r *CanvasRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.thumbs = nil
	return nil
}

func (r *CanvasRenderer) paint(img *image.RGBA, state FrameState) {
	fill(img, img.Bounds(), colBackground)

	fill(img, image.Rect(0, 0, r.width, headerH), colHeader)
	drawText(img, pad, headerH/2+4, state.Title, colText)

	bottom := r.height - barH - gap
	if state.Indicator != "" {
		label := state.Indicator + " is typing..."
		h := lineH + 2*pad
		box := image.Rect(pad, bottom-h, pad+len(label)*charW+2*pad, bottom)
		fill(img, box, colPeerBubble)
		drawText(img, box.Min.X+pad, box.Min.Y+pad+11, label, colMuted)
		bottom = box.Min.Y - gap
	}

	// Newest message sits lowest; stop when the header is reached.
	for i := len(state.Messages) - 1; i >= 0 && bottom > headerH; i-- {
		bottom = r.paintBubble(img, state.Messages[i], bottom) - gap
	}

	// The header and bar are repainted over any overflow.
	fill(img, image.Rect(0, 0, r.width, headerH), colHeader)
	drawText(img, pad, headerH/2+4, state.Title, colText)
	r.paintBar(img, state.Bar)
}

func (r *CanvasRenderer) paintBubble(img *image.RGBA, b Bubble, bottom int) int {
	maxW := r.width * 6 / 10
	lines := wrap(b.Text, (maxW-2*pad)/charW)

	var thumb image.Image
	var thumbRect image.Rectangle
	if b.Media != nil {
		if t := r.thumbnail(b.Media); t != nil {
			thumb = t
			thumbRect = media.Fit(t.Bounds(), maxW-2*pad, r.height*4/10)
		}
	}

	textW := 0
	for _, l := range lines {
		textW = max(textW, len([]rune(l))*charW)
	}
	nameH := 0
	if !b.Primary {
		nameH = lineH
		textW = max(textW, len([]rune(b.Speaker))*charW)
	}
	w := max(textW, thumbRect.Dx()) + 2*pad
	h := nameH + len(lines)*lineH + thumbRect.Dy() + 2*pad
	if thumb == nil && b.Media != nil {
		h += lineH
		w = max(w, 7*charW+2*pad)
	}

	x := pad
	bg := colPeerBubble
	if b.Primary {
		x = r.width - pad - w
		bg = colOwnBubble
	}
	box := image.Rect(x, bottom-h, x+w, bottom)
	fill(img, box, bg)

	y := box.Min.Y + pad
	if !b.Primary {
		drawText(img, x+pad, y+11, b.Speaker, r.registry.Color(b.Speaker))
		y += lineH
	}
	if thumb != nil {
		dst := thumbRect.Add(image.Pt(x+pad-thumbRect.Min.X, y-thumbRect.Min.Y))
		draw.CatmullRom.Scale(img, dst, thumb, thumb.Bounds(), draw.Over, nil)
		y += thumbRect.Dy()
	} else if b.Media != nil {
		drawText(img, x+pad, y+11, "[meme]", colMuted)
		y += lineH
	}
	for _, l := range lines {
		drawText(img, x+pad, y+11, l, colText)
		y += lineH
	}
	return box.Min.Y
}

func (r *CanvasRenderer) paintBar(img *image.RGBA, bar *TypingBar) {
	area := image.Rect(0, r.height-barH, r.width, r.height)
	fill(img, area, colBar)
	field := image.Rect(pad, area.Min.Y+pad, r.width-pad, r.height-pad)
	fill(img, field, colPeerBubble)

	text, col := "Message", colMuted
	if bar != nil && bar.Text != "" {
		text, col = bar.Text, colText
		// Keep the tail visible when the text overflows the field.
		if maxChars := (field.Dx() - 2*pad) / charW; len([]rune(text)) > maxChars {
			runes := []rune(text)
			text = string(runes[len(runes)-maxChars:])
		}
	}
	drawText(img, field.Min.X+pad, field.Min.Y+field.Dy()/2+4, text, col)
}

func (r *CanvasRenderer) thumbnail(a *media.Asset) image.Image {
	r.mu.Lock()
	t, ok := r.thumbs[a.Path]
	r.mu.Unlock()
	if ok {
		return t
	}

	src, err := source.Open(a.Path)
	if err == nil {
		t, err = src.Frame(0)
		src.Close()
	}
	if err != nil {
		t = nil
	}

	r.mu.Lock()
	if r.thumbs != nil {
		r.thumbs[a.Path] = t
	}
	r.mu.Unlock()
	return t
}

func fill(img *image.RGBA, rect image.Rectangle, c color.Color) {
	draw.Draw(img, rect, &image.Uniform{c}, image.Point{}, draw.Src)
}

func drawText(img draw.Image, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrap breaks s into lines of at most width runes, splitting on spaces where possible.
func wrap(s string, width int) []string {
	if s == "" {
		return nil
	}
	if width < 1 {
		width = 1
	}
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > width {
			if len(cur) > 0 {
				lines = append(lines, string(cur))
				cur = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(cur) == 0:
			cur = w
		case len(cur)+1+len(w) <= width:
			cur = append(append(cur, ' '), w...)
		default:
			lines = append(lines, string(cur))
			cur = w
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
