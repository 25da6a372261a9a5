package media

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Info is what a prober learns about a clip.
type Info struct {
	Width    int
	Height   int
	Duration float64
}

type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FFProbe reads stream metadata with ffprobe.
type FFProbe struct{}

func (FFProbe) Probe(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return Info{}, errors.Wrapf(err, "error probing %s", path)
	}
	return parseProbe(out)
}

type probeData struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		Duration   string `json:"duration"`
		NbFrames   string `json:"nb_frames"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(raw string) (Info, error) {
	var data probeData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return Info{}, errors.WithStack(err)
	}

	for _, s := range data.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := Info{Width: s.Width, Height: s.Height}

		// Stream duration first, then container duration, then frames / rate.
		info.Duration = parseSeconds(s.Duration)
		if info.Duration == 0 {
			info.Duration = parseSeconds(data.Format.Duration)
		}
		if info.Duration == 0 {
			frames := parseSeconds(s.NbFrames)
			if rate := parseRate(s.RFrameRate); rate > 0 {
				info.Duration = frames / rate
			}
		}
		return info, nil
	}
	return Info{}, errors.New("no video stream found")
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseSeconds(s)
	}
	n, d := parseSeconds(num), parseSeconds(den)
	if d == 0 {
		return 0
	}
	return n / d
}
