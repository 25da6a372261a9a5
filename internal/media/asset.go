// Package media models meme assets: classification, measurement and preparation for the encoder.
package media

import (
	"path/filepath"
	"strings"
)

type Class string

const (
	ClassImage    Class = "image"
	ClassAnimated Class = "animated"
	ClassVideo    Class = "video"
)

// Asset is a meme file available on local disk.
type Asset struct {
	Path  string `yaml:"path"`
	Query string `yaml:"query,omitempty"`
	Ext   string `yaml:"ext"`
	Mime  string `yaml:"mime"`
	Class Class  `yaml:"class"`

	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`

	// DurationHint is the natural playback length in seconds; 0 for stills.
	DurationHint float64 `yaml:"duration_hint,omitempty"`
}

func (a *Asset) Measured() bool {
	return a.Width > 0 && a.Height > 0
}

// Still reports whether the asset is held as a single image rather than spliced as a clip.
func (a *Asset) Still() bool {
	return a.Class == ClassImage
}

type kind struct {
	mime  string
	class Class
}

var kinds = map[string]kind{
	".png":  {"image/png", ClassImage},
	".jpg":  {"image/jpeg", ClassImage},
	".jpeg": {"image/jpeg", ClassImage},
	".webp": {"image/webp", ClassImage},
	".bmp":  {"image/bmp", ClassImage},
	".gif":  {"image/gif", ClassAnimated},
	".mp4":  {"video/mp4", ClassVideo},
	".mov":  {"video/quicktime", ClassVideo},
	".mkv":  {"video/x-matroska", ClassVideo},
	".webm": {"video/webm", ClassVideo},
}

// Classify maps a file extension to mime type and class. ok is false for unsupported files.
func Classify(path string) (ext, mime string, class Class, ok bool) {
	ext = strings.ToLower(filepath.Ext(path))
	k, ok := kinds[ext]
	if !ok {
		return ext, "", "", false
	}
	return ext, k.mime, k.class, true
}

// Supported reports whether a file name has a meme extension.
func Supported(path string) bool {
	_, _, _, ok := Classify(path)
	return ok
}
