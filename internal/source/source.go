package source

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Source yields still frames from a media file (a meme image, GIF or rendered chat frame).
type Source interface {
	FrameCount() int
	Dimensions() (width, height int, err error)
	Frame(index int) (image.Image, error)
	Close() error
}

// fitzExts are formats MuPDF opens as single-page image documents.
var fitzExts = map[string]bool{
	".gif":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// Open picks the MuPDF-backed source where MuPDF understands the format and the Go image
// decoders otherwise (webp).
func Open(path string) (Source, error) {
	if fitzExts[strings.ToLower(filepath.Ext(path))] {
		if src, err := NewFitzSource(path); err == nil {
			return src, nil
		}
	}
	return NewImageSource(path)
}

type FitzSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzSource(path string) (*FitzSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzSource{doc: doc, path: path}, nil
}

func (f *FitzSource) FrameCount() int {
	return f.doc.NumPage()
}

func (f *FitzSource) Dimensions() (int, int, error) {
	rect, err := f.doc.Bound(0)
	if err != nil {
		return 0, 0, err
	}
	return rect.Dx(), rect.Dy(), nil
}

// Frame rasterizes at 72 DPI so image documents keep their pixel size.
func (f *FitzSource) Frame(index int) (image.Image, error) {
	return f.doc.ImageDPI(index, 72)
}

func (f *FitzSource) Close() error {
	return f.doc.Close()
}
