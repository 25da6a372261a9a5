package render

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

var colMoral = color.RGBA{0xe5, 0x2b, 0x2b, 0xff}

// ClosingCard draws the summary card: black background, red centered text and an optional QR
// code for link in the bottom right corner.
func ClosingCard(path, text, link string, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, img.Bounds(), color.Black)

	lines := wrap(text, max((width*7/10)/charW, 1))
	y := height/2 - len(lines)*lineH/2
	for _, l := range lines {
		x := (width - len([]rune(l))*charW) / 2
		drawText(img, x, y+11, l, colMoral)
		y += lineH
	}

	if link != "" {
		size := min(width, height) / 4
		q, err := qrcode.New(link, qrcode.Medium)
		if err != nil {
			return errors.Wrap(err, "failed to encode closing link")
		}
		code := q.Image(size)
		at := image.Pt(width-size-pad, height-size-pad)
		draw.Draw(img, image.Rectangle{Min: at, Max: at.Add(image.Pt(size, size))}, code, code.Bounds().Min, draw.Src)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return nil
}
