package transcoder

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Normalize converts img into a layout every Encoder accepts: *image.Gray for
// grayscale sources, an opaque *image.RGBA otherwise. Transparent pixels are
// composited onto white. Rasters that already fit are returned unchanged.
func Normalize(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errors.New("page has no raster")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("page raster has empty bounds %v", b)
	}

	switch m := img.(type) {
	case *image.Gray:
		return m, nil
	case *image.Gray16:
		return toGray(m), nil
	case *image.RGBA:
		if m.Opaque() {
			return m, nil
		}
		return flatten(m), nil
	case *image.Paletted:
		if err := checkPalette(m); err != nil {
			return nil, err
		}
		return flatten(m), nil
	default:
		return flatten(img), nil
	}
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// checkPalette rejects indexed frames whose pixels point outside the palette.
func checkPalette(m *image.Paletted) error {
	n := len(m.Palette)
	if n == 0 {
		return errors.New("indexed raster has an empty palette")
	}
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)]
		for _, idx := range row {
			if int(idx) >= n {
				return fmt.Errorf("pixel index %d outside palette of %d colors", idx, n)
			}
		}
	}
	return nil
}

// RasterSize is the byte size of img as 8-bit samples: one channel for gray
// rasters, three otherwise.
func RasterSize(img image.Image) int64 {
	b := img.Bounds()
	n := int64(b.Dx()) * int64(b.Dy())
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return n
	}
	return n * 3
}
