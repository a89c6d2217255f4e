//go:build imagick

package loader

import (
	"fmt"
	"image"
	"sync"

	"gopkg.in/gographics/imagick.v2/imagick"

	"tiffconv/document"
	"tiffconv/utils"
)

func init() {
	RegisterSecondary("magick", func(defaultDPI float64) Decoder { return &MagickDecoder{DefaultDPI: defaultDPI} })
}

var magickInit sync.Once

// MagickDecoder reads every frame through ImageMagick. Unlike the pure Go
// decoders it materializes all pages up front.
type MagickDecoder struct {
	DefaultDPI float64
}

func (d *MagickDecoder) Name() string { return "magick" }

func (d *MagickDecoder) Decode(data []byte) (*document.Source, error) {
	magickInit.Do(imagick.Initialize)

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(data); err != nil {
		return nil, decodeErr(d.Name(), KindMalformed, -1, err)
	}
	n := int(mw.GetNumberImages())
	if n == 0 {
		return nil, decodeErr(d.Name(), KindMalformed, -1, fmt.Errorf("no frames in input"))
	}

	src := &document.Source{Decoder: document.Secondary}
	for i := 0; i < n; i++ {
		mw.SetIteratorIndex(i)
		w, h := mw.GetImageWidth(), mw.GetImageHeight()
		px, err := mw.ExportImagePixels(0, 0, w, h, "RGBA", imagick.PIXEL_CHAR)
		if err != nil {
			return nil, decodeErr(d.Name(), KindMalformed, i, err)
		}
		pix, ok := px.([]byte)
		if !ok || len(pix) != int(w)*int(h)*4 {
			return nil, decodeErr(d.Name(), KindMalformed, i, fmt.Errorf("unexpected pixel export for %dx%d frame", w, h))
		}
		img := &image.NRGBA{Pix: pix, Stride: 4 * int(w), Rect: image.Rect(0, 0, int(w), int(h))}
		page := document.NewDecodedPage(i, img, document.Secondary)
		x, y, err := mw.GetImageResolution()
		if err != nil {
			x, y = 0, 0
		}
		page.DPIX = utils.ChooseDPI(x, d.DefaultDPI)
		page.DPIY = utils.ChooseDPI(y, d.DefaultDPI)
		src.Pages = append(src.Pages, page)
	}
	return src, nil
}
