package loader

import (
	"fmt"
	"image"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/tiff"

	"tiffconv/document"
	"tiffconv/utils"
)

// StandardDecoder is the fast path built on golang.org/x/image/tiff. It
// handles documents whose pages share one geometry and use the compression
// schemes x/image/tiff implements.
type StandardDecoder struct {
	DefaultDPI float64
}

func NewStandardDecoder(defaultDPI float64) *StandardDecoder {
	return &StandardDecoder{DefaultDPI: defaultDPI}
}

func (d *StandardDecoder) Name() string { return "standard" }

func (d *StandardDecoder) Decode(data []byte) (*document.Source, error) {
	if mt := mimetype.Detect(data); !mt.Is("image/tiff") {
		return nil, decodeErr(d.Name(), KindMalformed, -1, fmt.Errorf("input is %s, not a TIFF container", mt.String()))
	}
	infos, err := readPages(data)
	if err != nil {
		return nil, decodeErr(d.Name(), KindMalformed, -1, err)
	}

	first := infos[0]
	for _, p := range infos[1:] {
		if p.width != first.width || p.height != first.height {
			return nil, decodeErr(d.Name(), KindGeometry, p.index,
				fmt.Errorf("pages of different sizes: page 0 is %dx%d, page %d is %dx%d",
					first.width, first.height, p.index, p.width, p.height))
		}
	}
	for _, p := range infos {
		if !standardSchemes[p.compression] {
			return nil, decodeErr(d.Name(), KindScheme, p.index, fmt.Errorf("compression scheme %d not supported", p.compression))
		}
		if _, err := tiff.DecodeConfig(newPageReader(data, p.offset)); err != nil {
			return nil, decodeErr(d.Name(), classify(err), p.index, err)
		}
	}

	fillResolution(data, infos, utils.ChooseDPI(d.DefaultDPI))
	src := &document.Source{Decoder: document.Primary}
	for _, p := range infos {
		src.Pages = append(src.Pages, standardPage(data, p, document.Primary))
	}
	return src, nil
}

func standardPage(data []byte, p pageInfo, kind document.DecoderKind) *document.Page {
	offset := p.offset
	page := document.NewPage(p.index, p.width, p.height, kind, func() (image.Image, error) {
		return tiff.Decode(newPageReader(data, offset))
	})
	page.DPIX, page.DPIY = p.dpiX, p.dpiY
	page.Compression = p.compression
	return page
}
