package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"tiffconv/document"
	"tiffconv/utils"
)

// CollectionDecoder treats a TIFF as a loose collection of pages: each IFD
// is decoded on its own, so page dimensions may differ, and new-style JPEG
// compressed pages are decoded strip by strip.
type CollectionDecoder struct {
	DefaultDPI float64
}

func NewCollectionDecoder(defaultDPI float64) *CollectionDecoder {
	return &CollectionDecoder{DefaultDPI: defaultDPI}
}

func (d *CollectionDecoder) Name() string { return "collection" }

func (d *CollectionDecoder) Decode(data []byte) (*document.Source, error) {
	if mt := mimetype.Detect(data); !mt.Is("image/tiff") {
		return nil, decodeErr(d.Name(), KindMalformed, -1, fmt.Errorf("input is %s, not a TIFF container", mt.String()))
	}
	infos, err := readPages(data)
	if err != nil {
		return nil, decodeErr(d.Name(), KindMalformed, -1, err)
	}
	fillResolution(data, infos, utils.ChooseDPI(d.DefaultDPI))

	src := &document.Source{Decoder: document.Secondary}
	for _, p := range infos {
		switch {
		case p.compression == compressionJPEG:
			if p.tiled || len(p.stripOffsets) == 0 || len(p.stripOffsets) != len(p.stripByteCounts) {
				return nil, decodeErr(d.Name(), KindScheme, p.index, errors.New("JPEG page without a usable strip layout"))
			}
			src.Pages = append(src.Pages, jpegPage(data, p))
		case standardSchemes[p.compression]:
			if _, err := tiff.DecodeConfig(newPageReader(data, p.offset)); err != nil {
				return nil, decodeErr(d.Name(), classify(err), p.index, err)
			}
			src.Pages = append(src.Pages, standardPage(data, p, document.Secondary))
		default:
			return nil, decodeErr(d.Name(), KindScheme, p.index, fmt.Errorf("compression scheme %d not supported", p.compression))
		}
	}
	return src, nil
}

func jpegPage(data []byte, p pageInfo) *document.Page {
	page := document.NewPage(p.index, p.width, p.height, document.Secondary, func() (image.Image, error) {
		return decodeJPEGStrips(data, p)
	})
	page.DPIX, page.DPIY = p.dpiX, p.dpiY
	page.Compression = p.compression
	return page
}

func decodeJPEGStrips(data []byte, p pageInfo) (image.Image, error) {
	var canvas draw.Image
	for i, off := range p.stripOffsets {
		end := int64(off) + int64(p.stripByteCounts[i])
		if end > int64(len(data)) {
			return nil, fmt.Errorf("strip %d runs past end of input", i)
		}
		stream := spliceTables(p.jpegTables, data[off:end])
		img, err := jpeg.Decode(bytes.NewReader(stream))
		if err != nil {
			return nil, fmt.Errorf("strip %d: %w", i, err)
		}
		if len(p.stripOffsets) == 1 {
			return img, nil
		}
		if canvas == nil {
			rect := image.Rect(0, 0, p.width, p.height)
			if _, gray := img.(*image.Gray); gray {
				canvas = image.NewGray(rect)
			} else {
				canvas = image.NewRGBA(rect)
			}
		}
		top := i * p.rowsPerStrip
		dst := image.Rect(0, top, p.width, min(top+p.rowsPerStrip, p.height))
		draw.Draw(canvas, dst, img, img.Bounds().Min, draw.Src)
	}
	if canvas == nil {
		return nil, errors.New("page has no strips")
	}
	return canvas, nil
}

// spliceTables merges an abbreviated JPEGTables stream with a strip:
// tables without EOI followed by the strip without SOI.
func spliceTables(tables, strip []byte) []byte {
	if len(tables) < 4 || len(strip) < 2 {
		return strip
	}
	out := make([]byte, 0, len(tables)+len(strip))
	out = append(out, tables[:len(tables)-2]...)
	return append(out, strip[2:]...)
}
