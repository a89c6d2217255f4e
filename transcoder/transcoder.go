// Package transcoder re-encodes single page rasters into a lossy codec.
package transcoder

import (
	"bytes"
	"fmt"
	"image"

	"tiffconv/contracts"
	"tiffconv/document"
)

const stageTranscoding = "transcoding"

type Transcoder struct {
	enc Encoder
}

// New returns a transcoder writing through enc, or JPEGEncoder when enc is nil.
func New(enc Encoder) *Transcoder {
	if enc == nil {
		enc = JPEGEncoder{}
	}
	return &Transcoder{enc: enc}
}

// Encoder names the codec pages are encoded with.
func (t *Transcoder) Encoder() Encoder { return t.enc }

// Transcode takes the page's raster and encodes it at quality. The page is
// consumed whether or not encoding succeeds.
func (t *Transcoder) Transcode(page *document.Page, quality int) (contracts.EncodedPage, error) {
	img, err := page.Take()
	if err != nil {
		return contracts.EncodedPage{}, contracts.NewPageError(contracts.KindFormat, stageTranscoding, page.Index,
			fmt.Errorf("decode page: %w", err))
	}
	out, err := t.EncodeImage(img, quality)
	if err != nil {
		return contracts.EncodedPage{}, contracts.NewPageError(contracts.KindFormat, stageTranscoding, page.Index, err)
	}
	out.PageIndex = page.Index
	out.DPIX, out.DPIY = page.DPIX, page.DPIY
	return out, nil
}

// EncodeImage normalizes and encodes a raster that is not attached to a page.
func (t *Transcoder) EncodeImage(img image.Image, quality int) (contracts.EncodedPage, error) {
	if quality < contracts.MinQuality || quality > contracts.MaxQuality {
		return contracts.EncodedPage{}, fmt.Errorf("quality %d out of range", quality)
	}
	norm, err := Normalize(img)
	if err != nil {
		return contracts.EncodedPage{}, fmt.Errorf("normalize: %w", err)
	}
	b := norm.Bounds()
	_, gray := norm.(*image.Gray)
	channels := int64(3)
	if gray {
		channels = 1
	}

	var buf bytes.Buffer
	if err := t.enc.Encode(&buf, norm, quality); err != nil {
		return contracts.EncodedPage{}, fmt.Errorf("%s encode: %w", t.enc.Name(), err)
	}
	if buf.Len() == 0 {
		return contracts.EncodedPage{}, fmt.Errorf("%s encoder produced no bytes", t.enc.Name())
	}
	return contracts.EncodedPage{
		ImgBuffer:    buf.Bytes(),
		PixelWidth:   b.Dx(),
		PixelHeight:  b.Dy(),
		Gray:         gray,
		Uncompressed: int64(b.Dx()) * int64(b.Dy()) * channels,
	}, nil
}
