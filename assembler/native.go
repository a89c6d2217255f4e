package assembler

import (
	"bytes"
	"errors"
	"image"

	"tiffconv/contracts"
	"tiffconv/pdf_writer"
	"tiffconv/transcoder"
)

type nativeDocument struct {
	buf bytes.Buffer
	pw  *pdf_writer.PDFWriter
}

func newNativeDocument() (Document, error) {
	d := &nativeDocument{}
	pw, err := pdf_writer.NewPDFWriter(&d.buf)
	if err != nil {
		return nil, err
	}
	d.pw = pw
	return d, nil
}

func (d *nativeDocument) Pages() int { return d.pw.PageCount() }

func (d *nativeDocument) AddEncoded(page contracts.EncodedPage) (int, error) {
	if len(page.ImgBuffer) == 0 {
		return 0, pageErr(page.PageIndex, errors.New("encoded page is empty"))
	}
	if err := d.pw.WriteImage(&page); err != nil {
		return 0, pageErr(page.PageIndex, err)
	}
	return len(page.ImgBuffer), nil
}

// AddRaster embeds img losslessly. Bilevel pages are stored at one bit per
// pixel.
func (d *nativeDocument) AddRaster(index int, img image.Image, dpiX, dpiY float64) (int, error) {
	norm, err := transcoder.Normalize(img)
	if err != nil {
		return 0, contracts.NewPageError(contracts.KindFormat, stageAssembling, index, err)
	}
	b := norm.Bounds()
	w, h := b.Dx(), b.Dy()
	size := pdf_writer.SizeFor(w, h, dpiX, dpiY)

	var n int
	switch m := norm.(type) {
	case *image.Gray:
		samples := graySamples(m)
		if isBilevel(samples) {
			n, err = d.pw.WriteFlateImage(w, h, pdf_writer.DeviceGray, 1, pdf_writer.PackGray1Bit(samples, w, h), size)
		} else {
			n, err = d.pw.WriteFlateImage(w, h, pdf_writer.DeviceGray, 8, samples, size)
		}
	case *image.RGBA:
		n, err = d.pw.WriteFlateImage(w, h, pdf_writer.DeviceRGB, 8, rgbSamples(m), size)
	default:
		err = errors.New("unexpected raster layout after normalization")
	}
	if err != nil {
		return 0, pageErr(index, err)
	}
	return n, nil
}

func (d *nativeDocument) Finish() ([]byte, error) {
	if err := d.pw.Finish(); err != nil {
		return nil, contracts.NewError(contracts.KindAssembly, stageAssembling, err)
	}
	return d.buf.Bytes(), nil
}

func graySamples(m *image.Gray) []byte {
	b := m.Bounds()
	w := b.Dx()
	if m.Stride == w && b.Min == (image.Point{}) {
		return m.Pix[:w*b.Dy()]
	}
	out := make([]byte, 0, w*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := m.PixOffset(b.Min.X, y)
		out = append(out, m.Pix[i:i+w]...)
	}
	return out
}

func rgbSamples(m *image.RGBA) []byte {
	b := m.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := m.PixOffset(b.Min.X, y)
		row := m.Pix[i : i+4*b.Dx()]
		for x := 0; x < len(row); x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}

func isBilevel(samples []byte) bool {
	for _, v := range samples {
		if v != 0 && v != 255 {
			return false
		}
	}
	return true
}
