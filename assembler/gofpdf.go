package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/phpdave11/gofpdf"

	"tiffconv/contracts"
	"tiffconv/pdf_writer"
	"tiffconv/transcoder"
)

// gofpdfDocument keeps every page in memory until Finish.
type gofpdfDocument struct {
	pdf   *gofpdf.Fpdf
	pages int
}

func newGofpdfDocument() (Document, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	return &gofpdfDocument{pdf: pdf}, nil
}

func (d *gofpdfDocument) Pages() int { return d.pages }

func (d *gofpdfDocument) AddEncoded(page contracts.EncodedPage) (int, error) {
	if len(page.ImgBuffer) == 0 {
		return 0, pageErr(page.PageIndex, errors.New("encoded page is empty"))
	}
	size := pdf_writer.SizeFor(page.PixelWidth, page.PixelHeight, page.DPIX, page.DPIY)
	if err := d.place(page.ImgBuffer, "JPG", size); err != nil {
		return 0, pageErr(page.PageIndex, err)
	}
	return len(page.ImgBuffer), nil
}

func (d *gofpdfDocument) AddRaster(index int, img image.Image, dpiX, dpiY float64) (int, error) {
	norm, err := transcoder.Normalize(img)
	if err != nil {
		return 0, contracts.NewPageError(contracts.KindFormat, stageAssembling, index, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, norm); err != nil {
		return 0, pageErr(index, fmt.Errorf("png encode: %w", err))
	}
	b := norm.Bounds()
	if err := d.place(buf.Bytes(), "PNG", pdf_writer.SizeFor(b.Dx(), b.Dy(), dpiX, dpiY)); err != nil {
		return 0, pageErr(index, err)
	}
	return buf.Len(), nil
}

func (d *gofpdfDocument) place(data []byte, imageType string, size pdf_writer.PageSize) error {
	if d.pdf.Err() {
		return d.pdf.Error()
	}
	name := fmt.Sprintf("img_%d", d.pages)
	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: false}

	orientation := "P"
	d.pdf.AddPageFormat(orientation, gofpdf.SizeType{Wd: size.Width, Ht: size.Height})
	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	d.pdf.ImageOptions(name, 0, 0, size.Width, size.Height, false, opts, 0, "")
	if d.pdf.Err() {
		return d.pdf.Error()
	}
	d.pages++
	return nil
}

func (d *gofpdfDocument) Finish() ([]byte, error) {
	if d.pages == 0 {
		return nil, contracts.NewError(contracts.KindAssembly, stageAssembling, errors.New("document has no pages"))
	}
	var out bytes.Buffer
	if err := d.pdf.Output(&out); err != nil {
		return nil, contracts.NewError(contracts.KindAssembly, stageAssembling, err)
	}
	return out.Bytes(), nil
}
