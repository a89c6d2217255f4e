// Package pdf_writer streams page-per-image PDF documents. Image and page
// objects are written as each page arrives; only object offsets and page ids
// are held until Finish writes the page tree and cross-reference table.
package pdf_writer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"tiffconv/contracts"
	"tiffconv/utils"
)

var ErrFinished = errors.New("pdf writer already finished")

// PageSize is a page's MediaBox in points.
type PageSize struct {
	Width  float64
	Height float64
}

// SizeFor converts pixel dimensions at the given resolution to points.
func SizeFor(width, height int, dpiX, dpiY float64) PageSize {
	return PageSize{
		Width:  utils.PixelsToPoints(width, dpiX),
		Height: utils.PixelsToPoints(height, dpiY),
	}
}

type ColorSpace string

const (
	DeviceGray ColorSpace = "DeviceGray"
	DeviceRGB  ColorSpace = "DeviceRGB"
)

type PDFWriter struct {
	// objects[i] is the offset of object i+1
	objects []int64
	bw      *bufio.Writer
	cw      *countingWriter
	objNum  int

	pagesObjID int
	pageIDs    []int
	finished   bool
}

type countingWriter struct {
	w      io.Writer
	offset int64
}

func NewPDFWriter(dst io.Writer) (*PDFWriter, error) {
	cw := &countingWriter{
		w: dst,
	}
	pw := &PDFWriter{
		cw: cw,
		bw: bufio.NewWriterSize(cw, 1024*1024),
	}

	if _, err := pw.bw.WriteString("%PDF-1.7\n%\xFF\xFF\xFF\xFF\n"); err != nil {
		return nil, fmt.Errorf("error writing PDF header: %w", err)
	}
	// the page tree is written last but every page refers to it
	pw.pagesObjID = pw.reserveObject()
	return pw, nil
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	cw.offset += int64(n)
	return n, err
}

func (pw *PDFWriter) getOffset() int64 {
	return pw.cw.offset + int64(pw.bw.Buffered())
}

func (pw *PDFWriter) reserveObject() int {
	pw.objNum++
	pw.objects = append(pw.objects, 0)
	return pw.objNum
}

func (pw *PDFWriter) beginObject(id int) {
	pw.objects[id-1] = pw.getOffset()
	fmt.Fprintf(pw.bw, "%d 0 obj\n", id)
}

func (pw *PDFWriter) newObject() int {
	id := pw.reserveObject()
	pw.beginObject(id)
	return id
}

// PageCount is the number of pages written so far.
func (pw *PDFWriter) PageCount() int { return len(pw.pageIDs) }

// WriteImage adds a page holding an encoded JPEG, sized from its resolution.
func (pw *PDFWriter) WriteImage(page *contracts.EncodedPage) error {
	size := SizeFor(page.PixelWidth, page.PixelHeight, page.DPIX, page.DPIY)
	if page.Gray {
		if err := pw.WriteGrayJPEGImage(page.PixelWidth, page.PixelHeight, page.ImgBuffer, size); err != nil {
			return fmt.Errorf("error writing grayscale JPEG image: %w", err)
		}
		return nil
	}
	if err := pw.WriteRGBJPEGImage(page.PixelWidth, page.PixelHeight, page.ImgBuffer, size); err != nil {
		return fmt.Errorf("error writing RGB JPEG image: %w", err)
	}
	return nil
}

func (pw *PDFWriter) WriteRGBJPEGImage(width, height int, data []byte, size PageSize) error {
	return pw.writeImagePage(width, height, DeviceRGB, 8, "/Filter /DCTDecode\n", data, size)
}

func (pw *PDFWriter) WriteGrayJPEGImage(width, height int, data []byte, size PageSize) error {
	return pw.writeImagePage(width, height, DeviceGray, 8, "/Filter /DCTDecode\n", data, size)
}

// WriteFlateImage adds a page holding raw samples, rows packed MSB first.
// It returns the length of the compressed stream.
func (pw *PDFWriter) WriteFlateImage(width, height int, cs ColorSpace, bitsPerComponent int, samples []byte, size PageSize) (int, error) {
	channels := 1
	if cs == DeviceRGB {
		channels = 3
	}
	rowBytes := (width*channels*bitsPerComponent + 7) / 8
	if len(samples) != rowBytes*height {
		return 0, fmt.Errorf("sample buffer is %d bytes, want %d for %dx%d", len(samples), rowBytes*height, width, height)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write(samples); err != nil {
		return 0, fmt.Errorf("error compressing samples: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("error compressing samples: %w", err)
	}

	filter := "/Filter /FlateDecode\n"
	if bitsPerComponent == 1 {
		// samples carry 1 for black
		filter += "/Decode [1 0]\n"
	}
	if err := pw.writeImagePage(width, height, cs, bitsPerComponent, filter, buf.Bytes(), size); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

func (pw *PDFWriter) writeImagePage(width, height int, cs ColorSpace, bpc int, filter string, data []byte, size PageSize) error {
	if pw.finished {
		return ErrFinished
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if len(data) == 0 {
		return errors.New("image stream is empty")
	}
	if size.Width <= 0 || size.Height <= 0 {
		return fmt.Errorf("invalid page size %.2fx%.2f", size.Width, size.Height)
	}

	imgID := pw.newObject()
	pw.bw.WriteString("<<\n/Type /XObject\n/Subtype /Image\n")
	fmt.Fprintf(pw.bw, "/Width %d\n/Height %d\n", width, height)
	fmt.Fprintf(pw.bw, "/ColorSpace /%s\n/BitsPerComponent %d\n", cs, bpc)
	pw.bw.WriteString(filter)
	fmt.Fprintf(pw.bw, "/Length %d\n", len(data))
	pw.bw.WriteString(">>\nstream\n")
	pw.bw.Write(data)
	pw.bw.WriteString("\nendstream\nendobj\n")

	imgName := fmt.Sprintf("img_%d", len(pw.pageIDs))
	contentID := pw.writeContent(imgName, size)
	pageID := pw.writePage(imgName, imgID, contentID, size)
	pw.pageIDs = append(pw.pageIDs, pageID)

	// hand the image bytes to dst before the next page is encoded
	if err := pw.bw.Flush(); err != nil {
		return fmt.Errorf("error flushing page %d: %w", len(pw.pageIDs)-1, err)
	}
	return nil
}

func (pw *PDFWriter) writeContent(imgName string, size PageSize) int {
	content := fmt.Sprintf(
		"q\n%.2f 0 0 %.2f 0 0 cm\n/%s Do\nQ\n",
		size.Width, size.Height, imgName,
	)
	objID := pw.newObject()
	fmt.Fprintf(pw.bw, "<<\n/Length %d\n>>\n", len(content))
	pw.bw.WriteString("stream\n")
	pw.bw.WriteString(content)
	pw.bw.WriteString("endstream\nendobj\n")
	return objID
}

func (pw *PDFWriter) writePage(imgName string, imgObjID, contentID int, size PageSize) int {
	objID := pw.newObject()
	pw.bw.WriteString("<<\n")
	pw.bw.WriteString("/Type /Page\n")
	fmt.Fprintf(pw.bw, "/Parent %d 0 R\n", pw.pagesObjID)
	fmt.Fprintf(pw.bw, "/MediaBox [0 0 %.2f %.2f]\n", size.Width, size.Height)
	fmt.Fprintf(pw.bw, "/Resources << /XObject << /%s %d 0 R >> >>\n", imgName, imgObjID)
	fmt.Fprintf(pw.bw, "/Contents %d 0 R\n", contentID)
	pw.bw.WriteString(">>\nendobj\n")
	return objID
}

// Finish writes the page tree, catalog, xref table and trailer. A document
// without pages is refused.
func (pw *PDFWriter) Finish() error {
	if pw.finished {
		return ErrFinished
	}
	if len(pw.pageIDs) == 0 {
		return errors.New("document has no pages")
	}
	pw.finished = true

	pw.beginObject(pw.pagesObjID)
	pw.bw.WriteString("<<\n/Type /Pages\n")
	fmt.Fprintf(pw.bw, "/Count %d\n", len(pw.pageIDs))
	pw.bw.WriteString("/Kids [")
	for i, id := range pw.pageIDs {
		if i > 0 {
			pw.bw.WriteString(" ")
		}
		fmt.Fprintf(pw.bw, "%d 0 R", id)
	}
	pw.bw.WriteString("]\n>>\nendobj\n")

	catalogID := pw.newObject()
	fmt.Fprintf(pw.bw, "<<\n/Type /Catalog\n/Pages %d 0 R\n>>\nendobj\n", pw.pagesObjID)

	startXref := pw.getOffset()
	total := len(pw.objects) + 1
	fmt.Fprintf(pw.bw, "xref\n0 %d\n", total)
	fmt.Fprintf(pw.bw, "%010d %05d f \n", 0, 65535)
	for _, off := range pw.objects {
		fmt.Fprintf(pw.bw, "%010d %05d n \n", off, 0)
	}
	fmt.Fprintf(pw.bw,
		"trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		total, catalogID, startXref,
	)

	if err := pw.bw.Flush(); err != nil {
		return fmt.Errorf("error writing document structure: %w", err)
	}
	return nil
}

// PackGray1Bit packs 8-bit gray samples into 1-bit rows, setting a bit for
// every pixel darker than 128.
func PackGray1Bit(gray []byte, width, height int) []byte {
	rowBytes := (width + 7) / 8
	out := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		dstRowStart := y * rowBytes
		srcRowStart := y * width
		var b byte
		bitPos := 7

		for x := 0; x < width; x++ {
			if gray[srcRowStart+x] < 128 {
				b |= 1 << bitPos
			}
			bitPos--
			if bitPos < 0 {
				out[dstRowStart] = b
				dstRowStart++
				b = 0
				bitPos = 7
			}
		}

		// partial last byte
		if bitPos != 7 {
			out[dstRowStart] = b
		}
	}
	return out
}
