package pdf_writer

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"tiffconv/contracts"
)

func testJPEG(t *testing.T, w, h int, gray bool) []byte {
	t.Helper()
	var img image.Image
	if gray {
		img = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		img = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestWriteRGBJPEGImage(t *testing.T) {
	data := testJPEG(t, 100, 80, false)

	var buf bytes.Buffer
	pw, err := NewPDFWriter(&buf)
	if err != nil {
		t.Fatalf("Failed to create PDFWriter: %v", err)
	}
	if err := pw.WriteRGBJPEGImage(100, 80, data, PageSize{Width: 100, Height: 80}); err != nil {
		t.Fatalf("WriteRGBJPEGImage failed: %v", err)
	}
	if pw.PageCount() != 1 {
		t.Fatalf("Expected 1 page, got %d", pw.PageCount())
	}

	output := buf.String()
	for _, want := range []string{
		"%PDF-1.7",
		"/Type /XObject",
		"/Subtype /Image",
		"/ColorSpace /DeviceRGB",
		"/BitsPerComponent 8",
		"/Filter /DCTDecode",
		"/Width 100",
		"/Height 80",
		fmt.Sprintf("/Length %d", len(data)),
		"/Type /Page\n",
		"/Parent 1 0 R",
		"/img_0 Do",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Missing %q in output", want)
		}
	}
	if !bytes.Contains(buf.Bytes(), data) {
		t.Error("JPEG data not embedded verbatim")
	}
}

func TestWriteImageUsesColorSpaceAndResolution(t *testing.T) {
	var buf bytes.Buffer
	pw, _ := NewPDFWriter(&buf)
	page := &contracts.EncodedPage{
		ImgBuffer:   testJPEG(t, 300, 600, true),
		PixelWidth:  300,
		PixelHeight: 600,
		DPIX:        150,
		DPIY:        300,
		Gray:        true,
	}
	if err := pw.WriteImage(page); err != nil {
		t.Fatalf("WriteImage failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "/ColorSpace /DeviceGray") {
		t.Error("gray page should use DeviceGray")
	}
	if !strings.Contains(output, "/MediaBox [0 0 144.00 144.00]") {
		t.Errorf("unexpected MediaBox in:\n%s", output)
	}
	if !strings.Contains(output, "144.00 0 0 144.00 0 0 cm") {
		t.Error("content stream should scale image to the page")
	}
}

func TestWriteFlateImage(t *testing.T) {
	t.Run("bilevel", func(t *testing.T) {
		gray := []byte{
			0, 255, 0, 255, 0, 255, 0, 255, 0, 255,
			255, 255, 255, 255, 255, 255, 255, 255, 255, 0,
		}
		packed := PackGray1Bit(gray, 10, 2)

		var buf bytes.Buffer
		pw, _ := NewPDFWriter(&buf)
		n, err := pw.WriteFlateImage(10, 2, DeviceGray, 1, packed, PageSize{Width: 10, Height: 2})
		if err != nil {
			t.Fatalf("WriteFlateImage failed: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"/Filter /FlateDecode", "/BitsPerComponent 1", "/Decode [1 0]", fmt.Sprintf("/Length %d", n)} {
			if !strings.Contains(output, want) {
				t.Errorf("Missing %q in output", want)
			}
		}
		if got := inflateFirstStream(t, buf.Bytes()); !bytes.Equal(got, packed) {
			t.Errorf("stream = % x, want % x", got, packed)
		}
	})

	t.Run("rgb", func(t *testing.T) {
		samples := bytes.Repeat([]byte{10, 20, 30}, 4*3)
		var buf bytes.Buffer
		pw, _ := NewPDFWriter(&buf)
		if _, err := pw.WriteFlateImage(4, 3, DeviceRGB, 8, samples, PageSize{Width: 4, Height: 3}); err != nil {
			t.Fatalf("WriteFlateImage failed: %v", err)
		}
		if strings.Contains(buf.String(), "/Decode") {
			t.Error("8-bit samples need no Decode array")
		}
		if got := inflateFirstStream(t, buf.Bytes()); !bytes.Equal(got, samples) {
			t.Error("round-tripped samples differ")
		}
	})

	t.Run("wrong sample length", func(t *testing.T) {
		pw, _ := NewPDFWriter(io.Discard)
		if _, err := pw.WriteFlateImage(4, 3, DeviceRGB, 8, make([]byte, 10), PageSize{Width: 4, Height: 3}); err == nil {
			t.Error("expected error for short sample buffer")
		}
	})
}

func inflateFirstStream(t *testing.T, pdf []byte) []byte {
	t.Helper()
	start := bytes.Index(pdf, []byte("stream\n"))
	end := bytes.Index(pdf, []byte("\nendstream"))
	if start < 0 || end < start {
		t.Fatal("no stream found")
	}
	zr, err := zlib.NewReader(bytes.NewReader(pdf[start+len("stream\n") : end]))
	if err != nil {
		t.Fatalf("zlib: %v", err)
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	return out
}

func TestFinish(t *testing.T) {
	var buf bytes.Buffer
	pw, _ := NewPDFWriter(&buf)
	for i := 0; i < 3; i++ {
		if err := pw.WriteRGBJPEGImage(20+i, 10, testJPEG(t, 20+i, 10, false), PageSize{Width: 20, Height: 10}); err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
	}
	if err := pw.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	output := buf.String()

	t.Run("page tree", func(t *testing.T) {
		if !strings.Contains(output, "/Type /Pages\n/Count 3\n") {
			t.Error("Pages object should count 3 pages")
		}
		if strings.Count(output, "/Type /Page\n") != 3 {
			t.Errorf("expected 3 page objects")
		}
		if !strings.Contains(output, "/Type /Catalog\n/Pages 1 0 R") {
			t.Error("catalog must point at the page tree")
		}
		// kids are listed in the order pages were written
		kids := regexp.MustCompile(`/Kids \[([^\]]*)\]`).FindStringSubmatch(output)
		if kids == nil || kids[1] != "4 0 R 7 0 R 10 0 R" {
			t.Errorf("unexpected Kids %v", kids)
		}
		for i, id := range []int{2, 5, 8} {
			obj := objectBody(t, output, id)
			if !strings.Contains(obj, fmt.Sprintf("/Width %d", 20+i)) {
				t.Errorf("image object %d is not page %d", id, i)
			}
		}
	})

	t.Run("xref offsets", func(t *testing.T) {
		m := regexp.MustCompile(`startxref\n(\d+)\n%%EOF\n$`).FindStringSubmatch(output)
		if m == nil {
			t.Fatal("missing startxref trailer")
		}
		start, _ := strconv.Atoi(m[1])
		if !strings.HasPrefix(output[start:], "xref\n0 12\n") {
			t.Fatalf("startxref does not point at xref table: %q", output[start:start+12])
		}
		lines := strings.Split(output[start:], "\n")[3:14]
		for i, line := range lines {
			off, err := strconv.Atoi(line[:10])
			if err != nil {
				t.Fatalf("bad xref line %q", line)
			}
			want := fmt.Sprintf("%d 0 obj\n", i+1)
			if !strings.HasPrefix(output[off:], want) {
				t.Errorf("xref entry %d points at %q", i+1, output[off:off+10])
			}
		}
		if !strings.Contains(output, "/Size 12 /Root 11 0 R") {
			t.Error("trailer size or root mismatch")
		}
	})

	t.Run("pdfcpu reads it", func(t *testing.T) {
		api.DisableConfigDir()
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		n, err := api.PageCount(bytes.NewReader(buf.Bytes()), conf)
		if err != nil {
			t.Fatalf("pdfcpu PageCount: %v", err)
		}
		if n != 3 {
			t.Errorf("pdfcpu counts %d pages, want 3", n)
		}
	})

	t.Run("closed writer", func(t *testing.T) {
		if err := pw.Finish(); err != ErrFinished {
			t.Errorf("second Finish = %v", err)
		}
		if err := pw.WriteRGBJPEGImage(1, 1, []byte{1}, PageSize{Width: 1, Height: 1}); err != ErrFinished {
			t.Errorf("write after Finish = %v", err)
		}
	})
}

func objectBody(t *testing.T, pdf string, id int) string {
	t.Helper()
	head := fmt.Sprintf("\n%d 0 obj\n", id)
	i := strings.Index(pdf, head)
	if i < 0 {
		t.Fatalf("object %d not found", id)
	}
	body := pdf[i+len(head):]
	return body[:strings.Index(body, "endobj")]
}

func TestFinishWithoutPages(t *testing.T) {
	pw, _ := NewPDFWriter(io.Discard)
	if err := pw.Finish(); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestWriteRejectsInvalidInput(t *testing.T) {
	pw, _ := NewPDFWriter(io.Discard)
	cases := map[string]func() error{
		"empty data": func() error { return pw.WriteRGBJPEGImage(10, 10, nil, PageSize{Width: 10, Height: 10}) },
		"zero width": func() error { return pw.WriteRGBJPEGImage(0, 10, []byte{1}, PageSize{Width: 10, Height: 10}) },
		"zero page":  func() error { return pw.WriteGrayJPEGImage(10, 10, []byte{1}, PageSize{}) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			if err := fn(); err == nil {
				t.Error("expected error")
			}
		})
	}
	if pw.PageCount() != 0 {
		t.Errorf("rejected writes added %d pages", pw.PageCount())
	}
}

func TestPackGray1Bit(t *testing.T) {
	gray := []byte{0, 200, 100, 255, 10, 10, 10, 10, 0}
	got := PackGray1Bit(gray, 9, 1)
	want := []byte{0b10101111, 0b10000000}
	if !bytes.Equal(got, want) {
		t.Errorf("PackGray1Bit = %08b, want %08b", got, want)
	}
}

func TestSizeFor(t *testing.T) {
	s := SizeFor(2480, 3508, 300, 300)
	if fmt.Sprintf("%.2f x %.2f", s.Width, s.Height) != "595.20 x 841.92" {
		t.Errorf("A4 at 300 dpi = %.2f x %.2f", s.Width, s.Height)
	}
}
