package tests

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"tiffconv/assembler"
	"tiffconv/contracts"
	"tiffconv/converter"
	"tiffconv/files_manager"
	"tiffconv/loader"
	"tiffconv/tifftest"
)

func TestMain(m *testing.M) {
	api.DisableConfigDir()
	os.Exit(m.Run())
}

func pdfcpuConfig() *model.Configuration {
	config := model.NewDefaultConfiguration()
	config.ValidationMode = model.ValidationRelaxed
	return config
}

func newConverter(t *testing.T, opts converter.Options) *converter.Converter {
	t.Helper()
	ld, err := loader.NewDefault("collection", 300)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	return converter.New(ld, nil, opts)
}

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.pdf")
	if err := files_manager.WriteFileAtomic(path, data); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func calculateHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func TestCompressedPDFReadback(t *testing.T) {
	src := tifftest.Build(tifftest.Uniform(3, 320, 240, tifftest.RGB)...)
	conv := newConverter(t, converter.Options{})

	out := conv.Convert(context.Background(), src, contracts.ConversionRequest{OutputFormat: "PDF", Quality: 85, Compress: true})
	if !out.Success {
		t.Fatalf("conversion failed: %s\n%s", out.Message, out.Report)
	}
	pdfPath := writePDF(t, out.OutputBytes)

	t.Run("validates", func(t *testing.T) {
		if err := api.ValidateFile(pdfPath, pdfcpuConfig()); err != nil {
			t.Errorf("PDF validation failed: %v", err)
		}
	})

	t.Run("first page stream matches single-page output", func(t *testing.T) {
		single := conv.Convert(context.Background(), src, contracts.ConversionRequest{OutputFormat: "JPEG", Quality: 85})
		if !single.Success {
			t.Fatalf("single page conversion failed: %s", single.Message)
		}
		pos := bytes.Index(out.OutputBytes, single.OutputBytes)
		if pos < 0 {
			t.Fatal("page 0 JPEG not embedded verbatim")
		}
		embedded := out.OutputBytes[pos : pos+len(single.OutputBytes)]
		if calculateHash(embedded) != calculateHash(single.OutputBytes) {
			t.Error("stream hash mismatch")
		}
		if !strings.Contains(string(out.OutputBytes[pos+len(single.OutputBytes):]), "endstream") {
			t.Error("stream not terminated after image data")
		}
	})

	t.Run("images extract", func(t *testing.T) {
		imageDir := t.TempDir()
		if err := api.ExtractImagesFile(pdfPath, imageDir, nil, pdfcpuConfig()); err != nil {
			t.Fatalf("Failed to extract images: %v", err)
		}
		files, err := os.ReadDir(imageDir)
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 3 {
			t.Fatalf("extracted %d images, want 3", len(files))
		}
		for _, f := range files {
			data, err := os.ReadFile(filepath.Join(imageDir, f.Name()))
			if err != nil {
				t.Fatal(err)
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
			if err != nil || cfg.Width != 320 || cfg.Height != 240 {
				t.Errorf("%s: not a 320x240 JPEG (%+v, %v)", f.Name(), cfg, err)
			}
		}
	})
}

func TestRawBilevelPDFReadback(t *testing.T) {
	src := tifftest.Build(tifftest.Uniform(4, 256, 128, tifftest.Bilevel)...)
	conv := newConverter(t, converter.Options{VerifyOutput: true})

	out := conv.Convert(context.Background(), src, contracts.ConversionRequest{OutputFormat: "pdf", Quality: 50})
	if !out.Success {
		t.Fatalf("conversion failed: %s\n%s", out.Message, out.Report)
	}
	for _, element := range []string{"/Filter /FlateDecode", "/BitsPerComponent 1", "/ColorSpace /DeviceGray", "/Width 256", "/Height 128"} {
		if !bytes.Contains(out.OutputBytes, []byte(element)) {
			t.Errorf("PDF missing %s", element)
		}
	}
	if out.Stats.CompressedBytes*4 > out.Stats.UncompressedBytes {
		t.Errorf("bilevel pages embedded at %d bytes from %d raster bytes", out.Stats.CompressedBytes, out.Stats.UncompressedBytes)
	}
	if err := api.ValidateFile(writePDF(t, out.OutputBytes), pdfcpuConfig()); err != nil {
		t.Errorf("PDF validation failed: %v", err)
	}
}

func TestEnginesAgreeOnPageCount(t *testing.T) {
	src := tifftest.Build(
		tifftest.Page{Width: 200, Height: 100, Mode: tifftest.Gray, DPI: 200},
		tifftest.Page{Width: 200, Height: 100, Mode: tifftest.Gray, DPI: 200, Seed: 4},
	)
	for _, engine := range assembler.Engines() {
		for _, compress := range []bool{false, true} {
			conv := newConverter(t, converter.Options{Engine: assembler.Engine(engine)})
			out := conv.Convert(context.Background(), src, contracts.ConversionRequest{OutputFormat: "PDF", Quality: 70, Compress: compress})
			if !out.Success {
				t.Fatalf("%s compress=%t: %s", engine, compress, out.Message)
			}
			path := writePDF(t, out.OutputBytes)
			if err := api.ValidateFile(path, pdfcpuConfig()); err != nil {
				t.Errorf("%s compress=%t: validation failed: %v", engine, compress, err)
			}
			if n, err := assembler.PageCount(out.OutputBytes); err != nil || n != 2 {
				t.Errorf("%s compress=%t: %d pages, %v", engine, compress, n, err)
			}
		}
	}
}

func TestObjectConversionThroughDirStore(t *testing.T) {
	root := t.TempDir()
	store := files_manager.NewDirStore(root)
	src := tifftest.Build(tifftest.Uniform(2, 64, 64, tifftest.Gray)...)
	if err := store.Put(context.Background(), "scans", "incoming/batch-1.tif", src, "image/tiff"); err != nil {
		t.Fatal(err)
	}

	conv := newConverter(t, converter.Options{})
	out := conv.ConvertObject(context.Background(), store, contracts.ObjectRequest{
		Bucket:            "scans",
		SourceKey:         "incoming/batch-1.tif",
		DestKey:           "converted/batch-1.pdf",
		ConversionRequest: contracts.ConversionRequest{OutputFormat: "PDF", Quality: 80, Compress: true},
	})
	if !out.Success {
		t.Fatalf("conversion failed: %s\n%s", out.Message, out.Report)
	}

	stored := filepath.Join(root, "scans", "converted", "batch-1.pdf")
	if err := api.ValidateFile(stored, pdfcpuConfig()); err != nil {
		t.Errorf("stored PDF validation failed: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(stored))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}
