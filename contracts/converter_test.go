package contracts

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseOutputFormat(t *testing.T) {
	for token, want := range map[string]OutputFormat{"JPEG": RasterSingle, "jpg": RasterSingle, " Pdf ": DocumentMulti} {
		got, err := ParseOutputFormat(token)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %v, %v", token, got, err)
		}
	}
	for _, token := range []string{"", "XML", "tiff"} {
		if _, err := ParseOutputFormat(token); !IsKind(err, KindValidation) {
			t.Errorf("ParseOutputFormat(%q) error = %v", token, err)
		}
	}
}

func TestConversionRequestValidate(t *testing.T) {
	for _, q := range []int{0, -1, 101} {
		if _, err := (ConversionRequest{OutputFormat: "PDF", Quality: q}).Validate(); !IsKind(err, KindValidation) {
			t.Errorf("quality %d accepted: %v", q, err)
		}
	}
	for _, q := range []int{MinQuality, 50, MaxQuality} {
		if f, err := (ConversionRequest{OutputFormat: "PDF", Quality: q}).Validate(); err != nil || f != DocumentMulti {
			t.Errorf("quality %d rejected: %v", q, err)
		}
	}
}

func TestObjectRequestValidate(t *testing.T) {
	ok := ObjectRequest{Bucket: "b", SourceKey: "in.tif", DestKey: "out.pdf", ConversionRequest: ConversionRequest{OutputFormat: "pdf", Quality: 80}}
	if _, err := ok.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	bad := ok
	bad.DestKey = "  "
	if _, err := bad.Validate(); !IsKind(err, KindValidation) {
		t.Errorf("blank destination accepted: %v", err)
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("bad strip")
	err := fmt.Errorf("wrapped: %w", NewPageError(KindFormat, "transcoding", 3, cause))
	if got := errors.Unwrap(err).Error(); got != "format error: page 3: bad strip" {
		t.Errorf("message = %q", got)
	}
	if !errors.Is(err, cause) || !IsKind(err, KindFormat) {
		t.Error("error chain lost")
	}
	if got := NewError(KindAssembly, "assembling", cause).Error(); got != "assembly error: bad strip" {
		t.Errorf("message = %q", got)
	}
	if _, ok := KindOf(cause); ok {
		t.Error("plain error reported a kind")
	}
}

func TestStatsReduction(t *testing.T) {
	if r := (Stats{UncompressedBytes: 1000, CompressedBytes: 250}).Reduction(); r != 75 {
		t.Errorf("Reduction = %v", r)
	}
	if r := (Stats{}).Reduction(); r != 0 {
		t.Errorf("empty Reduction = %v", r)
	}
}
