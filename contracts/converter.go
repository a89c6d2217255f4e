package contracts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Converter interface {
	Convert(ctx context.Context, source []byte, request ConversionRequest) ConversionOutcome
}

type OutputFormat int

const (
	RasterSingle OutputFormat = iota + 1
	DocumentMulti
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePDF  = "application/pdf"
)

func (f OutputFormat) String() string {
	switch f {
	case RasterSingle:
		return "JPEG"
	case DocumentMulti:
		return "PDF"
	default:
		return "unknown"
	}
}

func (f OutputFormat) ContentType() string {
	if f == RasterSingle {
		return ContentTypeJPEG
	}
	return ContentTypePDF
}

// ParseOutputFormat maps a caller token to an OutputFormat, ignoring case.
func ParseOutputFormat(token string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "jpeg", "jpg":
		return RasterSingle, nil
	case "pdf":
		return DocumentMulti, nil
	}
	return 0, NewError(KindValidation, "validating", fmt.Errorf("unrecognized output format %q (expected JPEG or PDF)", token))
}

const (
	MinQuality = 1
	MaxQuality = 100
)

type ConversionRequest struct {
	OutputFormat string
	Quality      int
	// Compress only applies to PDF output.
	Compress bool
}

// Validate checks the request parameters and returns the parsed format.
func (r ConversionRequest) Validate() (OutputFormat, error) {
	if r.Quality < MinQuality || r.Quality > MaxQuality {
		return 0, NewError(KindValidation, "validating", fmt.Errorf("quality %d out of range [%d,%d]", r.Quality, MinQuality, MaxQuality))
	}
	return ParseOutputFormat(r.OutputFormat)
}

// ObjectRequest addresses a conversion whose input and output live in the
// object store.
type ObjectRequest struct {
	Bucket    string
	SourceKey string
	DestKey   string
	ConversionRequest
}

func (r ObjectRequest) Validate() (OutputFormat, error) {
	switch {
	case strings.TrimSpace(r.Bucket) == "":
		return 0, NewError(KindValidation, "validating", fmt.Errorf("bucket is empty"))
	case strings.TrimSpace(r.SourceKey) == "":
		return 0, NewError(KindValidation, "validating", fmt.Errorf("source key is empty"))
	case strings.TrimSpace(r.DestKey) == "":
		return 0, NewError(KindValidation, "validating", fmt.Errorf("destination key is empty"))
	}
	return r.ConversionRequest.Validate()
}

type Stats struct {
	Pages             int
	UncompressedBytes int64
	CompressedBytes   int64
	Elapsed           time.Duration
}

// Reduction is the share of bytes saved, in percent.
func (s Stats) Reduction() float64 {
	if s.UncompressedBytes <= 0 {
		return 0
	}
	return (1 - float64(s.CompressedBytes)/float64(s.UncompressedBytes)) * 100
}

type ConversionOutcome struct {
	Success        bool
	Message        string
	PagesConverted int
	OutputBytes    []byte
	ContentType    string
	Report         string
	Stats          Stats
}

// EncodedPage is one page ready to be embedded into the output container.
type EncodedPage struct {
	ImgBuffer   []byte
	PixelWidth  int
	PixelHeight int
	DPIX        float64
	DPIY        float64
	PageIndex   int
	Gray        bool
	// Uncompressed is the size of the normalized raster the buffer was
	// produced from.
	Uncompressed int64
}
