// Package assembler writes transcoded or raw pages into the output
// container: a single JPEG, or a page-per-image PDF built by one of two
// engines.
package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sort"

	"tiffconv/contracts"
)

const stageAssembling = "assembling"

var ErrEmptyOutput = errors.New("assembler produced no bytes")

type Engine string

const (
	EngineNative Engine = "native"
	EngineGofpdf Engine = "gofpdf"
)

// Document is a paginated container under construction. Pages are kept in
// the order they are added. The int returned by the Add methods is the
// number of bytes embedded for that page.
type Document interface {
	AddEncoded(page contracts.EncodedPage) (int, error)
	AddRaster(index int, img image.Image, dpiX, dpiY float64) (int, error)
	Finish() ([]byte, error)
	Pages() int
}

var engines = map[Engine]func() (Document, error){
	EngineNative: newNativeDocument,
	EngineGofpdf: newGofpdfDocument,
}

func NewDocument(engine Engine) (Document, error) {
	if engine == "" {
		engine = EngineNative
	}
	f, ok := engines[engine]
	if !ok {
		return nil, fmt.Errorf("unknown assembler engine %q (available: %v)", engine, Engines())
	}
	return f()
}

func Engines() []string {
	names := make([]string, 0, len(engines))
	for e := range engines {
		names = append(names, string(e))
	}
	sort.Strings(names)
	return names
}

// Raster returns the single-image output for page. The buffer must hold a
// JPEG stream.
func Raster(page contracts.EncodedPage) ([]byte, error) {
	if len(page.ImgBuffer) == 0 {
		return nil, contracts.NewPageError(contracts.KindAssembly, stageAssembling, page.PageIndex, ErrEmptyOutput)
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(page.ImgBuffer)); err != nil {
		return nil, contracts.NewPageError(contracts.KindAssembly, stageAssembling, page.PageIndex,
			fmt.Errorf("output is not a JPEG stream: %w", err))
	}
	return page.ImgBuffer, nil
}

func pageErr(index int, err error) error {
	return contracts.NewPageError(contracts.KindAssembly, stageAssembling, index, err)
}
