package assembler

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"tiffconv/contracts"
)

var pdfcpuSetup sync.Once

func pdfcpuConfig() *model.Configuration {
	// keep pdfcpu from creating a config directory under $HOME
	pdfcpuSetup.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount reads a PDF back and counts its pages.
func PageCount(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), pdfcpuConfig())
}

// Verify checks that pdf is non-empty, parses, and holds expected pages.
func Verify(pdf []byte, expected int) error {
	if len(pdf) == 0 {
		return contracts.NewError(contracts.KindAssembly, stageAssembling, ErrEmptyOutput)
	}
	n, err := PageCount(pdf)
	if err != nil {
		return contracts.NewError(contracts.KindAssembly, stageAssembling, fmt.Errorf("output is not a readable PDF: %w", err))
	}
	if n != expected {
		return contracts.NewError(contracts.KindAssembly, stageAssembling,
			fmt.Errorf("output holds %d pages, %d were processed", n, expected))
	}
	return nil
}
