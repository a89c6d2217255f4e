// Package loader decodes TIFF byte streams into documents. A primary decoder
// handles the common case; a structural failure it classifies as retryable
// sends the same bytes through a secondary decoder exactly once.
package loader

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"tiffconv/contracts"
	"tiffconv/document"
	"tiffconv/metrics"
)

const stageDecoding = "decoding"

var ErrEmptyInput = errors.New("input is empty")

type Loader struct {
	primary   Decoder
	secondary Decoder
}

// New builds a loader. secondary may be nil to disable fallback.
func New(primary, secondary Decoder) *Loader {
	return &Loader{primary: primary, secondary: secondary}
}

// NewDefault wires the standard decoder with the named secondary.
func NewDefault(secondary string, defaultDPI float64) (*Loader, error) {
	sec, err := NewSecondary(secondary, defaultDPI)
	if err != nil {
		return nil, err
	}
	return New(NewStandardDecoder(defaultDPI), sec), nil
}

func (l *Loader) Load(data []byte) (*document.Source, error) {
	if len(data) == 0 {
		return nil, contracts.NewError(contracts.KindValidation, stageDecoding, ErrEmptyInput)
	}

	src, err := l.primary.Decode(data)
	if err == nil {
		return src, nil
	}

	var de *DecodeError
	if !errors.As(err, &de) || !de.Retryable() || l.secondary == nil {
		return nil, contracts.NewError(contracts.KindFormat, stageDecoding, err)
	}

	log.Warn().
		Str("primary", l.primary.Name()).
		Str("secondary", l.secondary.Name()).
		Str("reason", de.Kind.String()).
		Err(de).
		Msg("primary decoder refused document, falling back")
	metrics.IncFallback(de.Kind.String())

	src, secErr := l.secondary.Decode(data)
	if secErr != nil {
		return nil, contracts.NewError(contracts.KindFormat, stageDecoding,
			fmt.Errorf("%w (after fallback from: %v)", secErr, err))
	}
	src.FallbackReason = de.Error()
	return src, nil
}
