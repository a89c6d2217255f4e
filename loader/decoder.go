package loader

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/image/tiff"

	"tiffconv/document"
)

// Decoder turns a whole TIFF byte stream into a document.Source.
// Failures are reported as *DecodeError.
type Decoder interface {
	Name() string
	Decode(data []byte) (*document.Source, error)
}

type DecodeKind int

const (
	// KindMalformed: not a TIFF container, truncated or corrupt structure.
	KindMalformed DecodeKind = iota + 1
	// KindGeometry: the decoder cannot hold pages of different sizes.
	KindGeometry
	// KindScheme: a page uses a compression or pixel layout the decoder
	// does not implement.
	KindScheme
)

func (k DecodeKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindGeometry:
		return "geometry"
	case KindScheme:
		return "scheme"
	default:
		return "unknown"
	}
}

type DecodeError struct {
	Decoder string
	Kind    DecodeKind
	Page    int
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Page >= 0 {
		return fmt.Sprintf("%s decoder: %s: page %d: %v", e.Decoder, e.Kind, e.Page, e.Err)
	}
	return fmt.Sprintf("%s decoder: %s: %v", e.Decoder, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Retryable reports whether another decoder may succeed where this one failed.
func (e *DecodeError) Retryable() bool {
	return e.Kind == KindGeometry || e.Kind == KindScheme
}

func decodeErr(decoder string, kind DecodeKind, page int, err error) *DecodeError {
	return &DecodeError{Decoder: decoder, Kind: kind, Page: page, Err: err}
}

// classify maps an x/image/tiff error onto a DecodeKind.
func classify(err error) DecodeKind {
	var ue tiff.UnsupportedError
	if errors.As(err, &ue) {
		return KindScheme
	}
	return KindMalformed
}

type SecondaryFactory func(defaultDPI float64) Decoder

var (
	registryMu  sync.RWMutex
	secondaries = map[string]SecondaryFactory{
		"collection": func(defaultDPI float64) Decoder { return &CollectionDecoder{DefaultDPI: defaultDPI} },
	}
)

// RegisterSecondary makes a fallback decoder selectable by name.
func RegisterSecondary(name string, f SecondaryFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	secondaries[name] = f
}

func NewSecondary(name string, defaultDPI float64) (Decoder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := secondaries[name]
	if !ok {
		return nil, fmt.Errorf("unknown secondary decoder %q (available: %v)", name, secondaryNames())
	}
	return f(defaultDPI), nil
}

func secondaryNames() []string {
	names := make([]string, 0, len(secondaries))
	for n := range secondaries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
