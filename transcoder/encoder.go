package transcoder

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sort"
	"sync"
)

// Encoder writes a normalized raster as a lossy still image.
type Encoder interface {
	Name() string
	Encode(w io.Writer, img image.Image, quality int) error
}

type JPEGEncoder struct{}

func (JPEGEncoder) Name() string { return "jpeg" }

func (JPEGEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

var (
	encodersMu sync.RWMutex
	encoders   = map[string]func() Encoder{
		"jpeg": func() Encoder { return JPEGEncoder{} },
	}
)

func RegisterEncoder(name string, f func() Encoder) {
	encodersMu.Lock()
	defer encodersMu.Unlock()
	encoders[name] = f
}

// NewEncoder returns the encoder registered under name.
func NewEncoder(name string) (Encoder, error) {
	encodersMu.RLock()
	defer encodersMu.RUnlock()
	f, ok := encoders[name]
	if !ok {
		names := make([]string, 0, len(encoders))
		for n := range encoders {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown encoder %q (available: %v)", name, names)
	}
	return f(), nil
}
