// Package document holds the decoded form of a multi-page raster document.
package document

import (
	"errors"
	"image"
	"sync"
)

type DecoderKind int

const (
	Primary DecoderKind = iota + 1
	Secondary
)

func (k DecoderKind) String() string {
	switch k {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

var ErrConsumed = errors.New("page raster already consumed")

// LoadFunc decodes the pixel data of a single page.
type LoadFunc func() (image.Image, error)

// Page is one frame of a Source. Its metadata is fixed at decode time; the
// pixel raster is produced once by Take and never handed out again.
type Page struct {
	Index       int
	Width       int
	Height      int
	DPIX        float64
	DPIY        float64
	Compression int
	Decoder     DecoderKind

	mu       sync.Mutex
	load     LoadFunc
	consumed bool
}

func NewPage(index, width, height int, decoder DecoderKind, load LoadFunc) *Page {
	return &Page{
		Index:   index,
		Width:   width,
		Height:  height,
		Decoder: decoder,
		load:    load,
	}
}

// NewDecodedPage wraps an already decoded raster.
func NewDecodedPage(index int, img image.Image, decoder DecoderKind) *Page {
	b := img.Bounds()
	return NewPage(index, b.Dx(), b.Dy(), decoder, func() (image.Image, error) { return img, nil })
}

// UncompressedSize estimates the size of the page as 8-bit RGB.
func (p *Page) UncompressedSize() int64 {
	return int64(p.Width) * int64(p.Height) * 3
}

// Take hands the raster to the caller and drops the page's reference to it.
func (p *Page) Take() (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumed {
		return nil, ErrConsumed
	}
	p.consumed = true
	load := p.load
	p.load = nil
	if load == nil {
		return nil, ErrConsumed
	}
	return load()
}

func (p *Page) Consumed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumed
}

type Source struct {
	Pages   []*Page
	Decoder DecoderKind

	// FallbackReason is set when the secondary decoder produced the source.
	FallbackReason string
}

func (s *Source) PageCount() int { return len(s.Pages) }

// Release drops every page that has not been consumed yet.
func (s *Source) Release() {
	for _, p := range s.Pages {
		p.mu.Lock()
		p.load = nil
		p.consumed = true
		p.mu.Unlock()
	}
}
