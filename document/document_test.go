package document

import (
	"errors"
	"image"
	"testing"
)

func TestPageTake(t *testing.T) {
	calls := 0
	p := NewPage(0, 4, 2, Primary, func() (image.Image, error) {
		calls++
		return image.NewGray(image.Rect(0, 0, 4, 2)), nil
	})

	img, err := p.Take()
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("unexpected width %d", img.Bounds().Dx())
	}
	if !p.Consumed() {
		t.Error("page should be consumed after Take")
	}

	if _, err := p.Take(); !errors.Is(err, ErrConsumed) {
		t.Errorf("second Take: got %v, want ErrConsumed", err)
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

func TestSourceRelease(t *testing.T) {
	src := &Source{Pages: []*Page{
		NewDecodedPage(0, image.NewGray(image.Rect(0, 0, 1, 1)), Primary),
		NewDecodedPage(1, image.NewGray(image.Rect(0, 0, 1, 1)), Primary),
	}}
	src.Release()
	for _, p := range src.Pages {
		if _, err := p.Take(); !errors.Is(err, ErrConsumed) {
			t.Errorf("page %d: got %v, want ErrConsumed", p.Index, err)
		}
	}
}

func TestUncompressedSize(t *testing.T) {
	p := NewPage(0, 800, 600, Primary, nil)
	if got := p.UncompressedSize(); got != 800*600*3 {
		t.Errorf("UncompressedSize = %d", got)
	}
}
