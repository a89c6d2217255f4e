//go:build vips

package transcoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var vipsStartup sync.Once

func init() {
	RegisterEncoder("vips", func() Encoder { return VipsEncoder{} })
}

// VipsEncoder encodes through libvips. The raster is handed over as an
// uncompressed PNG since govips only imports encoded buffers.
type VipsEncoder struct{}

func (VipsEncoder) Name() string { return "vips" }

func (VipsEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	vipsStartup.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelError)
		vips.Startup(nil)
	})

	var src bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&src, img); err != nil {
		return fmt.Errorf("stage raster for vips: %w", err)
	}
	ref, err := vips.NewImageFromBuffer(src.Bytes())
	if err != nil {
		return fmt.Errorf("vips import: %w", err)
	}
	defer ref.Close()

	params := vips.NewJpegExportParams()
	params.Quality = quality
	params.StripMetadata = true
	out, _, err := ref.ExportJpeg(params)
	if err != nil {
		return fmt.Errorf("vips jpeg export: %w", err)
	}
	_, err = w.Write(out)
	return err
}
