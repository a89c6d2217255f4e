package utils

import (
	"fmt"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const (
	DefaultDPI    = 300.0
	pointsPerInch = 72.0
)

// TIFFDPI reads the resolution of the first IFD. Failures return DefaultDPI
// on both axes together with the error.
func TIFFDPI(data []byte) (float64, float64, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return DefaultDPI, DefaultDPI, fmt.Errorf("EXIF not found: %v", err)
	}

	im := exifcommon.NewIfdMapping()
	ti := exif.NewTagIndex()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return DefaultDPI, DefaultDPI, err
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return DefaultDPI, DefaultDPI, err
	}

	dpiX, dpiY := DefaultDPI, DefaultDPI

	if tag, err := index.RootIfd.FindTagWithName("XResolution"); err == nil && len(tag) > 0 {
		if val, err := tag[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiX = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}

	if tag, err := index.RootIfd.FindTagWithName("YResolution"); err == nil && len(tag) > 0 {
		if val, err := tag[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiY = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}

	if tag, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil && len(tag) > 0 {
		if val, err := tag[0].Value(); err == nil {
			if u, ok := val.([]uint16); ok && len(u) > 0 && u[0] == 3 {
				dpiX *= 2.54
				dpiY *= 2.54
			}
		}
	}

	return dpiX, dpiY, nil
}

// ResolutionToDPI converts a TIFF resolution value to dots per inch.
// unit follows the ResolutionUnit tag: 1 none, 2 inch, 3 centimeter.
func ResolutionToDPI(value float64, unit int) float64 {
	if value <= 0 || unit == 1 {
		return 0
	}
	if unit == 3 {
		return value * 2.54
	}
	return value
}

// PixelsToPoints converts a pixel length at dpi into PDF points. A missing
// resolution maps one pixel to one point.
func PixelsToPoints(px int, dpi float64) float64 {
	if dpi <= 0 {
		return float64(px)
	}
	return float64(px) * pointsPerInch / dpi
}

func ChooseDPI(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return DefaultDPI
}
