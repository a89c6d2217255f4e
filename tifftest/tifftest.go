// Package tifftest builds small multi-page TIFF files for tests.
package tifftest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"slices"
	"sort"
)

type Mode int

const (
	Gray Mode = iota
	RGB
	Palette
	Bilevel
	// JPEG stores an RGB page as a single new-style JPEG strip (compression 7).
	JPEG
)

type Page struct {
	Width  int
	Height int
	Mode   Mode
	DPI    int
	// Compression overrides the compression tag without changing the strip
	// data; used to fabricate unsupported schemes.
	Compression int
	Seed        int64
}

const (
	tImageWidth      = 256
	tImageLength     = 257
	tBitsPerSample   = 258
	tCompression     = 259
	tPhotometric     = 262
	tStripOffsets    = 273
	tSamplesPerPixel = 277
	tRowsPerStrip    = 278
	tStripByteCounts = 279
	tXResolution     = 282
	tYResolution     = 283
	tResolutionUnit  = 296
	tColorMap        = 320

	dtShort    = 3
	dtLong     = 4
	dtRational = 5
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Build encodes pages as a little-endian multi-page TIFF.
func Build(pages ...Page) []byte {
	return BuildOrder(binary.LittleEndian, pages...)
}

// BuildOrder encodes pages as a multi-page TIFF in the given byte order
// ("II" for little-endian, "MM" for big-endian).
func BuildOrder(order binary.ByteOrder, pages ...Page) []byte {
	var buf bytes.Buffer
	big := order == binary.BigEndian
	if big {
		buf.Write([]byte{'M', 'M', 0, 42, 0, 0, 0, 0})
	} else {
		order = binary.LittleEndian
		buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})
	}

	prevNext := 4
	for _, p := range pages {
		strip, entries := encodePage(p)
		stripOff := buf.Len()
		buf.Write(strip)
		pad(&buf)

		entries = append(entries,
			long(tStripOffsets, uint32(stripOff)),
			long(tStripByteCounts, uint32(len(strip))),
		)
		sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })
		if big {
			for i := range entries {
				entries[i].swap()
			}
		}

		// out-of-line values first, then the IFD itself
		offsets := make([]uint32, len(entries))
		for i, e := range entries {
			if len(e.data) > 4 {
				offsets[i] = uint32(buf.Len())
				buf.Write(e.data)
				pad(&buf)
			}
		}

		ifdOff := buf.Len()
		order.PutUint32(buf.Bytes()[prevNext:], uint32(ifdOff))

		var tmp [12]byte
		binary.Write(&buf, order, uint16(len(entries)))
		for i, e := range entries {
			order.PutUint16(tmp[0:], e.tag)
			order.PutUint16(tmp[2:], e.typ)
			order.PutUint32(tmp[4:], e.count)
			clear(tmp[8:])
			if len(e.data) > 4 {
				order.PutUint32(tmp[8:], offsets[i])
			} else {
				copy(tmp[8:], e.data)
			}
			buf.Write(tmp[:])
		}
		prevNext = buf.Len()
		buf.Write([]byte{0, 0, 0, 0})
	}
	return buf.Bytes()
}

// Uniform returns n pages with the same geometry and mode.
func Uniform(n, width, height int, mode Mode) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Width: width, Height: height, Mode: mode, DPI: 300, Seed: int64(i + 1)}
	}
	return pages
}

func encodePage(p Page) ([]byte, []entry) {
	dpi := p.DPI
	if dpi == 0 {
		dpi = 300
	}
	entries := []entry{
		long(tImageWidth, uint32(p.Width)),
		long(tImageLength, uint32(p.Height)),
		long(tRowsPerStrip, uint32(p.Height)),
		rational(tXResolution, uint32(dpi), 1),
		rational(tYResolution, uint32(dpi), 1),
		short(tResolutionUnit, 2),
	}

	var strip []byte
	compression := 1
	switch p.Mode {
	case Gray:
		strip = grayPixels(p)
		entries = append(entries, short(tBitsPerSample, 8), short(tSamplesPerPixel, 1), short(tPhotometric, 1))
	case Bilevel:
		strip = bilevelPixels(p)
		entries = append(entries, short(tBitsPerSample, 1), short(tSamplesPerPixel, 1), short(tPhotometric, 1))
	case RGB:
		strip = rgbPixels(p)
		entries = append(entries, short(tBitsPerSample, 8, 8, 8), short(tSamplesPerPixel, 3), short(tPhotometric, 2))
	case Palette:
		strip = grayPixels(p)
		cmap := make([]uint16, 3*256)
		for i := 0; i < 256; i++ {
			cmap[i] = uint16(i) * 257
			cmap[256+i] = uint16(255-i) * 257
			cmap[512+i] = uint16(i/2) * 257
		}
		entries = append(entries, short(tBitsPerSample, 8), short(tSamplesPerPixel, 1), short(tPhotometric, 3), short(tColorMap, cmap...))
	case JPEG:
		var jb bytes.Buffer
		_ = jpeg.Encode(&jb, Image(p), &jpeg.Options{Quality: 90})
		strip = jb.Bytes()
		compression = 7
		entries = append(entries, short(tBitsPerSample, 8, 8, 8), short(tSamplesPerPixel, 3), short(tPhotometric, 2))
	}
	if p.Compression != 0 {
		compression = p.Compression
	}
	entries = append(entries, short(tCompression, uint16(compression)))
	return strip, entries
}

// Image renders the RGB content used for a page: a gradient with light
// deterministic noise and a few dark bars so that the page resembles a scan.
func Image(p Page) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	rng := rand.New(rand.NewSource(p.Seed))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			n := rng.Intn(8)
			r := uint8(min(x*248/max(p.Width, 1)+n, 255))
			g := uint8(min(y*248/max(p.Height, 1)+n, 255))
			b := uint8(160 + n)
			if y%40 < 4 && x%200 < 150 {
				r, g, b = 20, 20, 20
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

func grayPixels(p Page) []byte {
	src := Image(p)
	out := make([]byte, p.Width*p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := src.RGBAAt(x, y)
			out[y*p.Width+x] = uint8((int(c.R)*77 + int(c.G)*150 + int(c.B)*29) >> 8)
		}
	}
	return out
}

func rgbPixels(p Page) []byte {
	src := Image(p)
	out := make([]byte, 0, p.Width*p.Height*3)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := src.RGBAAt(x, y)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out
}

func bilevelPixels(p Page) []byte {
	gray := grayPixels(p)
	rowBytes := (p.Width + 7) / 8
	out := make([]byte, rowBytes*p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			// MinIsBlack: bit set means white
			if gray[y*p.Width+x] >= 128 {
				out[y*rowBytes+x/8] |= 1 << (7 - uint(x%8))
			}
		}
	}
	return out
}

// swap turns little-endian value bytes into big-endian ones.
func (e *entry) swap() {
	width := 4
	if e.typ == dtShort {
		width = 2
	}
	for i := 0; i+width <= len(e.data); i += width {
		slices.Reverse(e.data[i : i+width])
	}
}

func short(tag uint16, vals ...uint16) entry {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return entry{tag: tag, typ: dtShort, count: uint32(len(vals)), data: data}
}

func long(tag uint16, v uint32) entry {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, v)
	return entry{tag: tag, typ: dtLong, count: 1, data: data}
}

func rational(tag uint16, num, den uint32) entry {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data, num)
	binary.LittleEndian.PutUint32(data[4:], den)
	return entry{tag: tag, typ: dtRational, count: 1, data: data}
}

func pad(buf *bytes.Buffer) {
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
}
