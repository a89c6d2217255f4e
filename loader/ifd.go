package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gtiff "github.com/google/tiff"

	"tiffconv/utils"
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagCompression     = 259
	tagStripOffsets    = 273
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagXResolution     = 282
	tagYResolution     = 283
	tagResolutionUnit  = 296
	tagTileOffsets     = 324
	tagJPEGTables      = 347
)

const (
	compressionNone       = 1
	compressionG3         = 3
	compressionG4         = 4
	compressionLZW        = 5
	compressionOldJPEG    = 6
	compressionJPEG       = 7
	compressionDeflate    = 8
	compressionPackBits   = 32773
	compressionDeflateOld = 32946
)

// maxPages bounds the IFD chain walk.
const maxPages = 10000

// schemes implemented by golang.org/x/image/tiff
var standardSchemes = map[int]bool{
	compressionNone:       true,
	compressionG3:         true,
	compressionG4:         true,
	compressionLZW:        true,
	compressionDeflate:    true,
	compressionPackBits:   true,
	compressionDeflateOld: true,
}

type pageInfo struct {
	index           int
	offset          uint32
	width           int
	height          int
	compression     int
	dpiX            float64
	dpiY            float64
	rowsPerStrip    int
	stripOffsets    []uint32
	stripByteCounts []uint32
	tiled           bool
	jpegTables      []byte
}

// byteOrder reads the TIFF header. BigTIFF is rejected.
func byteOrder(data []byte) (binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, errors.New("input too short for a TIFF header")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.New("missing TIFF byte order mark")
	}
	if v := order.Uint16(data[2:4]); v != 42 {
		return nil, fmt.Errorf("unsupported TIFF version %d", v)
	}
	return order, nil
}

// chainOffsets walks the IFD chain and returns the offset of every IFD,
// refusing loops and offsets outside the buffer.
func chainOffsets(data []byte, order binary.ByteOrder) ([]uint32, error) {
	var offsets []uint32
	seen := make(map[uint32]bool)
	off := order.Uint32(data[4:8])
	for off != 0 {
		if seen[off] {
			return nil, fmt.Errorf("IFD chain loops back to offset %d", off)
		}
		if len(offsets) >= maxPages {
			return nil, fmt.Errorf("more than %d pages", maxPages)
		}
		if int64(off)+2 > int64(len(data)) {
			return nil, fmt.Errorf("IFD offset %d beyond end of input", off)
		}
		seen[off] = true
		offsets = append(offsets, off)
		n := int64(order.Uint16(data[off:]))
		next := int64(off) + 2 + n*12
		if next+4 > int64(len(data)) {
			return nil, fmt.Errorf("IFD at offset %d is truncated", off)
		}
		off = order.Uint32(data[next:])
	}
	if len(offsets) == 0 {
		return nil, errors.New("TIFF has no pages")
	}
	return offsets, nil
}

// readPages parses every IFD's structural tags.
func readPages(data []byte) ([]pageInfo, error) {
	order, err := byteOrder(data)
	if err != nil {
		return nil, err
	}
	offsets, err := chainOffsets(data, order)
	if err != nil {
		return nil, err
	}
	parsed, err := gtiff.Parse(bytes.NewReader(data), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("parse TIFF structure: %w", err)
	}
	ifds := parsed.IFDs()
	if len(ifds) != len(offsets) {
		return nil, fmt.Errorf("IFD chain has %d entries, parser found %d", len(offsets), len(ifds))
	}

	pages := make([]pageInfo, len(ifds))
	for i, ifd := range ifds {
		p := pageInfo{
			index:       i,
			offset:      offsets[i],
			width:       int(firstUint(ifd, tagImageWidth, 0)),
			height:      int(firstUint(ifd, tagImageLength, 0)),
			compression: int(firstUint(ifd, tagCompression, compressionNone)),
			tiled:       ifd.HasField(tagTileOffsets),
		}
		if p.width <= 0 || p.height <= 0 {
			return nil, fmt.Errorf("page %d has invalid dimensions %dx%d", i, p.width, p.height)
		}
		p.rowsPerStrip = int(firstUint(ifd, tagRowsPerStrip, uint32(p.height)))
		if p.rowsPerStrip <= 0 || p.rowsPerStrip > p.height {
			p.rowsPerStrip = p.height
		}
		if ifd.HasField(tagStripOffsets) {
			p.stripOffsets = fieldUints(ifd.GetField(tagStripOffsets))
		}
		if ifd.HasField(tagStripByteCounts) {
			p.stripByteCounts = fieldUints(ifd.GetField(tagStripByteCounts))
		}
		if ifd.HasField(tagJPEGTables) {
			p.jpegTables = ifd.GetField(tagJPEGTables).Value().Bytes()
		}
		unit := int(firstUint(ifd, tagResolutionUnit, 2))
		p.dpiX = utils.ResolutionToDPI(rational(ifd, tagXResolution), unit)
		p.dpiY = utils.ResolutionToDPI(rational(ifd, tagYResolution), unit)
		pages[i] = p
	}
	return pages, nil
}

// fillResolution assigns a DPI to pages that carry none: the first IFD's
// resolution probed through EXIF, else fallback.
func fillResolution(data []byte, pages []pageInfo, fallback float64) {
	var docX, docY float64
	probed := false
	for i := range pages {
		if pages[i].dpiX > 0 && pages[i].dpiY > 0 {
			continue
		}
		if !probed {
			probed = true
			if x, y, err := utils.TIFFDPI(data); err == nil {
				docX, docY = x, y
			}
		}
		pages[i].dpiX = utils.ChooseDPI(pages[i].dpiX, pages[i].dpiY, docX, fallback)
		pages[i].dpiY = utils.ChooseDPI(pages[i].dpiY, pages[i].dpiX, docY, fallback)
	}
}

func fieldUints(f gtiff.Field) []uint32 {
	if f == nil {
		return nil
	}
	v := f.Value()
	b := v.Bytes()
	order := v.Order()
	n := int(f.Count())
	if n == 0 {
		return nil
	}
	size := int(f.Type().Size())
	if size == 0 {
		size = len(b) / n
	}
	out := make([]uint32, 0, n)
	for i := 0; i < n && (i+1)*size <= len(b); i++ {
		switch size {
		case 1:
			out = append(out, uint32(b[i]))
		case 2:
			out = append(out, uint32(order.Uint16(b[2*i:])))
		case 4:
			out = append(out, order.Uint32(b[4*i:]))
		}
	}
	return out
}

func firstUint(ifd gtiff.IFD, tag uint16, def uint32) uint32 {
	if !ifd.HasField(tag) {
		return def
	}
	if vals := fieldUints(ifd.GetField(tag)); len(vals) > 0 {
		return vals[0]
	}
	return def
}

func rational(ifd gtiff.IFD, tag uint16) float64 {
	if !ifd.HasField(tag) {
		return 0
	}
	v := ifd.GetField(tag).Value()
	b := v.Bytes()
	if len(b) < 8 {
		return 0
	}
	num := v.Order().Uint32(b[0:4])
	den := v.Order().Uint32(b[4:8])
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// pageReader presents the input with its header pointing at one IFD, so a
// single-image decoder reads that page. The input is never copied.
type pageReader struct {
	data   []byte
	header [8]byte
	pos    int64
}

func newPageReader(data []byte, ifdOffset uint32) *pageReader {
	r := &pageReader{data: data}
	copy(r.header[:], data[:8])
	order := binary.ByteOrder(binary.LittleEndian)
	if string(data[:2]) == "MM" {
		order = binary.BigEndian
	}
	order.PutUint32(r.header[4:], ifdOffset)
	return r
}

func (r *pageReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	for h := int64(4); h < 8; h++ {
		if h >= off && h < off+int64(n) {
			p[h-off] = r.header[h]
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *pageReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}
