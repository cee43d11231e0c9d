package entry

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/voxelkit/slicecache/cacheerr"
)

// Record layout (little-endian), header followed by the raw payload:
//
//	magic      uint32
//	sliceIndex uint32
//	width      uint32
//	height     uint32
//	format     uint8
//	windowCenter, windowWidth, valueMin, valueMax  float64
//	createdAt, lastAccessedAt                      int64 (unix nanos)
//	sourceLen  uint16, sourceID bytes
//	payloadLen uint32, payload bytes
//
// The payload is stored verbatim; pixel buffers are large and any
// re-encoding (JSON, proto) would copy or inflate them.
const recordMagic uint32 = 0x534c4331 // "SLC1"

const fixedHeaderLen = 4 + 4 + 4 + 4 + 1 + 8*4 + 8*2 + 2 + 4

// Encode packs an entry into a store record. It fails with a
// serialization error when the entry violates the size invariant, so an
// inconsistent entry can never reach the durable store.
func Encode(e *Entry) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if len(e.SourceID) > math.MaxUint16 {
		return nil, cacheerr.Newf(cacheerr.CodeSerialization, "source id of %d bytes is too long", len(e.SourceID))
	}
	if e.SliceIndex < 0 || int64(e.SliceIndex) > math.MaxUint32 {
		return nil, cacheerr.Newf(cacheerr.CodeSerialization, "slice index %d does not fit the record header", e.SliceIndex)
	}
	if int64(e.Width) > math.MaxUint32 || int64(e.Height) > math.MaxUint32 {
		return nil, cacheerr.Newf(cacheerr.CodeSerialization, "dimensions %dx%d do not fit the record header", e.Width, e.Height)
	}

	buf := make([]byte, 0, fixedHeaderLen+len(e.SourceID)+len(e.Payload))
	buf = binary.LittleEndian.AppendUint32(buf, recordMagic)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(e.SliceIndex))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Width))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Height))
	buf = append(buf, byte(e.PixelFormat))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.WindowCenter))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.WindowWidth))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.ValueRange.Min))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.ValueRange.Max))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.CreatedAt.UnixNano()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.LastAccessedAt.UnixNano()))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.SourceID)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Payload)))
	buf = append(buf, e.SourceID...)
	buf = append(buf, e.Payload...)
	return buf, nil
}

// Decode is the inverse of [Encode]. Any structural problem — short
// record, bad magic, truncated payload, failed size invariant — yields a
// corrupt-entry error. The caller must treat that as a miss and remove
// the offending record.
func Decode(key string, rec []byte) (*Entry, error) {
	if len(rec) < fixedHeaderLen {
		return nil, cacheerr.Newf(cacheerr.CodeCorruptEntry, "record of %d bytes is shorter than header", len(rec))
	}
	if magic := binary.LittleEndian.Uint32(rec[0:4]); magic != recordMagic {
		return nil, cacheerr.Newf(cacheerr.CodeCorruptEntry, "bad record magic %#x", magic)
	}

	e := &Entry{
		Key:         key,
		SliceIndex:  int(binary.LittleEndian.Uint32(rec[4:8])),
		Width:       int(binary.LittleEndian.Uint32(rec[8:12])),
		Height:      int(binary.LittleEndian.Uint32(rec[12:16])),
		PixelFormat: PixelFormat(rec[16]),
		WindowCenter: math.Float64frombits(
			binary.LittleEndian.Uint64(rec[17:25])),
		WindowWidth: math.Float64frombits(
			binary.LittleEndian.Uint64(rec[25:33])),
		ValueRange: ValueRange{
			Min: math.Float64frombits(binary.LittleEndian.Uint64(rec[33:41])),
			Max: math.Float64frombits(binary.LittleEndian.Uint64(rec[41:49])),
		},
		CreatedAt:      time.Unix(0, int64(binary.LittleEndian.Uint64(rec[49:57]))),
		LastAccessedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(rec[57:65]))),
	}

	sourceLen := int(binary.LittleEndian.Uint16(rec[65:67]))
	payloadLen := int(binary.LittleEndian.Uint32(rec[67:71]))
	if len(rec) != fixedHeaderLen+sourceLen+payloadLen {
		return nil, cacheerr.Newf(cacheerr.CodeCorruptEntry,
			"record length %d does not match declared %d+%d", len(rec), sourceLen, payloadLen)
	}
	e.SourceID = string(rec[fixedHeaderLen : fixedHeaderLen+sourceLen])
	if e.SourceID == "" {
		return nil, cacheerr.New(cacheerr.CodeCorruptEntry, "record has empty source id")
	}
	e.Payload = append([]byte(nil), rec[fixedHeaderLen+sourceLen:]...)

	if err := e.Validate(); err != nil {
		return nil, cacheerr.Newf(cacheerr.CodeCorruptEntry,
			"record for %dx%d %s fails size invariant: %v",
			e.Width, e.Height, e.PixelFormat, err)
	}
	return e, nil
}
