// Package entry defines the cached slice representation and the binary
// codec that packs it into a durable store record.
package entry

import (
	"time"

	"github.com/voxelkit/slicecache/cacheerr"
)

// PixelFormat enumerates the supported pixel encodings of a decoded slice.
// The format determines the bytes-per-pixel factor used by the size
// invariant.
type PixelFormat uint8

const (
	Uint8 PixelFormat = iota + 1
	Int16
	Uint16
	Float32
	Float64
)

// BytesPerPixel returns the storage width of one pixel, or 0 for an
// unknown format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// ValueRange holds the minimum and maximum sample values observed while
// decoding a slice. Viewers use it to normalize display windows.
type ValueRange struct {
	Min float64
	Max float64
}

// Entry is one decoded slice: the pixel payload plus the display metadata
// needed to render it without re-decoding the source image.
//
// The engine owns entry lifecycle exclusively. Callers receive copies;
// mutating a returned Entry never affects the stored record.
type Entry struct {
	Key        string
	SourceID   string
	SliceIndex int

	Payload     []byte
	Width       int
	Height      int
	PixelFormat PixelFormat

	WindowCenter float64
	WindowWidth  float64
	ValueRange   ValueRange

	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// SizeBytes returns width * height * bytes-per-pixel. This is the byte
// count the quota tracker accounts for, and it must equal len(Payload)
// for a valid entry.
func (e *Entry) SizeBytes() int64 {
	return int64(e.Width) * int64(e.Height) * int64(e.PixelFormat.BytesPerPixel())
}

// Validate checks the stored size invariant: the payload length must equal
// width * height * bytes-per-pixel. It is enforced on write and again on
// read-back so a corrupted record can never masquerade as a hit.
func (e *Entry) Validate() error {
	if e.Width <= 0 || e.Height <= 0 {
		return cacheerr.Newf(cacheerr.CodeSerialization, "non-positive dimensions %dx%d", e.Width, e.Height)
	}
	if e.PixelFormat.BytesPerPixel() == 0 {
		return cacheerr.Newf(cacheerr.CodeSerialization, "unknown pixel format %d", e.PixelFormat)
	}
	if int64(len(e.Payload)) != e.SizeBytes() {
		return cacheerr.Newf(cacheerr.CodeSerialization,
			"payload is %d bytes, %dx%d %s requires %d",
			len(e.Payload), e.Width, e.Height, e.PixelFormat, e.SizeBytes())
	}
	return nil
}

// Clone returns a deep copy of the entry. The engine hands clones to
// callers so stored payloads stay immutable.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}
