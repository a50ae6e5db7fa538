package layout

import (
	"fmt"
	"math"
)

// SampleKind is the storage width and signedness of one image sample.
type SampleKind uint8

const (
	SampleU8 SampleKind = iota
	SampleS8
	SampleU16
	SampleS16
	SampleS32
	SampleF32
)

// Valid reports whether k is one of the supported kinds.
func (k SampleKind) Valid() bool {
	return k <= SampleF32
}

// Size returns the number of bytes one sample of kind k occupies.
func (k SampleKind) Size() int {
	switch k {
	case SampleU8, SampleS8:
		return 1
	case SampleU16, SampleS16:
		return 2
	case SampleS32, SampleF32:
		return 4
	default:
		return 0
	}
}

func (k SampleKind) String() string {
	switch k {
	case SampleU8:
		return "u8"
	case SampleS8:
		return "s8"
	case SampleU16:
		return "u16"
	case SampleS16:
		return "s16"
	case SampleS32:
		return "s32"
	case SampleF32:
		return "f32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Normalize returns the numeric value of a sample of kind k whose stored bit
// pattern occupies the low Size()*8 bits of raw. Unsigned kinds never come
// back negative: the pattern 0xFF is 255 for SampleU8 and -1 for SampleS8.
func Normalize(k SampleKind, raw uint32) (float32, error) {
	switch k {
	case SampleU8:
		return float32(uint8(raw)), nil
	case SampleS8:
		return float32(int8(uint8(raw))), nil
	case SampleU16:
		return float32(uint16(raw)), nil
	case SampleS16:
		return float32(int16(uint16(raw))), nil
	case SampleS32:
		return float32(int32(raw)), nil
	case SampleF32:
		return math.Float32frombits(raw), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedSampleWidth, k)
	}
}

// encodeSample converts v to the bit pattern stored for kind k. Integer kinds
// truncate toward zero; callers are expected to pass in-range values.
func encodeSample(k SampleKind, v float32) uint32 {
	switch k {
	case SampleU8:
		return uint32(uint8(v))
	case SampleS8:
		return uint32(uint8(int8(v)))
	case SampleU16:
		return uint32(uint16(v))
	case SampleS16:
		return uint32(uint16(int16(v)))
	case SampleS32:
		return uint32(int32(v))
	case SampleF32:
		return math.Float32bits(v)
	default:
		return 0
	}
}
