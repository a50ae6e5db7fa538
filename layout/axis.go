package layout

import (
	"fmt"
	"strings"
)

// Axis names one of the three non-batch image axes.
type Axis int

const (
	Height Axis = iota
	Width
	Channel
)

func (a Axis) String() string {
	switch a {
	case Height:
		return "height"
	case Width:
		return "width"
	case Channel:
		return "channel"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// AxisOrder assigns a symbolic axis to each of a tensor's three trailing
// positions. AxisOrder{Channel, Height, Width} lays images out as NCHW.
type AxisOrder [3]Axis

var (
	NaturalOrder      = AxisOrder{Height, Width, Channel}
	ChannelFirstOrder = AxisOrder{Channel, Height, Width}
)

// Validate reports ErrInvalidAxisOrder unless o is a permutation.
func (o AxisOrder) Validate() error {
	var seen [3]bool
	for _, a := range o {
		if a < Height || a > Channel || seen[a] {
			return fmt.Errorf("%w: %v", ErrInvalidAxisOrder, [3]Axis(o))
		}
		seen[a] = true
	}
	return nil
}

// Position returns the trailing tensor position that holds axis a.
func (o AxisOrder) Position(a Axis) int {
	for i, x := range o {
		if x == a {
			return i
		}
	}
	return -1
}

// permute maps per-axis values (height, width, channel) to tensor positions.
func (o AxisOrder) permute(v [3]int) [3]int {
	return [3]int{v[o[0]], v[o[1]], v[o[2]]}
}

func (o AxisOrder) String() string {
	switch o {
	case NaturalOrder:
		return "NHWC"
	case ChannelFirstOrder:
		return "NCHW"
	}
	return fmt.Sprintf("N%c%c%c", axisLetter(o[0]), axisLetter(o[1]), axisLetter(o[2]))
}

func axisLetter(a Axis) byte {
	switch a {
	case Height:
		return 'H'
	case Width:
		return 'W'
	case Channel:
		return 'C'
	}
	return '?'
}

// ParseAxisOrder accepts layout strings such as "NHWC", "NCHW", "HWC" or
// "CHW" (case-insensitive).
func ParseAxisOrder(s string) (AxisOrder, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "N")
	if len(s) != 3 {
		return AxisOrder{}, fmt.Errorf("%w: %q", ErrInvalidAxisOrder, s)
	}
	var o AxisOrder
	for i := 0; i < 3; i++ {
		switch s[i] {
		case 'H':
			o[i] = Height
		case 'W':
			o[i] = Width
		case 'C':
			o[i] = Channel
		default:
			return AxisOrder{}, fmt.Errorf("%w: %q", ErrInvalidAxisOrder, s)
		}
	}
	if err := o.Validate(); err != nil {
		return AxisOrder{}, err
	}
	return o, nil
}
