package mesh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ColorEncoding is the element type a color channel is stored with.
type ColorEncoding int

const (
	ColorAbsent  ColorEncoding = iota // No color data
	ColorUint8                        // 8-bit unsigned per component, 255 = 1.0
	ColorFloat32                      // 32-bit float per component in [0, 1]
)

// String returns a human-readable encoding name.
func (e ColorEncoding) String() string {
	switch e {
	case ColorAbsent:
		return "absent"
	case ColorUint8:
		return "uint8"
	case ColorFloat32:
		return "float32"
	default:
		return fmt.Sprintf("Unknown(%d)", int(e))
	}
}

// ParseColorEncoding maps a configuration value to an encoding.
func ParseColorEncoding(s string) (ColorEncoding, error) {
	switch s {
	case "", "float", "float32":
		return ColorFloat32, nil
	case "uint8", "byte":
		return ColorUint8, nil
	default:
		return ColorAbsent, fmt.Errorf("unknown color encoding %q", s)
	}
}

// RGBA8 is an 8-bit RGBA color.
type RGBA8 [4]uint8

// ColorChannel is a vertex color channel in exactly one encoding.
// The zero value is an absent channel.
type ColorChannel struct {
	encoding ColorEncoding
	bytes    []RGBA8
	floats   []mgl32.Vec4
}

// Uint8Colors wraps 8-bit colors. A nil slice yields an absent channel.
func Uint8Colors(c []RGBA8) ColorChannel {
	if c == nil {
		return ColorChannel{}
	}
	return ColorChannel{encoding: ColorUint8, bytes: c}
}

// FloatColors wraps float colors. A nil slice yields an absent channel.
func FloatColors(c []mgl32.Vec4) ColorChannel {
	if c == nil {
		return ColorChannel{}
	}
	return ColorChannel{encoding: ColorFloat32, floats: c}
}

// FromRGB8 builds a channel from 8-bit source red/green/blue values with
// alpha fixed at full opacity, stored in the requested encoding.
func FromRGB8(rgb [][3]uint8, enc ColorEncoding) ColorChannel {
	switch enc {
	case ColorUint8:
		out := make([]RGBA8, len(rgb))
		for i, c := range rgb {
			out[i] = RGBA8{c[0], c[1], c[2], 255}
		}
		return Uint8Colors(out)
	case ColorFloat32:
		out := make([]mgl32.Vec4, len(rgb))
		for i, c := range rgb {
			out[i] = mgl32.Vec4{float32(c[0]) / 255, float32(c[1]) / 255, float32(c[2]) / 255, 1}
		}
		return FloatColors(out)
	default:
		return ColorChannel{}
	}
}

// Encoding returns the stored encoding.
func (c ColorChannel) Encoding() ColorEncoding {
	return c.encoding
}

// IsAbsent reports whether the channel carries no data.
func (c ColorChannel) IsAbsent() bool {
	return c.encoding == ColorAbsent
}

// Len returns the number of colors.
func (c ColorChannel) Len() int {
	switch c.encoding {
	case ColorUint8:
		return len(c.bytes)
	case ColorFloat32:
		return len(c.floats)
	}
	return 0
}

// Floats returns the colors as floats, converting 8-bit values by /255.
func (c ColorChannel) Floats() []mgl32.Vec4 {
	switch c.encoding {
	case ColorFloat32:
		return c.floats
	case ColorUint8:
		out := make([]mgl32.Vec4, len(c.bytes))
		for i, b := range c.bytes {
			out[i] = mgl32.Vec4{float32(b[0]) / 255, float32(b[1]) / 255, float32(b[2]) / 255, float32(b[3]) / 255}
		}
		return out
	}
	return nil
}

// Bytes returns the colors as 8-bit values, clamping floats to [0, 1].
func (c ColorChannel) Bytes() []RGBA8 {
	switch c.encoding {
	case ColorUint8:
		return c.bytes
	case ColorFloat32:
		out := make([]RGBA8, len(c.floats))
		for i, f := range c.floats {
			for k := 0; k < 4; k++ {
				out[i][k] = uint8(mgl32.Clamp(f[k], 0, 1)*255 + 0.5)
			}
		}
		return out
	}
	return nil
}

// Convert returns the channel re-encoded as enc. Converting to ColorAbsent
// drops the data; converting an absent channel yields an absent channel.
func (c ColorChannel) Convert(enc ColorEncoding) ColorChannel {
	if c.IsAbsent() || enc == c.encoding {
		return c
	}
	switch enc {
	case ColorUint8:
		return Uint8Colors(c.Bytes())
	case ColorFloat32:
		return FloatColors(c.Floats())
	}
	return ColorChannel{}
}
