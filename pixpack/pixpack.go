package pixpack

import "fmt"

// Format is the pixel depth used for an image load. The numeric value is the
// one the controller expects in the pixel format field of the load argument.
type Format uint16

const (
	Format2bpp Format = 0
	Format3bpp Format = 1
	Format4bpp Format = 2
	Format8bpp Format = 3
)

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return f <= Format8bpp
}

// PixelsPerWord returns how many source pixels one packed word holds.
// Callers must pass Pack a multiple of this many pixels.
func (f Format) PixelsPerWord() int {
	switch f {
	case Format2bpp:
		return 8
	case Format8bpp:
		return 2
	default:
		return 4
	}
}

// BitsPerPixel returns the number of significant bits kept per pixel.
func (f Format) BitsPerPixel() int {
	switch f {
	case Format2bpp:
		return 2
	case Format3bpp:
		return 3
	case Format8bpp:
		return 8
	default:
		return 4
	}
}

func (f Format) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Format(%d)", uint16(f))
	}
	return fmt.Sprintf("%dbpp", f.BitsPerPixel())
}

// fieldBits is the width of one pixel inside a packed word.
func (f Format) fieldBits() uint {
	return uint(16 / f.PixelsPerWord())
}

// field extracts the bits of p that survive packing, right aligned in the
// pixel's field.
func (f Format) field(p byte) uint16 {
	switch f {
	case Format2bpp:
		return uint16(p >> 6)
	case Format3bpp:
		return uint16(p&0xFE) >> 4
	case Format8bpp:
		return uint16(p)
	default:
		return uint16(p >> 4)
	}
}

// Pack converts pix, one byte per pixel, into len(pix)/PixelsPerWord words.
// The first pixel of each group lands in the least significant field.
// len(pix) must be a multiple of f.PixelsPerWord(); a trailing partial group
// is dropped.
func Pack(pix []byte, f Format) []uint16 {
	n := f.PixelsPerWord()
	shift := f.fieldBits()
	words := make([]uint16, len(pix)/n)
	for i := range words {
		group := pix[i*n : i*n+n]
		var w uint16
		for j := n - 1; j >= 0; j-- {
			w = w<<shift | f.field(group[j])
		}
		words[i] = w
	}
	return words
}
