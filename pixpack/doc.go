// Package pixpack packs one-byte-per-pixel grayscale data into the 16-bit
// words the IT8951 controller accepts during an image load.
//
// The controller takes pixels least significant field first: in a 4bpp word
// the first pixel of the group sits in bits 0-3 and the fourth in bits 12-15.
//
// Memory layout example for four 4bpp pixels:
//
//	Pixels: 0     1     2     3
//	Values: 0x00  0x10  0x20  0x30
//	Word:   0x3210
//
// Supported formats:
//
//	Format  Pixels/word  Field
//	2bpp    8            top 2 bits of the source byte
//	3bpp    4            bits 1-7 (mask 0xFE) shifted into a 4-bit field
//	4bpp    4            top 4 bits
//	8bpp    2            whole byte
//
// Example usage:
//
//	words := pixpack.Pack(img.Pix, pixpack.Format4bpp)
package pixpack
