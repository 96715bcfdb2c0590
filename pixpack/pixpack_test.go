package pixpack

import (
	"testing"

	"pgregory.net/rapid"
)

// unpack is the inverse of Pack: each field is expanded back to a byte with
// its bits left aligned.
func unpack(words []uint16, f Format) []byte {
	n := f.PixelsPerWord()
	shift := f.fieldBits()
	mask := uint16(1)<<shift - 1
	out := make([]byte, 0, len(words)*n)
	for _, w := range words {
		for j := 0; j < n; j++ {
			v := w >> (uint(j) * shift) & mask
			out = append(out, byte(v<<(8-shift)))
		}
	}
	return out
}

// truncate keeps the bits of p that fit its packed field.
func truncate(p byte, f Format) byte {
	return p & byte(0xFF<<(8-f.fieldBits()))
}

var formats = []Format{Format2bpp, Format3bpp, Format4bpp, Format8bpp}

func TestFormatGeometry(t *testing.T) {
	tests := []struct {
		f        Format
		perWord  int
		bits     int
		name     string
		fieldLen uint
	}{
		{Format2bpp, 8, 2, "2bpp", 2},
		{Format3bpp, 4, 3, "3bpp", 4},
		{Format4bpp, 4, 4, "4bpp", 4},
		{Format8bpp, 2, 8, "8bpp", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.PixelsPerWord(); got != tt.perWord {
				t.Errorf("PixelsPerWord() = %d, want %d", got, tt.perWord)
			}
			if got := tt.f.BitsPerPixel(); got != tt.bits {
				t.Errorf("BitsPerPixel() = %d, want %d", got, tt.bits)
			}
			if got := tt.f.fieldBits(); got != tt.fieldLen {
				t.Errorf("fieldBits() = %d, want %d", got, tt.fieldLen)
			}
			if got := tt.f.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if !tt.f.Valid() {
				t.Errorf("Valid() = false for %s", tt.name)
			}
		})
	}

	if Format(4).Valid() {
		t.Error("Format(4) should not be valid")
	}
	if got := Format(9).String(); got != "Format(9)" {
		t.Errorf("String() = %q, want Format(9)", got)
	}
}

func TestPack4bppGradient(t *testing.T) {
	pix := make([]byte, 16)
	for i := range pix {
		pix[i] = byte(i * 16)
	}

	words := Pack(pix, Format4bpp)
	want := []uint16{0x3210, 0x7654, 0xBA98, 0xFEDC}
	if len(words) != len(want) {
		t.Fatalf("len(words) = %d, want %d", len(words), len(want))
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("words[%d] = 0x%04X, want 0x%04X", i, words[i], want[i])
		}
	}
	// Top nibble of the first word is pixel 3.
	if words[0]>>12 != uint16(pix[3]>>4) {
		t.Errorf("top nibble = %X, want %X", words[0]>>12, pix[3]>>4)
	}
}

func TestPackKnownWords(t *testing.T) {
	tests := []struct {
		name string
		f    Format
		pix  []byte
		want []uint16
	}{
		{"8bpp low byte first", Format8bpp, []byte{0x12, 0x34, 0xAB, 0xCD}, []uint16{0x3412, 0xCDAB}},
		{"2bpp white", Format2bpp, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, []uint16{0xFFFF}},
		{"2bpp first pixel low", Format2bpp, []byte{0xC0, 0, 0, 0, 0, 0, 0, 0}, []uint16{0x0003}},
		{"2bpp last pixel high", Format2bpp, []byte{0, 0, 0, 0, 0, 0, 0, 0x40}, []uint16{0x4000}},
		{"3bpp drops low bits", Format3bpp, []byte{0xFF, 0x1F, 0x20, 0xE1}, []uint16{0xE21F}},
		{"3bpp keeps bit 4", Format3bpp, []byte{0x10, 0x30, 0x50, 0xFF}, []uint16{0xF531}},
		{"4bpp black", Format4bpp, []byte{0, 0, 0, 0}, []uint16{0}},
		{"empty input", Format4bpp, nil, []uint16{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pack(tt.pix, tt.f)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("word %d = 0x%04X, want 0x%04X", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPackDoesNotModifyInput(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	orig := append([]byte(nil), pix...)
	for _, f := range formats {
		Pack(pix, f)
	}
	for i := range pix {
		if pix[i] != orig[i] {
			t.Fatalf("Pack modified input at %d: %d != %d", i, pix[i], orig[i])
		}
	}
}

func TestPropertyPackRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := rapid.SampledFrom(formats).Draw(t, "format")
		groups := rapid.IntRange(0, 64).Draw(t, "groups")
		pix := rapid.SliceOfN(rapid.Byte(), groups*f.PixelsPerWord(), groups*f.PixelsPerWord()).Draw(t, "pix")

		words := Pack(pix, f)
		if len(words) != groups {
			t.Fatalf("%s: %d words for %d groups", f, len(words), groups)
		}

		got := unpack(words, f)
		for i, p := range pix {
			if want := truncate(p, f); got[i] != want {
				t.Fatalf("%s pixel %d: got 0x%02X, want 0x%02X (source 0x%02X)", f, i, got[i], want, p)
			}
		}
	})
}
