package it8951

import (
	"bytes"
	"image"
)

// roundBox grows r outward so every edge is a multiple of align, then clips
// it to bounds. An empty r stays empty.
func roundBox(r image.Rectangle, align int, bounds image.Rectangle) image.Rectangle {
	if r.Empty() {
		return image.Rectangle{}
	}
	r.Min.X -= mod(r.Min.X, align)
	r.Min.Y -= mod(r.Min.Y, align)
	r.Max.X += mod(-r.Max.X, align)
	r.Max.Y += mod(-r.Max.Y, align)
	return r.Intersect(bounds)
}

// mergeBox returns the smallest rectangle containing a and b. An empty
// operand is ignored; two empty operands give the zero rectangle.
func mergeBox(a, b image.Rectangle) image.Rectangle {
	u := a.Union(b)
	if u.Empty() {
		return image.Rectangle{}
	}
	return u
}

// diffBox returns the bounding box of the pixels that differ between a and b,
// or an empty rectangle when they are identical. Both images must share the
// same bounds.
func diffBox(a, b *image.Gray) image.Rectangle {
	r := a.Bounds()
	w := r.Dx()
	var box image.Rectangle
	for y := r.Min.Y; y < r.Max.Y; y++ {
		ra := a.Pix[a.PixOffset(r.Min.X, y):][:w]
		rb := b.Pix[b.PixOffset(r.Min.X, y):][:w]
		if bytes.Equal(ra, rb) {
			continue
		}
		x0 := 0
		for ra[x0] == rb[x0] {
			x0++
		}
		x1 := w
		for ra[x1-1] == rb[x1-1] {
			x1--
		}
		box = box.Union(image.Rect(r.Min.X+x0, y, r.Min.X+x1, y+1))
	}
	return box
}

// mod returns a modulo m in [0, m).
func mod(a, m int) int {
	v := a % m
	if v < 0 {
		v += m
	}
	return v
}
