package it8951

import (
	"image"
)

// Frame returns the frame buffer. Draw into it directly, then call
// DrawPartial or DrawFull to show the result. Pixels are 8-bit gray, 0 black
// and 255 white.
func (d *Dev) Frame() *image.Gray {
	return d.frame
}

// DrawFull sends the whole frame and refreshes the entire panel with mode.
func (d *Dev) DrawFull(mode Mode) error {
	if d.halted {
		return ErrHalted
	}
	return d.drawFull(d.view(), mode)
}

func (d *Dev) drawFull(v *image.Gray, mode Mode) error {
	if err := d.update(v, d.rect, mode); err != nil {
		return err
	}
	if mode.twoLevel() {
		// Even a full two-level refresh leaves residue where pixels changed.
		changed := d.rect
		if d.prev != nil {
			changed = roundBox(diffBox(d.prev, v), d.align, d.rect)
		}
		d.grayChange = mergeBox(d.grayChange, changed)
	} else {
		d.grayChange = image.Rectangle{}
	}
	d.snapshot(v)
	return nil
}

// DrawPartial sends only the aligned rectangle that changed since the last
// refresh. Areas refreshed with a two-level mode are remembered and redrawn
// by the next refresh using any other mode.
//
// Before the first refresh it behaves as DrawFull. If nothing changed nothing
// is sent.
func (d *Dev) DrawPartial(mode Mode) error {
	if d.halted {
		return ErrHalted
	}
	v := d.view()
	if d.prev == nil {
		return d.drawFull(v, mode)
	}

	box := roundBox(diffBox(d.prev, v), d.align, d.rect)
	if box.Empty() {
		return nil
	}
	acc := mergeBox(d.grayChange, box)
	if !mode.twoLevel() {
		box = roundBox(acc, d.align, d.rect)
		acc = image.Rectangle{}
	}

	d.log.Debug().Stringer("area", box).Stringer("mode", mode).Msg("partial refresh")
	if err := d.update(v, box, mode); err != nil {
		return err
	}
	d.grayChange = acc
	d.snapshot(v)
	return nil
}

// Clear fills the frame with white and refreshes the panel with ModeInit.
func (d *Dev) Clear() error {
	if d.halted {
		return ErrHalted
	}
	fillWhite(d.frame)
	return d.drawFull(d.view(), ModeInit)
}

// update transmits area r of v and refreshes it with mode.
func (d *Dev) update(v *image.Gray, r image.Rectangle, mode Mode) error {
	pix := cropPix(v, r)
	if mode.twoLevel() {
		quantize(pix, d.opts.Threshold)
	}
	if err := d.waitDisplayReady(); err != nil {
		return err
	}
	if err := d.loadImageArea(pix, d.opts.Format, Rotate0, r); err != nil {
		return err
	}
	return d.displayArea(r, mode)
}

// view returns the frame in panel orientation. When the panel is not rotated
// this is the frame itself.
func (d *Dev) view() *image.Gray {
	if !d.opts.Rotated {
		return d.frame
	}
	return rotate180(d.frame)
}

// snapshot records v as the panel contents.
func (d *Dev) snapshot(v *image.Gray) {
	if v == d.frame {
		v = cloneGray(v)
	}
	d.prev = v
}

func rotate180(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		ry := b.Max.Y - 1 - (y - b.Min.Y)
		for x := b.Min.X; x < b.Max.X; x++ {
			rx := b.Max.X - 1 - (x - b.Min.X)
			dst.Pix[dst.PixOffset(rx, ry)] = src.Pix[src.PixOffset(x, y)]
		}
	}
	return dst
}

func cloneGray(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		copy(dst.Pix[dst.PixOffset(b.Min.X, y):][:b.Dx()], src.Pix[src.PixOffset(b.Min.X, y):])
	}
	return dst
}

// cropPix copies area r of src into a new row-major slice.
func cropPix(src *image.Gray, r image.Rectangle) []byte {
	w := r.Dx()
	pix := make([]byte, 0, w*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := src.PixOffset(r.Min.X, y)
		pix = append(pix, src.Pix[i:i+w]...)
	}
	return pix
}

// quantize maps every pixel to black or white.
func quantize(pix []byte, threshold uint8) {
	for i, p := range pix {
		if p < threshold {
			pix[i] = 0x00
		} else {
			pix[i] = 0xFF
		}
	}
}

func fillWhite(img *image.Gray) {
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
}
