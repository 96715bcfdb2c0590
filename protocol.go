package it8951

import (
	"fmt"
	"image"
	"strings"

	"periph.io/x/devices/v3/it8951/pixpack"
)

// Host command codes.
const (
	cmdSysRun      uint16 = 0x0001
	cmdStandby     uint16 = 0x0002
	cmdSleep       uint16 = 0x0003
	cmdRegRead     uint16 = 0x0010
	cmdRegWrite    uint16 = 0x0011
	cmdLoadImg     uint16 = 0x0020
	cmdLoadImgArea uint16 = 0x0021
	cmdLoadImgEnd  uint16 = 0x0022
	cmdDpyArea     uint16 = 0x0034
	cmdDpyBufArea  uint16 = 0x0037
	cmdVCOM        uint16 = 0x0039
	cmdGetDevInfo  uint16 = 0x0302
)

// Registers.
const (
	regI80CPCR uint16 = 0x0004 // Packed transfer enable
	regLISAR   uint16 = 0x0208 // Load image start address, low half; high half at +2
	regLUTAFSR uint16 = 0x1224 // Nonzero while a refresh is running
)

// devInfoWords is the size of the GET_DEV_INFO reply.
const devInfoWords = 20

// queryDeviceInfo reads the panel geometry, image buffer address and
// version strings.
func (d *Dev) queryDeviceInfo() (DeviceInfo, error) {
	if err := d.bus.writeCommand(cmdGetDevInfo, true); err != nil {
		return DeviceInfo{}, err
	}
	w, err := d.bus.readWords(devInfoWords)
	if err != nil {
		return DeviceInfo{}, err
	}
	return decodeDeviceInfo(w), nil
}

func decodeDeviceInfo(w []uint16) DeviceInfo {
	return DeviceInfo{
		Width:           int(w[0]),
		Height:          int(w[1]),
		ImageBufferAddr: uint32(w[2]) | uint32(w[3])<<16,
		FirmwareVersion: wordsToString(w[4:12]),
		LUTVersion:      wordsToString(w[12:20]),
	}
}

// wordsToString unpacks two ASCII characters per word, high byte first.
func wordsToString(w []uint16) string {
	b := make([]byte, 0, 2*len(w))
	for _, v := range w {
		b = append(b, byte(v>>8), byte(v))
	}
	return strings.TrimRight(string(b), "\x00")
}

// sendCommandArgs sends an ungated command followed by each argument as its
// own gated data transaction.
func (d *Dev) sendCommandArgs(code uint16, args ...uint16) error {
	if err := d.bus.writeCommand(code, false); err != nil {
		return err
	}
	for _, a := range args {
		if err := d.bus.writeData(a); err != nil {
			return err
		}
	}
	return nil
}

// ReadRegister reads a controller register.
func (d *Dev) ReadRegister(addr uint16) (uint16, error) {
	if d.halted {
		return 0, ErrHalted
	}
	return d.readRegister(addr)
}

func (d *Dev) readRegister(addr uint16) (uint16, error) {
	if err := d.sendCommandArgs(cmdRegRead, addr); err != nil {
		return 0, err
	}
	w, err := d.bus.readWords(1)
	if err != nil {
		return 0, err
	}
	return w[0], nil
}

// WriteRegister writes a controller register.
func (d *Dev) WriteRegister(addr, val uint16) error {
	if d.halted {
		return ErrHalted
	}
	return d.writeRegister(addr, val)
}

func (d *Dev) writeRegister(addr, val uint16) error {
	return d.sendCommandArgs(cmdRegWrite, addr, val)
}

// setImageBufferAddr points image loads at addr, high half first.
func (d *Dev) setImageBufferAddr(addr uint32) error {
	if err := d.writeRegister(regLISAR+2, uint16(addr>>16)); err != nil {
		return err
	}
	return d.writeRegister(regLISAR, uint16(addr))
}

func validateVCOM(v float64) error {
	if !(v > -5 && v < 0) {
		return fmt.Errorf("%w: got %g", ErrInvalidVCOM, v)
	}
	return nil
}

// vcomMillivolts converts a (negative) voltage to the controller's unit,
// truncating toward zero.
func vcomMillivolts(v float64) uint16 {
	return uint16(int(-1000 * v))
}

// VCOM returns the controller's VCOM voltage.
func (d *Dev) VCOM() (float64, error) {
	if d.halted {
		return 0, ErrHalted
	}
	mv, err := d.readVCOM()
	if err != nil {
		return 0, err
	}
	return -float64(mv) / 1000, nil
}

func (d *Dev) readVCOM() (uint16, error) {
	if err := d.bus.writeCommand(cmdVCOM, true); err != nil {
		return 0, err
	}
	if err := d.bus.writeData(0); err != nil {
		return 0, err
	}
	w, err := d.bus.readWords(1)
	if err != nil {
		return 0, err
	}
	return w[0], nil
}

// SetVCOM programs the VCOM voltage. v must be in (-5, 0); anything else is
// rejected with ErrInvalidVCOM before touching the bus.
func (d *Dev) SetVCOM(v float64) error {
	if d.halted {
		return ErrHalted
	}
	return d.writeVCOM(v)
}

func (d *Dev) writeVCOM(v float64) error {
	if err := validateVCOM(v); err != nil {
		return err
	}
	d.log.Debug().Float64("vcom", v).Msg("setting VCOM")
	if err := d.bus.writeCommand(cmdVCOM, true); err != nil {
		return err
	}
	if err := d.bus.writeData(1); err != nil {
		return err
	}
	return d.bus.writeData(vcomMillivolts(v))
}

// loadArg builds the image load argument word.
func loadArg(f pixpack.Format, rot Rotation) uint16 {
	return uint16(LittleEndian)<<8 | uint16(f)<<4 | uint16(rot)
}

// LoadImage writes a whole panel worth of pixels, one byte each, to the
// controller's image buffer. Nothing changes on screen until DisplayArea.
func (d *Dev) LoadImage(pix []byte, rot Rotation) error {
	if d.halted {
		return ErrHalted
	}
	if len(pix) != d.rect.Dx()*d.rect.Dy() {
		return fmt.Errorf("%w: %d pixels for %v", ErrInvalidSize, len(pix), d.rect.Size())
	}
	if err := d.sendCommandArgs(cmdLoadImg, loadArg(d.opts.Format, rot)); err != nil {
		return err
	}
	return d.streamImage(pix, d.opts.Format)
}

// LoadImageArea writes pixels, one byte each in row order, to area r of the
// controller's image buffer, packed at Opts.Format.
func (d *Dev) LoadImageArea(pix []byte, rot Rotation, r image.Rectangle) error {
	if d.halted {
		return ErrHalted
	}
	return d.loadImageArea(pix, d.opts.Format, rot, r)
}

// LoadImageAreaFormat is LoadImageArea packing at f instead of Opts.Format.
// The pixel count must be a multiple of f.PixelsPerWord().
func (d *Dev) LoadImageAreaFormat(pix []byte, f pixpack.Format, rot Rotation, r image.Rectangle) error {
	if d.halted {
		return ErrHalted
	}
	if !f.Valid() {
		return fmt.Errorf("%w: pixel format %d", ErrInvalidOpts, uint16(f))
	}
	if len(pix)%f.PixelsPerWord() != 0 {
		return fmt.Errorf("%w: %d pixels do not fill %s words", ErrInvalidSize, len(pix), f)
	}
	return d.loadImageArea(pix, f, rot, r)
}

func (d *Dev) loadImageArea(pix []byte, f pixpack.Format, rot Rotation, r image.Rectangle) error {
	if len(pix) != r.Dx()*r.Dy() {
		return fmt.Errorf("%w: %d pixels for %v", ErrInvalidSize, len(pix), r)
	}
	d.log.Debug().Stringer("area", r).Stringer("format", f).Msg("loading image area")
	err := d.sendCommandArgs(cmdLoadImgArea,
		loadArg(f, rot),
		uint16(r.Min.X), uint16(r.Min.Y),
		uint16(r.Dx()), uint16(r.Dy()),
	)
	if err != nil {
		return err
	}
	return d.streamImage(pix, f)
}

func (d *Dev) streamImage(pix []byte, f pixpack.Format) error {
	if err := d.bus.writeWords(pixpack.Pack(pix, f)); err != nil {
		return err
	}
	return d.bus.writeCommand(cmdLoadImgEnd, false)
}

// DisplayArea refreshes area r of the panel from the image buffer using mode.
func (d *Dev) DisplayArea(r image.Rectangle, mode Mode) error {
	if d.halted {
		return ErrHalted
	}
	return d.displayArea(r, mode)
}

func (d *Dev) displayArea(r image.Rectangle, mode Mode) error {
	d.log.Debug().Stringer("area", r).Stringer("mode", mode).Msg("display area")
	return d.sendCommandArgs(cmdDpyArea,
		uint16(r.Min.X), uint16(r.Min.Y),
		uint16(r.Dx()), uint16(r.Dy()),
		uint16(mode),
	)
}

// DisplayBufferArea refreshes area r from the image buffer at addr instead of
// the configured one.
func (d *Dev) DisplayBufferArea(r image.Rectangle, mode Mode, addr uint32) error {
	if d.halted {
		return ErrHalted
	}
	return d.sendCommandArgs(cmdDpyBufArea,
		uint16(r.Min.X), uint16(r.Min.Y),
		uint16(r.Dx()), uint16(r.Dy()),
		uint16(mode),
		uint16(addr), uint16(addr>>16),
	)
}

// WaitDisplayReady blocks until no refresh is running. The controller drops
// image loads issued during a refresh, so call it before every load.
func (d *Dev) WaitDisplayReady() error {
	if d.halted {
		return ErrHalted
	}
	return d.waitDisplayReady()
}

func (d *Dev) waitDisplayReady() error {
	deadline := d.bus.clock.Now().Add(d.opts.DisplayTimeout)
	for {
		v, err := d.readRegister(regLUTAFSR)
		if err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
		if !d.bus.clock.Now().Before(deadline) {
			return fmt.Errorf("%w: LUTAFSR=0x%04X after %s", ErrDisplayBusy, v, d.opts.DisplayTimeout)
		}
		d.log.Debug().Uint16("lutafsr", v).Msg("display not ready")
		d.bus.clock.Sleep(d.opts.PollInterval)
	}
}

// Sleep puts the controller in sleep mode. Wake brings it back.
func (d *Dev) Sleep() error {
	if d.halted {
		return ErrHalted
	}
	return d.bus.writeCommand(cmdSleep, true)
}

// Standby puts the controller in standby mode.
func (d *Dev) Standby() error {
	if d.halted {
		return ErrHalted
	}
	return d.bus.writeCommand(cmdStandby, true)
}

// Wake returns the controller to the running state.
func (d *Dev) Wake() error {
	if d.halted {
		return ErrHalted
	}
	return d.bus.writeCommand(cmdSysRun, true)
}
