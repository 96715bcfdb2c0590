package it8951

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/it8951/pixpack"
)

var (
	// ErrHalted is returned by every operation after Halt.
	ErrHalted = errors.New("it8951: halted")
	// ErrInvalidVCOM is returned when a VCOM voltage is not in (-5, 0).
	ErrInvalidVCOM = errors.New("it8951: vcom must be between -5 and 0 volts")
	// ErrInvalidOpts is returned by NewSPI for an unusable configuration.
	ErrInvalidOpts = errors.New("it8951: invalid options")
	// ErrInvalidSize is returned when pixel data does not match its area.
	ErrInvalidSize = errors.New("it8951: invalid buffer size")
	// ErrDisplayBusy is returned when a refresh does not finish in time.
	ErrDisplayBusy = errors.New("it8951: display busy")
)

// Mode is a controller refresh (waveform) mode.
type Mode uint16

const (
	ModeInit  Mode = 0 // Full clear, resets waveform state
	ModeDU    Mode = 1 // Fast, black and white only
	ModeGC16  Mode = 2 // Full quality 16 level grayscale
	ModeGL16  Mode = 3
	ModeGLR16 Mode = 4
	ModeGLD16 Mode = 5
	ModeA2    Mode = 6 // Fastest, black and white only
	ModeDU4   Mode = 7
)

var modeNames = [...]string{"INIT", "DU", "GC16", "GL16", "GLR16", "GLD16", "A2", "DU4"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint16(m))
}

// twoLevel reports whether the waveform can only show black and white.
// Refreshes in these modes leave residue and are tracked for cleanup.
func (m Mode) twoLevel() bool {
	return m == ModeDU || m == ModeA2
}

// Rotation is applied by the controller while loading an image.
type Rotation uint16

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 1
	Rotate180 Rotation = 2
	Rotate270 Rotation = 3
)

// Endian selects the byte order of loaded image words.
type Endian uint16

const (
	LittleEndian Endian = 0
	BigEndian    Endian = 1
)

// DeviceInfo describes the panel as reported by the controller.
type DeviceInfo struct {
	Width           int
	Height          int
	ImageBufferAddr uint32
	FirmwareVersion string
	LUTVersion      string
}

// Stats holds bus health counters.
type Stats struct {
	// ReadyTimeouts counts handshakes where HRDY never rose. A steadily
	// growing value points at a wiring or hardware fault.
	ReadyTimeouts uint64
}

// Opts is the configuration for the IT8951 display.
//
// Start from DefaultOpts; zero durations and sizes fall back to defaults, but
// Format and DrawMode are used as given.
type Opts struct {
	// VCOM is the panel bias voltage printed on the FPC cable, e.g. -2.06.
	VCOM float64

	Rotated  bool           // Panel mounted upside down (180°)
	DrawMode Mode           // Mode used by Draw
	Format   pixpack.Format // Pixel depth for image loads and refreshes

	Align int // Update rectangle alignment in pixels (default: 4)

	// Threshold is the black/white cut-off for two-level modes: pixels below
	// it turn black (default: 128). Zero selects the default, since a cut-off
	// of zero would blank every two-level refresh; use 1 to keep only pure
	// black.
	Threshold uint8

	// Bus
	Freq         physic.Frequency // SPI clock (default: 4MHz, max 12MHz)
	ChunkWords   int              // Max words per write transaction (default: 1024)
	ReadyTimeout time.Duration    // HRDY wait per transaction (default: 1s)
	ResetPulse   time.Duration    // RST low time (default: 100ms)
	ResetTimeout time.Duration    // HRDY wait after reset (default: 5s)

	// Refresh
	PollInterval   time.Duration // LUTAFSR poll interval (default: 10ms)
	DisplayTimeout time.Duration // Max wait for a refresh to end (default: 30s)

	Clock  clockwork.Clock // default: real clock
	Logger *zerolog.Logger // default: global zerolog logger
}

// DefaultOpts returns the configuration used when NewSPI gets nil.
func DefaultOpts() *Opts {
	return &Opts{
		VCOM:           -2.06,
		DrawMode:       ModeGC16,
		Format:         pixpack.Format4bpp,
		Align:          4,
		Threshold:      128,
		Freq:           4 * physic.MegaHertz,
		ChunkWords:     1024,
		ReadyTimeout:   time.Second,
		ResetPulse:     100 * time.Millisecond,
		ResetTimeout:   5 * time.Second,
		PollInterval:   10 * time.Millisecond,
		DisplayTimeout: 30 * time.Second,
	}
}

// maxChunkWords keeps a write transaction within the 4KiB spidev default.
const maxChunkWords = 2047

// normalize validates o and returns a copy with defaults filled in.
func (o *Opts) normalize() (Opts, error) {
	if o == nil {
		o = DefaultOpts()
	}
	n := *o
	if err := validateVCOM(n.VCOM); err != nil {
		return n, err
	}
	if !n.Format.Valid() {
		return n, fmt.Errorf("%w: pixel format %d", ErrInvalidOpts, uint16(n.Format))
	}
	if n.DrawMode > ModeDU4 {
		return n, fmt.Errorf("%w: draw mode %d", ErrInvalidOpts, uint16(n.DrawMode))
	}
	if n.Align < 0 || n.ChunkWords < 0 || n.ChunkWords > maxChunkWords {
		return n, fmt.Errorf("%w: align %d, chunk %d words", ErrInvalidOpts, n.Align, n.ChunkWords)
	}
	if n.ReadyTimeout < 0 || n.ResetPulse < 0 || n.ResetTimeout < 0 ||
		n.PollInterval < 0 || n.DisplayTimeout < 0 {
		return n, fmt.Errorf("%w: negative duration", ErrInvalidOpts)
	}

	def := DefaultOpts()
	if n.Align == 0 {
		n.Align = def.Align
	}
	if n.Threshold == 0 {
		n.Threshold = def.Threshold
	}
	if n.Freq == 0 {
		n.Freq = def.Freq
	}
	if n.ChunkWords == 0 {
		n.ChunkWords = def.ChunkWords
	}
	if n.ReadyTimeout == 0 {
		n.ReadyTimeout = def.ReadyTimeout
	}
	if n.ResetPulse == 0 {
		n.ResetPulse = def.ResetPulse
	}
	if n.ResetTimeout == 0 {
		n.ResetTimeout = def.ResetTimeout
	}
	if n.PollInterval == 0 {
		n.PollInterval = def.PollInterval
	}
	if n.DisplayTimeout == 0 {
		n.DisplayTimeout = def.DisplayTimeout
	}
	if n.Clock == nil {
		n.Clock = clockwork.NewRealClock()
	}
	if n.Logger == nil {
		l := log.Logger.With().Str("dev", "it8951").Logger()
		n.Logger = &l
	}
	return n, nil
}

// Dev is the device handle for an IT8951 controlled panel.
type Dev struct {
	bus  *bus
	opts Opts
	log  zerolog.Logger
	info DeviceInfo

	rect  image.Rectangle
	align int

	// Pixel buffers
	frame *image.Gray // Current frame, drawn into by the caller
	prev  *image.Gray // Panel view at the last refresh, nil before the first

	// Union of two-level refreshes since the last grayscale one
	grayChange image.Rectangle

	halted bool
}

// NewSPI creates a new IT8951 device connected via SPI.
//
// rst is the active low reset line and hrdy the controller's ready output;
// hrdy must support edge detection. The controller is reset, queried for its
// panel geometry, switched to packed transfer mode and its VCOM programmed.
//
// opts can be nil to use DefaultOpts.
func NewSPI(p spi.Port, rst gpio.PinOut, hrdy gpio.PinIn, opts *Opts) (*Dev, error) {
	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	// The IT8951 host SPI interface is Mode0, MSB first.
	c, err := p.Connect(o.Freq, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("it8951: failed to connect SPI: %w", err)
	}
	return newDev(c, rst, hrdy, o)
}

func newDev(c conn.Conn, rst gpio.PinOut, hrdy gpio.PinIn, o Opts) (*Dev, error) {
	chunk := o.ChunkWords
	if l, ok := c.(conn.Limits); ok {
		if m := l.MaxTxSize()/2 - 1; m > 0 && m < chunk {
			chunk = m
		}
	}

	lg := *o.Logger
	ready, err := newReadyLine(hrdy, o.Clock, lg)
	if err != nil {
		return nil, err
	}

	d := &Dev{
		bus: &bus{
			c:            c,
			rst:          rst,
			ready:        ready,
			clock:        o.Clock,
			log:          lg,
			chunk:        chunk,
			timeout:      o.ReadyTimeout,
			resetPulse:   o.ResetPulse,
			resetTimeout: o.ResetTimeout,
		},
		opts:  o,
		log:   lg,
		align: lcm(o.Align, o.Format.PixelsPerWord()),
	}

	if err := d.init(); err != nil {
		ready.close()
		return nil, err
	}
	return d, nil
}

// init resets the controller and brings it to a known configuration.
func (d *Dev) init() error {
	if err := d.bus.reset(); err != nil {
		return err
	}

	info, err := d.queryDeviceInfo()
	if err != nil {
		return err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return fmt.Errorf("it8951: controller reported a %dx%d panel", info.Width, info.Height)
	}
	if info.Width%d.align != 0 {
		return fmt.Errorf("%w: panel width %d is not a multiple of %d", ErrInvalidOpts, info.Width, d.align)
	}
	d.info = info
	d.log.Info().
		Int("width", info.Width).
		Int("height", info.Height).
		Str("firmware", info.FirmwareVersion).
		Str("lut", info.LUTVersion).
		Msgf("image buffer at 0x%X", info.ImageBufferAddr)

	d.rect = image.Rect(0, 0, info.Width, info.Height)
	d.frame = image.NewGray(d.rect)
	fillWhite(d.frame)

	if err := d.setImageBufferAddr(info.ImageBufferAddr); err != nil {
		return err
	}
	// Packed mode lets loads stream words without per-word addressing.
	if err := d.writeRegister(regI80CPCR, 1); err != nil {
		return err
	}

	cur, err := d.readVCOM()
	if err != nil {
		return err
	}
	if cur != vcomMillivolts(d.opts.VCOM) {
		return d.writeVCOM(d.opts.VCOM)
	}
	return nil
}

// Info returns the panel description read at initialization.
func (d *Dev) Info() DeviceInfo {
	return d.info
}

// Stats returns bus health counters.
func (d *Dev) Stats() Stats {
	return Stats{ReadyTimeouts: d.bus.ready.timeouts.Load()}
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return color.GrayModel
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw draws src onto the frame buffer and refreshes the changed area with
// Opts.DrawMode.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if d.halted {
		return ErrHalted
	}

	dst = dst.Intersect(d.rect)
	if dst.Empty() {
		return nil
	}
	draw.Draw(d.frame, dst, src, sp, draw.Src)
	return d.DrawPartial(d.opts.DrawMode)
}

// Halt puts the controller to sleep and releases the HRDY watcher.
// After calling Halt the device must be re-created.
func (d *Dev) Halt() error {
	if d.halted {
		return nil
	}
	d.halted = true
	err := d.bus.writeCommand(cmdSleep, true)
	d.bus.ready.close()
	return err
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("it8951.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}

func lcm(a, b int) int {
	x, y := a, b
	for y != 0 {
		x, y = y, x%y
	}
	return a / x * b
}

var _ display.Drawer = (*Dev)(nil)
