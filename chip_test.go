package it8951

import (
	"encoding/binary"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// fakeChip is a conn.Conn that records every transaction as words and
// answers reads from a queue. It raises HRDY after each transaction unless
// silent is set.
type fakeChip struct {
	mu      sync.Mutex
	hrdy    *gpiotest.Pin
	tx      [][]uint16
	replies [][]uint16
	fill    uint16 // Reply word once the queue is empty
	silent  bool
	maxTx   int
	err     error
}

func newFakeChip() *fakeChip {
	return &fakeChip{
		hrdy: &gpiotest.Pin{N: "HRDY", EdgesChan: make(chan gpio.Level, 64)},
	}
}

func (c *fakeChip) String() string {
	return "fakeChip"
}

func (c *fakeChip) Duplex() conn.Duplex {
	return conn.Full
}

func (c *fakeChip) MaxTxSize() int {
	return c.maxTx
}

func (c *fakeChip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}

	words := make([]uint16, len(w)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(w[2*i:])
	}
	c.tx = append(c.tx, words)

	if len(words) > 2 && words[0] == preambleRead {
		var reply []uint16
		if len(c.replies) > 0 {
			reply, c.replies = c.replies[0], c.replies[1:]
		}
		for i := 2; i < len(words); i++ {
			v := c.fill
			if i-2 < len(reply) {
				v = reply[i-2]
			}
			binary.BigEndian.PutUint16(r[2*i:], v)
		}
	}

	if !c.silent {
		c.edge()
	}
	return nil
}

func (c *fakeChip) edge() {
	select {
	case c.hrdy.EdgesChan <- gpio.High:
	default:
	}
}

func (c *fakeChip) queue(words ...uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, words)
}

func (c *fakeChip) transactions() [][]uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]uint16(nil), c.tx...)
}

func (c *fakeChip) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tx = nil
}

// record is a command with the data words written after it.
type record struct {
	code  uint16
	words []uint16
}

func (c *fakeChip) records() []record {
	var out []record
	for _, t := range c.transactions() {
		switch t[0] {
		case preambleCommand:
			out = append(out, record{code: t[1]})
		case preambleWrite:
			if len(out) > 0 {
				last := &out[len(out)-1]
				last.words = append(last.words, t[1:]...)
			}
		}
	}
	return out
}

func (c *fakeChip) codes() []uint16 {
	var out []uint16
	for _, r := range c.records() {
		out = append(out, r.code)
	}
	return out
}

type refresh struct {
	r    image.Rectangle
	mode Mode
}

// refreshes returns the DPY_AREA commands sent.
func (c *fakeChip) refreshes() []refresh {
	var out []refresh
	for _, r := range c.records() {
		if r.code != cmdDpyArea {
			continue
		}
		w := r.words
		out = append(out, refresh{
			r:    image.Rect(int(w[0]), int(w[1]), int(w[0]+w[2]), int(w[1]+w[3])),
			mode: Mode(w[4]),
		})
	}
	return out
}

// loads returns the LD_IMG_AREA commands sent.
func (c *fakeChip) loads() []record {
	var out []record
	for _, r := range c.records() {
		if r.code == cmdLoadImgArea {
			out = append(out, r)
		}
	}
	return out
}

// resetPin records RST levels and raises HRDY when RST is released.
type resetPin struct {
	*gpiotest.Pin
	chip   *fakeChip
	levels []gpio.Level
}

func (p *resetPin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	if l == gpio.High {
		p.chip.edge()
	}
	return p.Pin.Out(l)
}

// stringWords encodes s two characters per word, high byte first, padded to
// n words.
func stringWords(s string, n int) []uint16 {
	b := make([]byte, 2*n)
	copy(b, s)
	w := make([]uint16, n)
	for i := range w {
		w[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return w
}

func devInfoReply(width, height uint16, addr uint32, fw, lut string) []uint16 {
	w := []uint16{width, height, uint16(addr), uint16(addr >> 16)}
	w = append(w, stringWords(fw, 8)...)
	return append(w, stringWords(lut, 8)...)
}

const testAddr = 0x0012_36E0

func testOpts() *Opts {
	nop := zerolog.Nop()
	o := DefaultOpts()
	o.VCOM = -1.5
	o.ResetPulse = time.Millisecond
	o.PollInterval = time.Millisecond
	o.Logger = &nop
	return o
}

// newTestDev initializes a Dev against an 800x600 fake chip whose VCOM
// already matches opts.
func newTestDev(t *testing.T, opts *Opts) (*Dev, *fakeChip) {
	t.Helper()
	if opts == nil {
		opts = testOpts()
	}
	o, err := opts.normalize()
	require.NoError(t, err)

	chip := newFakeChip()
	chip.queue(devInfoReply(800, 600, testAddr, "v.0.2.3T", "M641")...)
	chip.queue(vcomMillivolts(o.VCOM))
	rst := &resetPin{Pin: &gpiotest.Pin{N: "RST"}, chip: chip}

	d, err := newDev(chip, rst, chip.hrdy, o)
	require.NoError(t, err)
	t.Cleanup(d.bus.ready.close)
	chip.clear()
	return d, chip
}

func whiteGray(r image.Rectangle) *image.Gray {
	img := image.NewGray(r)
	fillWhite(img)
	return img
}
