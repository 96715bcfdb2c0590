package it8951

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Host interface preambles. Every SPI transaction starts with one of these.
const (
	preambleCommand uint16 = 0x6000
	preambleWrite   uint16 = 0x0000
	preambleRead    uint16 = 0x1000
)

// bus moves 16-bit words to and from the controller. Each gated transaction
// primes the ready flag, transfers, then waits for HRDY.
type bus struct {
	c     conn.Conn
	rst   gpio.PinOut
	ready *readyLine
	clock clockwork.Clock
	log   zerolog.Logger

	chunk        int
	timeout      time.Duration
	resetPulse   time.Duration
	resetTimeout time.Duration
}

// transfer exchanges words full duplex. Words travel big endian.
func (b *bus) transfer(words []uint16) ([]uint16, error) {
	w := make([]byte, 2*len(words))
	for i, v := range words {
		binary.BigEndian.PutUint16(w[2*i:], v)
	}
	r := make([]byte, len(w))
	if err := b.c.Tx(w, r); err != nil {
		return nil, fmt.Errorf("it8951: spi transfer failed: %w", err)
	}
	out := make([]uint16, len(words))
	for i := range out {
		out[i] = binary.BigEndian.Uint16(r[2*i:])
	}
	return out, nil
}

// writeCommand sends a command code. With wait set the transaction is gated
// on HRDY.
func (b *bus) writeCommand(code uint16, wait bool) error {
	if wait {
		b.ready.prime()
	}
	if _, err := b.transfer([]uint16{preambleCommand, code}); err != nil {
		return err
	}
	if wait {
		b.ready.wait(b.timeout, "command")
	}
	return nil
}

func (b *bus) writeData(word uint16) error {
	return b.writeWords([]uint16{word})
}

// writeWords streams words in chunks of at most b.chunk words, each chunk a
// separate gated transaction with its own write preamble.
func (b *bus) writeWords(words []uint16) error {
	for start := 0; start < len(words); start += b.chunk {
		end := min(start+b.chunk, len(words))
		buf := make([]uint16, 0, end-start+1)
		buf = append(buf, preambleWrite)
		buf = append(buf, words[start:end]...)

		b.ready.prime()
		if _, err := b.transfer(buf); err != nil {
			return err
		}
		b.ready.wait(b.timeout, "write")
	}
	return nil
}

// readWords reads count words. The controller answers one dummy word late,
// so count+1 words are clocked after the preamble and the first is dropped.
func (b *bus) readWords(count int) ([]uint16, error) {
	buf := make([]uint16, count+2)
	buf[0] = preambleRead

	b.ready.prime()
	r, err := b.transfer(buf)
	if err != nil {
		return nil, err
	}
	b.ready.wait(b.timeout, "read")
	return r[2:], nil
}

// reset pulses RST low and waits for the controller to come up.
func (b *bus) reset() error {
	b.log.Debug().Dur("pulse", b.resetPulse).Msg("resetting controller")
	if err := b.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("it8951: failed to pull RST low: %w", err)
	}
	b.clock.Sleep(b.resetPulse)

	b.ready.prime()
	if err := b.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("it8951: failed to pull RST high: %w", err)
	}
	b.ready.wait(b.resetTimeout, "reset")
	return nil
}
