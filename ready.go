package it8951

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
)

// edgePoll bounds each WaitForEdge call so the watcher notices close.
const edgePoll = 100 * time.Millisecond

// readyLine turns HRDY rising edges into a one-slot ready flag.
//
// A watcher goroutine is the only writer. The bus clears the flag with prime
// before a transaction and consumes it with wait afterwards.
type readyLine struct {
	pin   gpio.PinIn
	clock clockwork.Clock
	log   zerolog.Logger

	flag     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	timeouts atomic.Uint64
}

func newReadyLine(pin gpio.PinIn, clock clockwork.Clock, log zerolog.Logger) (*readyLine, error) {
	if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("it8951: failed to configure HRDY pin %s: %w", pin, err)
	}
	r := &readyLine{
		pin:   pin,
		clock: clock,
		log:   log,
		flag:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go r.watch()
	return r, nil
}

func (r *readyLine) watch() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		if r.pin.WaitForEdge(edgePoll) {
			r.set()
		}
	}
}

func (r *readyLine) set() {
	select {
	case r.flag <- struct{}{}:
	default:
	}
}

// prime clears a pending ready flag.
func (r *readyLine) prime() {
	select {
	case <-r.flag:
	default:
	}
}

// wait blocks until the flag is set or timeout elapses. A timeout is logged
// and counted, never returned as an error: the controller tolerates a slow
// handshake and the caller carries on.
func (r *readyLine) wait(timeout time.Duration, op string) bool {
	select {
	case <-r.flag:
		return true
	case <-r.clock.After(timeout):
		n := r.timeouts.Add(1)
		r.log.Warn().
			Str("op", op).
			Dur("timeout", timeout).
			Uint64("total", n).
			Msg("timed out waiting for HRDY")
		return false
	}
}

// close stops the watcher and waits for it to exit.
func (r *readyLine) close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	<-r.done
}
