// Package it8951 controls an electrophoretic (e-paper) panel driven by an
// IT8951 timing controller over SPI.
//
// The IT8951 exposes a 16-bit word host interface. Every transaction starts
// with a preamble word (command, write or read) and the controller raises its
// HRDY line when it is ready for the next one. This driver keeps an 8-bit
// grayscale frame buffer on the host and sends only the smallest aligned
// rectangle that changed since the last refresh.
//
// This driver implements the display.Drawer interface from periph.io.
//
// # Panel Characteristics
//
// - 16 gray levels with GC16, black and white only with DU and A2
// - Fast two-level refreshes leave ghosting that a later grayscale refresh cleans up
// - Panel geometry and image buffer address are read from the controller
// - VCOM must match the value printed on the panel's FPC cable
//
// # Hardware Connection
//
// Connect the IT8951 board to your system via SPI:
//
//	Board Pin → System Pin
//	GND       → GND
//	5V        → 5V
//	SCLK      → SPI Clock (SCLK)
//	MOSI      → SPI Data (MOSI)
//	MISO      → SPI Data (MISO)
//	CS        → SPI Chip Select
//	RST       → GPIO (any available pin)
//	HRDY      → GPIO with edge detection
//
// # Basic Usage
//
//	package main
//
//	import (
//		"image"
//		"image/draw"
//
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/devices/v3/it8951"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//
//		p, _ := spireg.Open("")
//		defer p.Close()
//
//		opts := it8951.DefaultOpts()
//		opts.VCOM = -1.48
//
//		dev, _ := it8951.NewSPI(p, gpioreg.ByName("GPIO17"), gpioreg.ByName("GPIO24"), opts)
//		defer dev.Halt()
//
//		// Start from a known white panel
//		dev.Clear()
//
//		// Draw into the frame buffer, then refresh what changed
//		draw.Draw(dev.Frame(), image.Rect(100, 100, 300, 200), image.Black, image.Point{}, draw.Src)
//		dev.DrawPartial(it8951.ModeDU)
//	}
//
// # Refresh Modes
//
// DrawFull sends the whole frame. DrawPartial diffs the frame against the last
// refresh and sends only the changed rectangle, rounded outward to
// Opts.Align pixels. Areas refreshed with ModeDU or ModeA2 are remembered;
// the next DrawPartial in any other mode also redraws them at full quality:
//
//	dev.DrawPartial(it8951.ModeDU)   // fast, black and white
//	dev.DrawPartial(it8951.ModeDU)
//	dev.DrawPartial(it8951.ModeGC16) // redraws both DU areas too
//
// Clear whites the panel with ModeInit, which also resets the waveform state.
// Use it once at startup and now and then to remove accumulated ghosting.
//
// # Pixel Formats
//
// Image data is packed at Opts.Format before transfer (see package pixpack).
// LoadImageAreaFormat picks the format for a single load.
// 4bpp matches the panel's 16 gray levels and is the default; 2bpp cuts the
// transfer in half for black and white content.
//
// # Low Level Access
//
// The controller commands are exported for callers that manage their own
// buffers: LoadImage, LoadImageArea, LoadImageAreaFormat, DisplayArea,
// DisplayBufferArea, WaitDisplayReady, ReadRegister, WriteRegister, VCOM,
// SetVCOM, Sleep, Standby and Wake. Call WaitDisplayReady before every load; the controller
// drops image data sent while a refresh is running.
//
// # Ready Handshake
//
// A timed out HRDY wait is logged and counted but never returned as an error.
// Stats reports the count so callers can detect a wiring fault.
package it8951
