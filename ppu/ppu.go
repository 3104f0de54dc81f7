// Package ppu implements the NES Picture Processing Unit: the 262x341
// scanline/dot pipeline, scroll (loopy v/t/x/w) registers, primary and
// secondary OAM sprite evaluation, and the 32 entry palette RAM. Tick
// advances the chip by exactly one PPU dot; the nes.Bus runs 3 PPU Ticks
// for every CPU Tick as real NTSC hardware does.
package ppu

import (
	"fmt"

	"github.com/student/nes6502/cartridge"
)

const (
	FrameWidth  = 256
	FrameHeight = 240

	dotsPerScanline  = 341
	scanlinesPerFrame = 262

	visibleScanlines = 240
	postRenderLine   = 240
	vblankStartLine  = 241
	preRenderLine    = 261
)

// InvalidPPUState reports an internal precondition failure, mirroring the
// cpu package's InvalidCPUState idiom.
type InvalidPPUState struct {
	Reason string
}

// Error implements the error interface.
func (e InvalidPPUState) Error() string {
	return fmt.Sprintf("invalid PPU state: %s", e.Reason)
}

// ChipDef defines the pieces needed to set up a PPU instance.
type ChipDef struct {
	Cart *cartridge.Cartridge
	// Debug, if true, makes Debug() return a non-empty per-cycle trace
	// string instead of the empty string.
	Debug bool
}

// Chip implements the PPU's per-cycle pipeline.
type Chip struct {
	cart *cartridge.Cartridge
	debug bool

	scanline int
	dot      int
	frameOdd bool

	regs    registers
	scroll  loopy
	oam     oamState
	palette [32]uint8

	vram [2048]uint8 // 2 physical nametables; mirrored per cartridge.Mirroring.

	nmiOutput bool // PPUCTRL bit 7: NMI enabled.
	nmiLine   bool // Level currently asserted to the CPU's NMI input.
	nmiEverHappened bool

	ppuDataBuffer uint8
	oddReadLatch  bool // PPUSTATUS read clears the address latch (w).

	openBus uint8 // Last value seen on the external CPU<->PPU register bus.

	frame [FrameWidth * FrameHeight]uint32 // ARGB8888.

	oamDMAPending bool
	oamDMAPage    uint8
}

// Init returns a powered-on PPU bound to the given cartridge.
func Init(def *ChipDef) (*Chip, error) {
	if def.Cart == nil {
		return nil, InvalidPPUState{"ChipDef.Cart must be non-nil"}
	}
	c := &Chip{
		cart:  def.Cart,
		debug: def.Debug,
	}
	c.PowerOn()
	return c, nil
}

// PowerOn resets scanline/dot counters and internal registers to their
// documented power-on state.
func (c *Chip) PowerOn() {
	c.scanline = preRenderLine
	c.dot = 0
	c.frameOdd = false
	c.regs = registers{}
	c.scroll = loopy{}
	c.oam = oamState{}
	initPalette(&c.palette)
	c.nmiOutput = false
	c.nmiLine = false
}

// Raised implements irq.Sender: it reports the current level of the NMI
// line this PPU drives into the CPU.
func (c *Chip) Raised() bool {
	return c.nmiLine
}

// FrameBuffer returns the most recently rendered ARGB8888 framebuffer.
// The slice is owned by the Chip and is overwritten every frame; callers
// that need to retain a frame must copy it.
func (c *Chip) FrameBuffer() []uint32 {
	return c.frame[:]
}

// Scanline and Dot expose the current position in the 262x341 raster for
// test assertions and debug tracing.
func (c *Chip) Scanline() int { return c.scanline }
func (c *Chip) Dot() int      { return c.dot }

// Debug returns a short trace line when the chip was initialized with
// Debug: true, empty otherwise; callers log it when non-empty for
// optional per-cycle tracing.
func (c *Chip) Debug() string {
	if !c.debug {
		return ""
	}
	return fmt.Sprintf("PPU: scanline=%-3d dot=%-3d v=%04X t=%04X", c.scanline, c.dot, c.scroll.v, c.scroll.t)
}

// Tick advances the PPU by one dot, updating VBlank/NMI state and, on
// visible scanlines, the background/sprite pipeline (on the pre-render
// line, only the t-to-v scroll copies). It never returns an
// error for a well-formed Chip; the return matches the cpu/tia Tick()
// shape for symmetry in the Bus's Tick() loop.
func (c *Chip) Tick() error {
	switch {
	case c.scanline == preRenderLine && c.dot == 1:
		c.setVBlank(false)
		c.oam.spriteZeroHit = false
		c.oam.spriteOverflow = false
	case c.scanline == vblankStartLine && c.dot == 1:
		c.setVBlank(true)
	}

	if c.scanline < visibleScanlines && c.renderingEnabled() {
		c.renderDot()
	} else if c.scanline == preRenderLine && c.renderingEnabled() {
		// The pre-render line draws nothing but still reloads v from t.
		switch {
		case c.dot == 257:
			c.copyHorizontalBits()
		case c.dot >= 280 && c.dot <= 304:
			c.copyVerticalBits()
		}
	}

	c.advanceDot()
	return nil
}

// TickDone is a no-op placeholder kept for symmetry with the cpu/tia
// two-phase Tick()/TickDone() clocking convention; the PPU has no state
// that needs to be latched a cycle late.
func (c *Chip) TickDone() {}

func (c *Chip) advanceDot() {
	c.dot++
	// The pre-render scanline on odd frames skips dot 339->0 (the famous
	// "skipped cycle") when rendering is enabled.
	if c.scanline == preRenderLine && c.dot == dotsPerScanline-1 && c.frameOdd && c.renderingEnabled() {
		c.dot = 0
		c.scanline = 0
		c.frameOdd = !c.frameOdd
		return
	}
	if c.dot >= dotsPerScanline {
		c.dot = 0
		c.scanline++
		if c.scanline >= scanlinesPerFrame {
			c.scanline = 0
			c.frameOdd = !c.frameOdd
		}
	}
}

func (c *Chip) setVBlank(v bool) {
	c.regs.vblank = v
	if v {
		c.nmiEverHappened = true
	} else {
		c.nmiEverHappened = false
	}
	c.updateNMILine()
}

func (c *Chip) updateNMILine() {
	c.nmiLine = c.nmiOutput && c.regs.vblank
}

func (c *Chip) renderingEnabled() bool {
	return c.regs.showBackground || c.regs.showSprites
}
