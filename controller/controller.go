// Package controller implements the NES standard controller's
// strobe-and-shift register as seen at $4016 (controller 1) and $4017
// (controller 2), backed by SDL2 keyboard state.
package controller

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/student/nes6502/io"
)

// Button indexes match the shift order latched by a strobe: A, B, Select,
// Start, Up, Down, Left, Right.
const (
	ButtonA = iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
	buttonCount
)

// KeyMap binds each Button to an SDL scancode.
type KeyMap [buttonCount]sdl.Scancode

// DefaultKeyMap is a reasonable single-player WASD-plus-JK layout, in the
// same spirit as n-ulricksen-nes's controllerKeys binding but expressed
// against go-sdl2 scancodes instead of a windowing toolkit's own key enum.
var DefaultKeyMap = KeyMap{
	ButtonA:      sdl.SCANCODE_K,
	ButtonB:      sdl.SCANCODE_J,
	ButtonSelect: sdl.SCANCODE_RSHIFT,
	ButtonStart:  sdl.SCANCODE_RETURN,
	ButtonUp:     sdl.SCANCODE_W,
	ButtonDown:   sdl.SCANCODE_S,
	ButtonLeft:   sdl.SCANCODE_A,
	ButtonRight:  sdl.SCANCODE_D,
}

// Pad implements one NES controller port's $4016/$4017 register: a strobe
// latch plus an 8 bit shift register. While strobe is high (bit 0 of the
// last write to $4016) every read re-samples button 0 (A); on the
// strobe's falling edge the full button state is latched and subsequent
// reads shift button bits out one at a time, oldest (A) first.
type Pad struct {
	pressed func(btn int) bool
	strobe  bool
	shift   uint8
	readPos int
}

// NewPad returns a Pad using the given key bindings, sampled from live
// SDL keyboard state.
func NewPad(keys KeyMap) *Pad {
	return newPad(func(btn int) bool {
		return sdl.GetKeyboardState()[keys[btn]] != 0
	})
}

// newPad builds a Pad against an arbitrary button-state source, letting
// tests exercise the strobe/shift logic without a live SDL window.
func newPad(pressed func(btn int) bool) *Pad {
	return &Pad{pressed: pressed}
}

// Strobe implements the $4016/$4017 write side: bit 0 controls the strobe
// latch. While held high the shift register continuously reloads from
// live input; on the high-to-low transition the current state is frozen
// for shifting out.
func (p *Pad) Strobe(val uint8) {
	wasStrobing := p.strobe
	p.strobe = val&0x01 != 0
	if p.strobe {
		p.latch()
	} else if wasStrobing {
		p.latch()
		p.readPos = 0
	}
}

// Input implements io.Port8: the raw 8 button bits as they'd be latched
// right now, independent of strobe/shift state. Useful for a debug panel
// that wants the whole pad at once rather than bit-banging $4016.
func (p *Pad) Input() uint8 {
	var v uint8
	for i := 0; i < buttonCount; i++ {
		if p.pressed(i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

var _ io.Port8 = (*Pad)(nil)

func (p *Pad) latch() {
	var v uint8
	for i := 0; i < buttonCount; i++ {
		if p.pressed(i) {
			v |= 1 << uint(i)
		}
	}
	p.shift = v
}

// Read returns the next button bit in bit 0, shifting the register. Once
// all 8 buttons have been read, every further read (until the next
// strobe) returns 1 in bit 0, matching the real shift register's
// behavior of continuously shifting in open-bus 1 bits.
func (p *Pad) Read() uint8 {
	if p.strobe {
		p.latch()
		return p.shift & 0x01
	}
	if p.readPos >= buttonCount {
		return 0x01
	}
	bit := (p.shift >> uint(p.readPos)) & 0x01
	p.readPos++
	return bit
}
