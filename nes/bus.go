// Package nes ties together the CPU, PPU, cartridge, and controller ports
// into the NES memory map and drives them at the correct relative clock
// rate. It plays the same role atari2600.VCS plays for the 2600: owning
// the memory.Bank implementation every chip reads/writes through and the
// Tick() that keeps them in lockstep.
package nes

import (
	"fmt"

	"github.com/student/nes6502/cartridge"
	"github.com/student/nes6502/controller"
	"github.com/student/nes6502/cpu"
	"github.com/student/nes6502/memory"
	"github.com/student/nes6502/ppu"
)

const (
	ramSize    = 0x0800 // 2KB internal RAM.
	ramMask    = uint16(ramSize - 1)
	ramLimit   = 0x2000 // $0000-$1FFF mirrors the 2KB RAM every 0x800.
	ppuLimit   = 0x4000 // $2000-$3FFF mirrors the 8 PPU registers every 8.
	oamDMAReg  = 0x4014
	pad1Reg    = 0x4016
	pad2Reg    = 0x4017

	// ppuClockMultiple is how many PPU dots elapse per CPU cycle on NTSC
	// hardware (atari2600.go's kCpuClockSlowdown plays the same role for
	// TIA:CPU but in the opposite direction, since there the CPU is the
	// slow clock being derived from the fast one; here we tick PPU 3x for
	// every 1 CPU tick instead of gating the CPU behind a divider).
	ppuClockMultiple = 3
)

// AddressError reports an access pattern the bus considers unreachable in
// practice (the 16-bit CPU address space is fully mapped by construction);
// kept for the same defensive-precondition idiom cpu.InvalidCPUState uses.
type AddressError struct {
	Addr uint16
}

// Error implements the error interface.
func (e AddressError) Error() string {
	return fmt.Sprintf("unmapped bus address: 0x%.4X", e.Addr)
}

// Bus implements memory.Bank for the CPU and wires the PPU, cartridge,
// and controller ports into the NES's memory map.
type Bus struct {
	ram  [ramSize]uint8
	ppu  *ppu.Chip
	cart *cartridge.Cartridge
	pad1 *controller.Pad
	pad2 *controller.Pad

	cpu *cpu.Chip

	databusVal uint8

	oamDMAActive  bool
	oamDMAPage    uint8
	oamDMAAddr    uint8
	oamDMACycle   int // 0-based count of cycles elapsed in the current DMA.
	oamDMALatched uint8
	oamDMATotal   int // 513 or 514 depending on start parity.

	debug bool
}

// Def defines the pieces needed to construct a running NES.
type Def struct {
	Cart  *cartridge.Cartridge
	Pad1  *controller.Pad
	Pad2  *controller.Pad
	Debug bool
}

// Init builds the PPU and CPU, wires them to a new Bus, and returns the
// whole machine powered on with the CPU's reset sequence already run to
// completion: PC holds the reset vector's target and the next Tick fetches
// the first opcode there. A, X and Y start at zero, as on the NES's 2A03.
func Init(def *Def) (*Bus, *cpu.Chip, error) {
	if def.Cart == nil {
		return nil, nil, AddressError{0}
	}
	p, err := ppu.Init(&ppu.ChipDef{Cart: def.Cart, Debug: def.Debug})
	if err != nil {
		return nil, nil, fmt.Errorf("can't initialize PPU: %v", err)
	}
	b := &Bus{
		ppu:   p,
		cart:  def.Cart,
		pad1:  def.Pad1,
		pad2:  def.Pad2,
		debug: def.Debug,
	}

	c, err := cpu.Init(&cpu.ChipDef{
		Cpu: cpu.CPU_NMOS_RICOH,
		Ram: b,
		Nmi: p,
		Rdy: b,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("can't initialize CPU: %v", err)
	}
	b.cpu = c
	c.A, c.X, c.Y = 0, 0, 0
	return b, c, nil
}

// Raised implements irq.Sender for the CPU's RDY line: held high for
// every remaining cycle of an in-flight OAM DMA transfer.
func (b *Bus) Raised() bool {
	return b.oamDMAActive
}

// PPU returns the Bus's PPU chip, for callers that need the frame buffer
// or scanline/dot position (a display presenter, debug trace output).
func (b *Bus) PPU() *ppu.Chip {
	return b.ppu
}

// Read implements memory.Bank.
func (b *Bus) Read(addr uint16) uint8 {
	var v uint8
	switch {
	case addr < ramLimit:
		v = b.ram[addr&ramMask]
	case addr < ppuLimit:
		v = b.ppu.Read(addr & 0x7)
	case addr == pad1Reg:
		if b.pad1 != nil {
			v = b.pad1.Read()
		}
	case addr == pad2Reg:
		if b.pad2 != nil {
			v = b.pad2.Read()
		}
	case addr < 0x8000:
		// $4014 (OAMDMA, write-only on real hardware), the unimplemented
		// rest of the APU/IO range, and the unmapped $4020-$7FFF expansion
		// window aren't backed by anything; reads here return whatever was
		// last driven onto the bus rather than reaching the mapper, which
		// (per the Mapper contract) only owns $8000-$FFFF.
		v = b.databusVal
	default:
		v = b.cart.Mapper.CPURead(addr)
	}
	b.databusVal = v
	return v
}

// Write implements memory.Bank.
func (b *Bus) Write(addr uint16, val uint8) {
	b.databusVal = val
	switch {
	case addr < ramLimit:
		b.ram[addr&ramMask] = val
	case addr < ppuLimit:
		b.ppu.Write(addr&0x7, val)
	case addr == oamDMAReg:
		b.startOAMDMA(val)
	case addr == pad1Reg:
		// $4016 writes strobe both controller ports simultaneously.
		if b.pad1 != nil {
			b.pad1.Strobe(val)
		}
		if b.pad2 != nil {
			b.pad2.Strobe(val)
		}
	case addr == pad2Reg:
		// $4017 is read-only for controller 2 on real hardware (it's the
		// APU frame counter register); no-op here since APU isn't modeled.
	case addr < 0x8000:
		// Unimplemented APU/IO registers and the unmapped $4020-$7FFF
		// expansion window: nothing there to write to.
	default:
		b.cart.Mapper.CPUWrite(addr, val)
	}
}

// PowerOn implements memory.Bank.
func (b *Bus) PowerOn() {
	for i := range b.ram {
		b.ram[i] = 0
	}
	b.ppu.PowerOn()
}

// Parent implements memory.Bank; the Bus is always the outermost level.
func (b *Bus) Parent() memory.Bank { return nil }

// DatabusVal implements memory.Bank.
func (b *Bus) DatabusVal() uint8 {
	return b.databusVal
}

// startOAMDMA begins a $4014 transfer: 256 bytes copied from page*0x100
// into PPU OAM, one byte per CPU cycle, plus a 1-cycle CPU stall to align
// to a read cycle and a further 1-cycle stall if DMA starts on an odd CPU
// cycle (513 cycles total on an even start, 514 on an odd one).
func (b *Bus) startOAMDMA(page uint8) {
	b.oamDMAActive = true
	b.oamDMAPage = page
	b.oamDMAAddr = 0
	b.oamDMACycle = 0
	b.oamDMATotal = 513
	if b.cpu != nil && b.cpu.TotalCycles%2 == 1 {
		b.oamDMATotal = 514
	}
}

// tickDMA advances an in-flight OAM DMA transfer by one CPU cycle. It must
// be called once per Bus.Tick() while Raised() is true. The alignment
// cycle(s) are idle; every subsequent pair of cycles reads one byte from
// cartridge/RAM space then writes it to PPU OAM, matching how the real
// transfer interleaves reads and writes on alternating cycles.
func (b *Bus) tickDMA() {
	align := b.oamDMATotal - 512
	if b.oamDMACycle < align {
		b.oamDMACycle++
		return
	}
	rel := b.oamDMACycle - align
	if rel%2 == 0 {
		addr := (uint16(b.oamDMAPage) << 8) | uint16(b.oamDMAAddr)
		b.oamDMALatched = b.Read(addr)
	} else {
		b.ppu.WriteOAMByte(b.oamDMALatched)
		b.oamDMAAddr++
	}
	b.oamDMACycle++
	if b.oamDMACycle >= b.oamDMATotal {
		b.oamDMAActive = false
	}
}

// Tick advances the whole machine by one CPU cycle: 3 PPU dots, the OAM
// DMA byte shuffle if one is in flight, then one cpu.Chip.Tick(). This
// mirrors atari2600.VCS.Tick's clock-ratio pattern, just with the
// fast/slow roles reversed (there the CPU derives from a 3x faster shared
// clock; here the PPU is ticked 3x for every CPU tick the caller
// requests). cpu.Chip.Tick() is always called, DMA or not: it's what
// actually holds the CPU for the 513/514 stall, via the RDY line Init
// wired to Raised() above, and TotalCycles has to keep free-running
// through the stall exactly the way it does through any other RDY hold.
func (b *Bus) Tick() error {
	for i := 0; i < ppuClockMultiple; i++ {
		if err := b.ppu.Tick(); err != nil {
			return fmt.Errorf("PPU tick error: %w", err)
		}
	}

	if b.oamDMAActive {
		b.tickDMA()
	}

	if err := b.cpu.Tick(); err != nil {
		return fmt.Errorf("CPU tick error: %w", err)
	}
	b.cpu.TickDone()
	b.ppu.TickDone()
	return nil
}
