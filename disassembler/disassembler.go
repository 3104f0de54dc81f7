// nesdisasm loads an iNES ROM image and disassembles its PRG ROM to stdout
// starting at the reset vector (or an explicit -start_pc), the same static
// listing style disassemble.Step produces for cmd/nes6502's interactive
// trace, just run start-to-finish over a whole cartridge instead of one
// instruction at a time.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/student/nes6502/cartridge"
	"github.com/student/nes6502/disassemble"
	"github.com/student/nes6502/memory"
)

var startPC = flag.Int("start_pc", -1, "PC value to start disassembling; defaults to the cartridge's reset vector")

func main() {
	flag.Parse()
	if len(flag.Args()) != 1 {
		log.Fatalf("Invalid command: %s [-start_pc <PC>] <rom.nes>", os.Args[0])
	}
	fn := flag.Args()[0]

	data, err := ioutil.ReadFile(fn)
	if err != nil {
		log.Fatalf("Can't open %s - %v", fn, err)
	}
	cart, err := cartridge.Load(data)
	if err != nil {
		log.Fatalf("Can't load %s - %v", fn, err)
	}

	bank := &cartBank{cart: cart}
	pc := uint16(*startPC)
	if *startPC < 0 {
		lo := bank.Read(0xFFFC)
		hi := bank.Read(0xFFFD)
		pc = uint16(hi)<<8 | uint16(lo)
	}

	fmt.Printf("%s, mapper %d, %d PRG bytes, reset vector $%.4X\n",
		fn, cart.Header.Mapper, len(cart.PRG), pc)

	// PRG space runs to the end of the 16-bit address space; stop once we'd
	// wrap back past the start rather than looping forever on a cartridge
	// whose code doesn't end in an explicit halt.
	for cnt := 0; cnt < 0x10000; {
		dis, off := disassemble.Step(pc, bank)
		fmt.Printf("$%.4X  %s\n", pc, dis)
		pc += uint16(off)
		cnt += off
		if pc < 0x8000 {
			break
		}
	}
}

// cartBank adapts a loaded cartridge's mapper to memory.Bank so
// disassemble.Step can read through it directly; CPU RAM and PPU registers
// below $8000 aren't needed for a static PRG listing and read as zero.
type cartBank struct {
	cart *cartridge.Cartridge
}

func (c *cartBank) Read(addr uint16) uint8 {
	if addr < 0x8000 {
		return 0
	}
	return c.cart.Mapper.CPURead(addr)
}

func (c *cartBank) Write(addr uint16, val uint8) {
	if addr >= 0x8000 {
		c.cart.Mapper.CPUWrite(addr, val)
	}
}

func (c *cartBank) PowerOn()            {}
func (c *cartBank) Parent() memory.Bank { return nil }
func (c *cartBank) DatabusVal() uint8   { return 0 }
