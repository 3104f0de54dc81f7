// hand_asm takes a hand-assembled listing file of the form
//
// XXXX OP A1 A2 A3 ....
//
// (XXXX an address field, the rest hex opcode/operand bytes) and produces a
// minimal 32KB-PRG iNES ROM with those bytes placed at their addresses and
// the reset vector pointing at the first one, loadable directly by
// cmd/nes6502 or nesdisasm.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	prgSize = 32 * 1024
	chrSize = 8 * 1024
	cpuBase = 0x8000
)

var out = flag.String("out", "a.nes", "Output iNES ROM path")

func main() {
	flag.Parse()
	if len(flag.Args()) != 1 {
		log.Fatalf("Invalid command: %s [-out <rom.nes>] <input listing>", os.Args[0])
	}
	fn := flag.Args()[0]

	b, err := exec.Command("/bin/sh", "-c", fmt.Sprintf(`egrep ^[0-9A-F][0-9A-F][0-9A-F][0-9A-F] %s | sed -e 's:\t.*$::' -e 's:(\*).*$::'| cut -c1-4,6-`, fn)).Output()
	if err != nil {
		log.Fatalf("Can't open and process %q for input - %v", fn, err)
	}

	prg := make([]uint8, prgSize)
	firstAddr := -1

	scanner := bufio.NewScanner(bytes.NewReader(b))
	l := 0
	for scanner.Scan() {
		t := scanner.Text()
		l++
		toks := strings.Fields(t)
		if len(toks) < 1 {
			continue
		}
		addr, err := strconv.ParseUint(toks[0], 16, 16)
		if err != nil {
			log.Fatalf("Invalid address on line %d - %q: %v", l, t, err)
		}
		if int(addr) < cpuBase {
			log.Fatalf("Line %d address $%.4X is below $8000 (PRG ROM start)", l, addr)
		}
		if firstAddr < 0 {
			firstAddr = int(addr)
		}
		off := int(addr) - cpuBase
		for i, v := range toks[1:] {
			val, err := strconv.ParseUint(v, 16, 8)
			if err != nil {
				log.Fatalf("Can't process input line %d %q - %v", l, t, err)
			}
			if pos := off + i; pos < len(prg) {
				prg[pos] = byte(val)
			}
		}
	}
	if firstAddr < 0 {
		log.Fatalf("No assembled lines found in %q", fn)
	}

	// Reset vector ($FFFC/$FFFD) points at the first assembled address.
	prg[prgSize-4] = byte(firstAddr)
	prg[prgSize-3] = byte(firstAddr >> 8)

	var rom []uint8
	rom = append(rom, []uint8("NES\x1A")...)
	rom = append(rom, 2, 1, 0, 0) // 32KB PRG (2x16K banks), 8KB CHR, mapper 0, horizontal mirror.
	rom = append(rom, make([]uint8, 8)...)
	rom = append(rom, prg...)
	rom = append(rom, make([]uint8, chrSize)...)

	if err := os.WriteFile(*out, rom, 0644); err != nil {
		log.Fatalf("Can't write %q - %v", *out, err)
	}
}
