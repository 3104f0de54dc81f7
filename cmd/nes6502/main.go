// nes6502 drives an nes.Bus from either an iNES ROM image or a raw
// byte-listing test program, printing per-instruction CPU state as it
// runs. With no positional argument it runs the built-in smoke-test
// suite of inline byte-listing programs (testsuite.go) and exits 0 on an
// all-pass run, 1 otherwise.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/student/nes6502/cartridge"
	"github.com/student/nes6502/controller"
	"github.com/student/nes6502/cpu"
	"github.com/student/nes6502/disassemble"
	"github.com/student/nes6502/display"
	"github.com/student/nes6502/nes"
	"github.com/student/nes6502/ppu"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	ppuFrameWidth  = ppu.FrameWidth
	ppuFrameHeight = ppu.FrameHeight
)

var (
	debug   = flag.Bool("debug", false, "If true, emit per-cycle CPU/PPU trace output while running")
	mute    = flag.Bool("mute", false, "If true, suppress the log line emitted for unimplemented opcodes")
	haltBRK = flag.Bool("halt_on_brk", false, "If true, treat BRK as an immediate stop instead of the 7-cycle IRQ sequence")
	video   = flag.Bool("video", false, "If true, open an SDL window and present the PPU frame buffer while running an iNES ROM")
	scale   = flag.Int("scale", 2, "Window scale factor when -video is set")
)

func main() {
	flag.Parse()

	switch len(flag.Args()) {
	case 0:
		if !runTestSuite() {
			os.Exit(1)
		}
	case 1:
		if err := runFile(flag.Args()[0]); err != nil {
			log.Fatalf("%v", err)
		}
	default:
		log.Fatalf("usage: %s [rom-or-listing-file]", os.Args[0])
	}
}

// blankCart builds a minimal 16KB NROM cartridge for the raw byte-listing
// loader: prog is placed at the start of PRG ROM, which NROM's fixed
// mapping puts at $8000, and the reset vector is pointed at it.
func blankCart(prog []uint8) *cartridge.Cartridge {
	data := make([]uint8, 16+16*1024+8*1024)
	copy(data[0:4], []byte("NES\x1A"))
	data[4], data[5] = 1, 1
	prgStart := 16
	copy(data[prgStart:], prog)
	data[prgStart+0x3FFC] = 0x00
	data[prgStart+0x3FFD] = 0x80
	c, err := cartridge.Load(data)
	if err != nil {
		log.Fatalf("internal error building blank cartridge: %v", err)
	}
	return c
}

// runFile loads path as either an iNES ROM (magic "NES\x1A") or a raw
// byte-listing program, and runs it until the CPU halts (only a BRK with
// -halt_on_brk set halts it) or the user stops, printing an interactive
// trace driven by stdin commands.
func runFile(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return fmt.Errorf("can't read %q: %v", path, err)
	}

	var b *nes.Bus
	var c *cpu.Chip
	if len(data) >= 4 && string(data[0:4]) == "NES\x1A" {
		cart, err := cartridge.Load(data)
		if err != nil {
			return fmt.Errorf("can't load cartridge: %v", err)
		}
		b, c, err = nes.Init(&nes.Def{Cart: cart, Pad1: controller.NewPad(controller.DefaultKeyMap), Debug: *debug})
		if err != nil {
			return err
		}
	} else {
		prog, err := parseByteListing(data)
		if err != nil {
			return fmt.Errorf("can't parse byte listing: %v", err)
		}
		b, c, err = nes.Init(&nes.Def{Cart: blankCart(prog), Debug: *debug})
		if err != nil {
			return err
		}
	}

	c.Mute = *mute
	c.HaltOnBRK = *haltBRK
	for {
		done, err := c.Reset()
		if err != nil {
			return fmt.Errorf("reset: %v", err)
		}
		if done {
			break
		}
	}

	if *video {
		return videoLoop(b, c)
	}
	interactive(b, c)
	return nil
}

// videoLoop runs the machine continuously, presenting a new frame to an
// SDL window every time the PPU finishes one (the instant it enters
// VBlank), until the window is closed or the CPU halts.
func videoLoop(b *nes.Bus, c *cpu.Chip) error {
	disp, err := display.New(ppuFrameWidth, ppuFrameHeight, *scale, *debug)
	if err != nil {
		return fmt.Errorf("can't open display: %v", err)
	}
	defer disp.Close()

	inVBlank := false
	for {
		if err := b.Tick(); err != nil {
			var halt cpu.HaltOpcode
			if errors.As(err, &halt) {
				return nil
			}
			return fmt.Errorf("tick error: %v", err)
		}

		if quit := pumpEvents(); quit {
			return nil
		}

		p := b.PPU()
		if p.Scanline() == 241 && p.Dot() == 1 {
			if !inVBlank {
				if *debug {
					disp.DrawDebugText([]string{
						fmt.Sprintf("PC:%04X A:%02X X:%02X Y:%02X", c.PC, c.A, c.X, c.Y),
						fmt.Sprintf("P:%02X SP:%02X CYC:%d", c.P, c.S, c.TotalCycles),
					})
				}
				if err := disp.Present(p.FrameBuffer()); err != nil {
					return fmt.Errorf("present: %v", err)
				}
				inVBlank = true
			}
		} else {
			inVBlank = false
		}
	}
}

// pumpEvents drains pending SDL events so the keyboard state controller.Pad
// samples stays current, reporting whether the user closed the window.
func pumpEvents() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if _, ok := event.(*sdl.QuitEvent); ok {
			return true
		}
	}
	return false
}

// parseByteListing accepts whitespace separated hex byte pairs, one or
// more per line, skipping blank lines and "/"-prefixed comments.
func parseByteListing(data []byte) ([]uint8, error) {
	var out []uint8
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "/") {
			continue
		}
		for _, tok := range strings.Fields(line) {
			v, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid byte %q: %v", tok, err)
			}
			out = append(out, uint8(v))
		}
	}
	return out, scanner.Err()
}

// interactive drives the CPU one instruction (or one cycle) at a time in
// response to stdin commands: "s"/"step" for a single instruction,
// "c"/"continue" to run to completion, "q"/"quit" to stop early.
func interactive(b *nes.Bus, c *cpu.Chip) {
	scanner := bufio.NewScanner(os.Stdin)
	printState(b, c)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "s", "step", "":
			if !stepInstruction(b, c) {
				return
			}
			printState(b, c)
		case "c", "continue":
			for stepInstruction(b, c) {
			}
			printState(b, c)
			return
		case "q", "quit":
			return
		default:
			fmt.Println("commands: s[tep], c[ontinue], q[uit]")
		}
	}
}

// stepInstruction runs the CPU until it completes one instruction (or
// halts), returning false once the processor has halted.
func stepInstruction(b *nes.Bus, c *cpu.Chip) bool {
	for {
		err := b.Tick()
		if err != nil {
			var halt cpu.HaltOpcode
			if errors.As(err, &halt) {
				return false
			}
			log.Fatalf("tick error: %v", err)
		}
		if c.InstructionDone() {
			return true
		}
	}
}

func printState(b *nes.Bus, c *cpu.Chip) {
	disasm, _ := disassemble.Step(c.PC, b)
	fmt.Printf("%04X  %-20s A:%02X X:%02X Y:%02X P:%02X SP:%02X CYC:%d\n",
		c.PC, disasm, c.A, c.X, c.Y, c.P, c.S, c.TotalCycles)
}
