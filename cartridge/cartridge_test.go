package cartridge

import (
	"testing"
)

func header(prgBanks, chrBanks, mapper, flags6 uint8) []uint8 {
	d := make([]uint8, headerSize)
	copy(d[0:4], iNESMagic[:])
	d[4] = prgBanks
	d[5] = chrBanks
	d[6] = flags6 | (mapper << 4)
	d[7] = mapper & 0xF0
	return d
}

func TestLoadNROM16K(t *testing.T) {
	data := header(1, 1, 0, 0)
	data = append(data, make([]uint8, prgUnit)...)
	data = append(data, make([]uint8, chrUnit)...)
	data[headerSize] = 0xAA
	data[headerSize+prgUnit-1] = 0xBB

	c, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := c.Mapper.CPURead(0x8000), uint8(0xAA); got != want {
		t.Errorf("CPURead(0x8000) = %.2X, want %.2X", got, want)
	}
	// 16KB PRG mirrors across the upper half of the window.
	if got, want := c.Mapper.CPURead(0xC000), uint8(0xAA); got != want {
		t.Errorf("CPURead(0xC000) = %.2X, want %.2X (mirror of 0x8000)", got, want)
	}
	if got, want := c.Mapper.CPURead(0xBFFF), uint8(0xBB); got != want {
		t.Errorf("CPURead(0xBFFF) = %.2X, want %.2X", got, want)
	}
}

func TestLoadNROM32K(t *testing.T) {
	data := header(2, 1, 0, 0)
	data = append(data, make([]uint8, 2*prgUnit)...)
	data = append(data, make([]uint8, chrUnit)...)
	data[headerSize+2*prgUnit-1] = 0xCC

	c, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := c.Mapper.CPURead(0xFFFF), uint8(0xCC); got != want {
		t.Errorf("CPURead(0xFFFF) = %.2X, want %.2X (no mirroring for 32K)", got, want)
	}
}

func TestLoadCHRRAM(t *testing.T) {
	data := header(1, 0, 0, 0)
	data = append(data, make([]uint8, prgUnit)...)

	c, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.chrRAM {
		t.Fatal("expected chrRAM to be true when header CHR banks == 0")
	}
	c.Mapper.PPUWrite(0x0010, 0x42)
	if got, want := c.Mapper.PPURead(0x0010), uint8(0x42); got != want {
		t.Errorf("PPURead(0x0010) = %.2X, want %.2X", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data []uint8
	}{
		{"too short", []uint8{0x4E, 0x45}},
		{"bad magic", append([]uint8{0x00, 0x00, 0x00, 0x00}, make([]uint8, headerSize-4)...)},
		{"unsupported mapper", header(1, 1, 4, 0)},
		{"zero PRG banks", header(0, 1, 0, 0)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Load(test.data); err == nil {
				t.Error("Load didn't return an error")
			}
		})
	}
}

func TestMirroring(t *testing.T) {
	tests := []struct {
		name   string
		flags6 uint8
		want   Mirroring
	}{
		{"horizontal", 0x00, MirrorHorizontal},
		{"vertical", 0x01, MirrorVertical},
		{"four screen", 0x08, MirrorFourScreen},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := header(1, 1, 0, test.flags6)
			data = append(data, make([]uint8, prgUnit)...)
			data = append(data, make([]uint8, chrUnit)...)
			c, err := Load(data)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := c.Mirror(); got != test.want {
				t.Errorf("Mirror() = %v, want %v", got, test.want)
			}
		})
	}
}
