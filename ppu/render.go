package ppu

// renderDot performs the per-dot background/sprite fetch-and-draw work for
// visible scanlines (0-239). It's a simplified, single-step restatement of
// the real 8-dot fetch pipeline: rather than carrying shift registers
// across dots, each visible dot directly samples the nametable/attribute/
// pattern bytes it needs. This produces an identical final image to the
// cycle-exact pipeline (the PPU's internal shift registers have no
// CPU-visible side effect) while keeping the implementation tractable.
func (c *Chip) renderDot() {
	switch {
	case c.dot == 0:
		return
	case c.dot >= 1 && c.dot <= 256:
		x := c.dot - 1
		c.drawPixel(x, c.scanline)
		if c.dot%8 == 0 {
			c.incCoarseX()
		}
		if c.dot == 256 {
			c.incFineY()
		}
	case c.dot == 257:
		c.copyHorizontalBits()
		c.evaluateSprites(c.scanline + 1)
	}

	if c.scanline == preRenderLine && c.dot >= 280 && c.dot <= 304 {
		c.copyVerticalBits()
	}
}

func (c *Chip) drawPixel(x, y int) {
	bg := c.backgroundPixel(x)
	spr, sprPriority, isSpriteZero := c.spritePixel(x)

	var final uint8
	switch {
	case bg == 0 && spr == 0:
		final = c.readPalette(0x3F00)
	case bg == 0:
		final = spr
	case spr == 0:
		final = bg
	default:
		if isSpriteZero && x < 255 {
			c.oam.spriteZeroHit = true
		}
		if sprPriority {
			final = bg
		} else {
			final = spr
		}
	}
	c.frame[y*FrameWidth+x] = rgbFor(final)
}

// backgroundPixel returns the palette index (0 = transparent) for the
// background tile at screen column x on the current scanline, honoring
// PPUMASK's left-8-pixel hide and the fine-X sub-tile scroll.
func (c *Chip) backgroundPixel(x int) uint8 {
	if !c.regs.showBackground || (x < 8 && !c.regs.showBGLeft8) {
		return 0
	}

	fineX := (uint16(x) + uint16(c.scroll.x)) & 0x07
	v := c.scroll.v

	nametableAddr := 0x2000 | (v & 0x0FFF)
	tile := c.readVRAM(nametableAddr)

	attrAddr := 0x23C0 | (v & 0x0C00) | ((v >> 4) & 0x38) | ((v >> 2) & 0x07)
	attr := c.readVRAM(attrAddr)
	shift := ((coarseY(v) & 0x02) << 1) | (coarseX(v) & 0x02)
	paletteHi := (attr >> shift) & 0x03

	patAddr := c.regs.bgPattern + uint16(tile)*16 + fineY(v)
	lo := c.readVRAM(patAddr)
	hi := c.readVRAM(patAddr + 8)
	bit := 7 - fineX
	pix := ((lo>>bit)&1)<<0 | ((hi>>bit)&1)<<1

	if pix == 0 {
		return 0
	}
	return c.readPalette(0x3F00 + uint16(paletteHi)<<2 + uint16(pix))
}

// spritePixel returns the palette index (0 = transparent), the
// background-priority bit, and whether sprite 0 produced this pixel, for
// screen column x on the current scanline.
func (c *Chip) spritePixel(x int) (pix uint8, behindBG bool, isSpriteZero bool) {
	if !c.regs.showSprites || (x < 8 && !c.regs.showSpritesLeft8) {
		return 0, false, false
	}
	for i := 0; i < c.oam.spriteCount; i++ {
		s := c.spriteAt(i)
		col := x - int(s.x)
		if col < 0 || col > 7 {
			continue
		}
		flipH := s.attr&0x40 != 0
		flipV := s.attr&0x80 != 0
		row := c.scanline - int(s.y)
		if flipV {
			row = c.regs.spriteHeight - 1 - row
		}
		tile := uint16(s.tile)
		base := c.regs.spritePattern
		if c.regs.spriteHeight == 16 {
			base = (tile & 1) * 0x1000
			tile &^= 1
			if row >= 8 {
				tile++
				row -= 8
			}
		}
		bitCol := col
		if flipH {
			bitCol = 7 - col
		}
		patAddr := base + tile*16 + uint16(row)
		lo := c.readVRAM(patAddr)
		hi := c.readVRAM(patAddr + 8)
		bit := 7 - uint(bitCol)
		val := ((lo>>bit)&1)<<0 | ((hi>>bit)&1)<<1
		if val == 0 {
			continue
		}
		paletteIdx := s.attr & 0x03
		zero := i == 0 && c.oam.spriteZeroInSecondary
		return c.readPalette(0x3F10 + uint16(paletteIdx)<<2 + uint16(val)), s.attr&0x20 != 0, zero
	}
	return 0, false, false
}
