package ppu

// oamState holds the 256 byte primary OAM (64 sprites x 4 bytes) and the
// 32 byte secondary OAM (8 sprites x 4 bytes) used to stage the sprites
// visible on the next scanline.
type oamState struct {
	primary   [256]uint8
	addr      uint8
	secondary [32]uint8
	// spriteCount is how many sprites evaluateSprites found for the
	// upcoming scanline (0-8).
	spriteCount int
	// spriteZeroInSecondary tracks whether sprite 0 made it into
	// secondary OAM this scanline, needed for sprite-0-hit detection.
	spriteZeroInSecondary bool

	spriteZeroHit  bool
	spriteOverflow bool
}

// WriteOAMByte stores val at the current OAMADDR and advances it, used by
// the bus's $4014 OAM DMA transfer to copy a full page one byte per CPU
// cycle without going through the CPU-facing OAMDATA Write path (DMA
// bypasses the normal register decode, but the effect on OAM is the same).
func (c *Chip) WriteOAMByte(val uint8) {
	c.oam.primary[c.oam.addr] = val
	c.oam.addr++
}

type sprite struct {
	y, tile, attr, x uint8
	index            int
}

// evaluateSprites scans primary OAM for up to 8 sprites intersecting the
// given scanline and stages them into secondary OAM. Real hardware does
// this over dots 65-256 of the preceding scanline one sprite at a time;
// this core does it in one step at the start of that window, which is
// externally indistinguishable since secondary OAM isn't CPU visible
// during evaluation.
func (c *Chip) evaluateSprites(scanline int) {
	c.oam.secondary = [32]uint8{}
	c.oam.spriteCount = 0
	c.oam.spriteZeroInSecondary = false

	height := c.regs.spriteHeight
	for i := 0; i < 64; i++ {
		y := int(c.oam.primary[i*4])
		if scanline < y || scanline >= y+height {
			continue
		}
		if c.oam.spriteCount == 8 {
			c.oam.spriteOverflow = true
			break
		}
		off := c.oam.spriteCount * 4
		copy(c.oam.secondary[off:off+4], c.oam.primary[i*4:i*4+4])
		if i == 0 {
			c.oam.spriteZeroInSecondary = true
		}
		c.oam.spriteCount++
	}
}

// spriteAt returns the nth staged sprite (0-based, in priority order) from
// secondary OAM.
func (c *Chip) spriteAt(n int) sprite {
	off := n * 4
	return sprite{
		y:     c.oam.secondary[off],
		tile:  c.oam.secondary[off+1],
		attr:  c.oam.secondary[off+2],
		x:     c.oam.secondary[off+3],
		index: n,
	}
}
