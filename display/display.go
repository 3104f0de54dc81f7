// Package display presents a ppu.Chip's frame buffer in an SDL window and,
// in debug mode, renders a text strip alongside it with CPU/PPU state. It
// plays the role vcs_main.go's fastImage/window pair plays for the 2600:
// owning the SDL surface and pixel format conversion, with FrameDone called
// once per rendered frame.
package display

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/veandco/go-sdl2/sdl"
)

const (
	debugCols  = 44 // Characters wide, sized for "CYC:XXXXXXXXXX" style lines.
	debugLineH = 13 // basicfont.Face7x13 line height.
)

// Display owns the SDL window the emulator renders into. Construct with
// New, call Present once per finished PPU frame, and Close on shutdown.
type Display struct {
	window  *sdl.Window
	surface *sdl.Surface

	scale      int
	frameW     int
	frameH     int
	debugPanel bool
	debugW     int

	debugImg *image.RGBA
}

// New creates an SDL window sized frameW x frameH scaled by scale, with an
// optional debug text panel appended to the right edge.
func New(frameW, frameH, scale int, debugPanel bool) (*Display, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("can't init SDL: %v", err)
	}

	debugW := 0
	if debugPanel {
		debugW = debugCols * 7 // basicfont.Face7x13 advances 7px/glyph.
	}

	w, h := frameW*scale+debugW, frameH*scale
	window, err := sdl.CreateWindow("nes6502", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(w), int32(h), sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("can't create window: %v", err)
	}
	surface, err := window.GetSurface()
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("can't get window surface: %v", err)
	}

	d := &Display{
		window:     window,
		surface:    surface,
		scale:      scale,
		frameW:     frameW,
		frameH:     frameH,
		debugPanel: debugPanel,
		debugW:     debugW,
	}
	if debugPanel {
		d.debugImg = image.NewRGBA(image.Rect(0, 0, debugW, h))
	}
	return d, nil
}

// Close tears down the SDL window. Safe to call once after New succeeds.
func (d *Display) Close() {
	d.window.Destroy()
	sdl.Quit()
}

// Present blits a PPU frame buffer (FrameWidth*FrameHeight ARGB8888, as
// produced by ppu.Chip.FrameBuffer) into the window at the configured
// scale, then updates the surface. frame must be frameW*frameH long.
func (d *Display) Present(frame []uint32) error {
	if len(frame) != d.frameW*d.frameH {
		return fmt.Errorf("display: frame buffer has %d pixels, want %d", len(frame), d.frameW*d.frameH)
	}
	pixels := d.surface.Pixels()
	pitch := int(d.surface.Pitch)
	bpp := int(d.surface.Format.BytesPerPixel)

	for y := 0; y < d.frameH; y++ {
		for x := 0; x < d.frameW; x++ {
			argb := frame[y*d.frameW+x]
			for sy := 0; sy < d.scale; sy++ {
				for sx := 0; sx < d.scale; sx++ {
					px := x*d.scale + sx
					py := y*d.scale + sy
					i := py*pitch + px*bpp
					pixels[i+0] = uint8(argb >> 16) // R
					pixels[i+1] = uint8(argb >> 8)  // G
					pixels[i+2] = uint8(argb)       // B
					pixels[i+3] = uint8(argb >> 24) // A
				}
			}
		}
	}

	if d.debugPanel {
		d.blitDebugPanel(pixels, pitch, bpp)
	}

	return d.window.UpdateSurface()
}

// DrawDebugText renders lines of debug text (register dumps, disassembly,
// controller state) into the debug panel using a fixed 7x13 bitmap font,
// the same face n-ulricksen-nes's Display uses via pixel/text; here it's
// drawn directly with golang.org/x/image/font rather than through a second
// UI toolkit's text atlas, since the rest of the window is plain SDL.
func (d *Display) DrawDebugText(lines []string) {
	if !d.debugPanel {
		return
	}
	bg := image.NewUniform(color.Black)
	draw(d.debugImg, d.debugImg.Bounds(), bg)

	drawer := &font.Drawer{
		Dst:  d.debugImg,
		Src:  image.NewUniform(color.RGBA{0x20, 0xE0, 0x20, 0xFF}),
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(4, (i+1)*debugLineH)
		drawer.DrawString(line)
	}
}

// blitDebugPanel copies the debug text image into the right-hand strip of
// the window surface.
func (d *Display) blitDebugPanel(pixels []byte, pitch, bpp int) {
	if d.debugImg == nil {
		return
	}
	xOff := d.frameW * d.scale
	bounds := d.debugImg.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := d.debugImg.RGBAAt(x, y)
			i := y*pitch + (xOff+x)*bpp
			if i+3 >= len(pixels) {
				continue
			}
			pixels[i+0] = c.R
			pixels[i+1] = c.G
			pixels[i+2] = c.B
			pixels[i+3] = c.A
		}
	}
}

// draw fills dst with src over the given rectangle; small enough not to
// warrant pulling in image/draw's Drawer machinery for a solid fill.
func draw(dst *image.RGBA, r image.Rectangle, src image.Image) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
}
