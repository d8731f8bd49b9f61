//go:build purego

package slider

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var gapColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Annotate desenha o background em cinza com o retângulo do gap e o offset.
func Annotate(background *Raster, x, y, w, h int) *image.RGBA {
	gray := Gray(background)
	b := gray.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for py := 0; py < b.Dy(); py++ {
		for px := 0; px < b.Dx(); px++ {
			v := gray.Pix[gray.PixOffset(b.Min.X+px, b.Min.Y+py)]
			off := dst.PixOffset(px, py)
			dst.Pix[off], dst.Pix[off+1], dst.Pix[off+2], dst.Pix[off+3] = v, v, v, 0xff
		}
	}

	// 2px de espessura
	drawRect(dst, x, y, x+w, y+h, gapColor)
	drawRect(dst, x+1, y+1, x+w-1, y+h-1, gapColor)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(gapColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, 30),
	}
	d.DrawString(fmt.Sprintf("Gap: %dpx", x))
	return dst
}

func drawRect(dst *image.RGBA, x1, y1, x2, y2 int, c color.Color) {
	r := image.Rect(x1, y1, x2, y2).Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.Set(x, r.Min.Y, c)
		dst.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.Set(r.Min.X, y, c)
		dst.Set(r.Max.X-1, y, c)
	}
}
