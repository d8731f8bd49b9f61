//go:build purego

package slider

import "image"

// Gray converte o buffer de cor para intensidade (BT.601, como o OpenCV).
func Gray(r *Raster) *image.Gray {
	b := r.Color.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	pix := r.Color.Pix
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			off := r.Color.PixOffset(x, y)
			l := 0.299*float64(pix[off]) + 0.587*float64(pix[off+1]) + 0.114*float64(pix[off+2])
			out.Pix[out.PixOffset(x, y)] = uint8(l + 0.5)
		}
	}
	return out
}

// Canny devolve um mapa binário de bordas (0/255): Sobel 3x3, magnitude L1,
// supressão de não-máximos e histerese com os dois limiares.
func Canny(src *image.Gray, low, high float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	// borda refletida (reflect-101), igual ao default do OpenCV
	at := func(x, y int) float64 {
		x = reflect101(x, w)
		y = reflect101(y, h)
		return float64(src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	gx := make([]float64, w*h)
	gy := make([]float64, w*h)
	mag := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = abs(dx) + abs(dy)
		}
	}

	magAt := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	const (
		none   = 0
		weak   = 1
		strong = 2
	)
	state := make([]uint8, w*h)
	var stack []int

	// tan(22.5°) e tan(67.5°) para escolher a direção do gradiente
	const tan22, tan67 = 0.41421356, 2.41421356
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := abs(gx[i]), abs(gy[i])
			var n1, n2 float64
			switch {
			case ay <= ax*tan22:
				n1, n2 = magAt(x-1, y), magAt(x+1, y)
			case ay >= ax*tan67:
				n1, n2 = magAt(x, y-1), magAt(x, y+1)
			case (gx[i] < 0) != (gy[i] < 0):
				n1, n2 = magAt(x+1, y-1), magAt(x-1, y+1)
			default:
				n1, n2 = magAt(x-1, y-1), magAt(x+1, y+1)
			}
			// > de um lado e >= do outro desempata platôs de borda dupla
			if !(m > n1 && m >= n2) {
				continue
			}
			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[i/w*out.Stride+i%w] = 0xff
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	return out
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
