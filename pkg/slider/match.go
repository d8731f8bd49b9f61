//go:build purego

// Backend em Go puro do Gap Locator, para builds sem cgo (-tags purego).

package slider

import (
	"image"
	"math"
)

// Surface é a superfície de scores do template matching, em ordem row-major.
type Surface struct {
	W, H   int
	Scores []float64
}

func (s *Surface) At(x, y int) float64 { return s.Scores[y*s.W+x] }

// MaskColumns zera as primeiras n colunas da superfície.
func (s *Surface) MaskColumns(n int) {
	if n > s.W {
		n = s.W
	}
	for y := 0; y < s.H; y++ {
		row := s.Scores[y*s.W:]
		for x := 0; x < n; x++ {
			row[x] = 0
		}
	}
}

// Max devolve o máximo global; em empate vence a primeira posição row-major.
func (s *Surface) Max() (x, y int, score float64) {
	if len(s.Scores) == 0 {
		return 0, 0, 0
	}
	best := 0
	for i, v := range s.Scores {
		if v > s.Scores[best] {
			best = i
		}
	}
	return best % s.W, best / s.W, s.Scores[best]
}

type probePoint struct {
	x, y int
	v    float64
}

// MatchTemplate calcula a correlação cruzada normalizada (TM_CCORR_NORMED)
// do template em todas as posições da imagem. Só os pixels não nulos do
// template entram no numerador; o denominador usa uma imagem integral de
// quadrados.
func MatchTemplate(img, tpl *image.Gray) (*Surface, error) {
	ib, tb := img.Bounds(), tpl.Bounds()
	iw, ih := ib.Dx(), ib.Dy()
	tw, th := tb.Dx(), tb.Dy()
	if tw == 0 || th == 0 || tw > iw || th > ih {
		return nil, ErrPieceTooLarge
	}

	var points []probePoint
	var tplSq float64
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			v := float64(tpl.Pix[tpl.PixOffset(tb.Min.X+x, tb.Min.Y+y)])
			if v == 0 {
				continue
			}
			points = append(points, probePoint{x: x, y: y, v: v})
			tplSq += v * v
		}
	}

	pix := make([]float64, iw*ih)
	for y := 0; y < ih; y++ {
		for x := 0; x < iw; x++ {
			pix[y*iw+x] = float64(img.Pix[img.PixOffset(ib.Min.X+x, ib.Min.Y+y)])
		}
	}
	sq := integralSquares(pix, iw, ih)

	s := &Surface{W: iw - tw + 1, H: ih - th + 1}
	s.Scores = make([]float64, s.W*s.H)
	if tplSq == 0 {
		return s, nil
	}

	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			winSq := windowSum(sq, iw, x, y, tw, th)
			if winSq <= 0 {
				continue
			}
			var dot float64
			for _, p := range points {
				dot += p.v * pix[(y+p.y)*iw+x+p.x]
			}
			s.Scores[y*s.W+x] = dot / math.Sqrt(tplSq*winSq)
		}
	}
	return s, nil
}

// integralSquares monta a imagem integral (w+1)x(h+1) de v².
func integralSquares(pix []float64, w, h int) []float64 {
	stride := w + 1
	sum := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			v := pix[y*w+x]
			row += v * v
			sum[(y+1)*stride+x+1] = sum[y*stride+x+1] + row
		}
	}
	return sum
}

func windowSum(sum []float64, w, x, y, tw, th int) float64 {
	stride := w + 1
	return sum[(y+th)*stride+x+tw] - sum[y*stride+x+tw] - sum[(y+th)*stride+x] + sum[y*stride+x]
}

// matchEdges roda Canny nas duas imagens, TM_CCORR_NORMED da peça sobre o
// background e devolve o máximo depois de zerar as primeiras `exclude` colunas.
func matchEdges(background, piece *Raster, opts LocatorOptions, exclude int) (x, y int, score float64, err error) {
	bgEdges := Canny(Gray(background), opts.CannyLow, opts.CannyHigh)
	pieceEdges := Canny(Gray(piece), opts.CannyLow, opts.CannyHigh)

	surface, err := MatchTemplate(bgEdges, pieceEdges)
	if err != nil {
		return 0, 0, 0, err
	}
	surface.MaskColumns(exclude)
	x, y, score = surface.Max()
	return x, y, score, nil
}
