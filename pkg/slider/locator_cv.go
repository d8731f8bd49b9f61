//go:build !purego

package slider

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"gocv.io/x/gocv"
)

var gapColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// grayMat monta o Mat de intensidade a partir do buffer de cor do raster.
func grayMat(r *Raster) (gocv.Mat, error) {
	w, h := r.Width(), r.Height()
	rgb := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := r.Color.Pix[r.Color.PixOffset(0, y):]
		for x := 0; x < w; x++ {
			rgb = append(rgb, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, rgb)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("erro criando mat %dx%d: %w", w, h, err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)
	return gray, nil
}

func edgeMat(r *Raster, low, high float64) (gocv.Mat, error) {
	gray, err := grayMat(r)
	if err != nil {
		return gray, err
	}
	defer gray.Close()

	edges := gocv.NewMat()
	gocv.Canny(gray, &edges, float32(low), float32(high))
	return edges, nil
}

// matchEdges roda Canny nas duas imagens, TM_CCORR_NORMED da peça sobre o
// background e devolve o máximo depois de zerar as primeiras `exclude` colunas.
func matchEdges(background, piece *Raster, opts LocatorOptions, exclude int) (x, y int, score float64, err error) {
	bgEdges, err := edgeMat(background, opts.CannyLow, opts.CannyHigh)
	if err != nil {
		return 0, 0, 0, err
	}
	defer bgEdges.Close()

	pieceEdges, err := edgeMat(piece, opts.CannyLow, opts.CannyHigh)
	if err != nil {
		return 0, 0, 0, err
	}
	defer pieceEdges.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(bgEdges, pieceEdges, &result, gocv.TmCcorrNormed, mask)
	if result.Empty() {
		return 0, 0, 0, fmt.Errorf("%w: superfície vazia", ErrPieceTooLarge)
	}

	cols := min(exclude, result.Cols())
	for row := 0; row < result.Rows(); row++ {
		for col := 0; col < cols; col++ {
			result.SetFloatAt(row, col, 0)
		}
	}

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	return maxLoc.X, maxLoc.Y, float64(maxVal), nil
}

// Annotate desenha o background em cinza com o retângulo do gap e o offset.
func Annotate(background *Raster, x, y, w, h int) *image.RGBA {
	gray, err := grayMat(background)
	if err != nil {
		return nil
	}
	defer gray.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(gray, &out, gocv.ColorGrayToBGR)

	gocv.Rectangle(&out, image.Rect(x, y, x+w, y+h), gapColor, 2)
	gocv.PutText(&out, fmt.Sprintf("Gap: %dpx", x), image.Pt(x, 30),
		gocv.FontHersheySimplex, 0.7, gapColor, 2)

	img, err := out.ToImage()
	if err != nil {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, out.Cols(), out.Rows()))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}
