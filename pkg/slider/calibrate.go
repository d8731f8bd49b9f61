package slider

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Geometry são as medidas lidas da página no momento da tentativa. Não é
// reaproveitada entre tentativas porque o layout pode mudar.
type Geometry struct {
	ImageWidth  int
	PieceWidth  int
	TrackWidth  int
	HandleWidth int
	PieceLeft   int
	// TrackKnown é false quando trilho ou alça não puderam ser medidos
	TrackKnown bool
}

// CalibrationOptions controla o ratio de fallback.
type CalibrationOptions struct {
	SmallImageWidth int
	FallbackRatio   float64
}

const (
	DefaultSmallImageWidth = 280
	DefaultFallbackRatio   = 0.81
)

func (o CalibrationOptions) withDefaults() CalibrationOptions {
	if o.SmallImageWidth <= 0 {
		o.SmallImageWidth = DefaultSmallImageWidth
	}
	if o.FallbackRatio <= 0 {
		o.FallbackRatio = DefaultFallbackRatio
	}
	return o
}

// ScaleRatio converte pixels da imagem em pixels de arraste:
// (trilho - alça) / (imagem - peça). fallback indica que o ratio veio da
// heurística por largura de imagem.
func ScaleRatio(g Geometry, opts CalibrationOptions) (ratio float64, fallback bool, err error) {
	opts = opts.withDefaults()

	if g.TrackKnown && g.TrackWidth-g.HandleWidth > 0 {
		usable := g.ImageWidth - g.PieceWidth
		if usable <= 0 {
			return 0, false, fmt.Errorf("%w: imagem %dpx, peça %dpx", ErrDegenerateGeometry, g.ImageWidth, g.PieceWidth)
		}
		return float64(g.TrackWidth-g.HandleWidth) / float64(usable), false, nil
	}

	// imagens pequenas costumam ser renderizadas 1:1
	if g.ImageWidth < opts.SmallImageWidth {
		return 1.0, true, nil
	}
	return opts.FallbackRatio, true, nil
}

// DragDistance devolve round((gapX - left) * ratio).
func DragDistance(gapX, pieceLeft int, ratio float64) int {
	return int(math.Round(float64(gapX-pieceLeft) * ratio))
}

// ParsePixels lê valores CSS como "5px" ou "5.5px", truncando para inteiro.
func ParsePixels(v string) (int, error) {
	s := strings.TrimSpace(v)
	s = strings.TrimSuffix(s, "px")
	if s == "" || s == "auto" {
		return 0, fmt.Errorf("valor de pixel inválido: %q", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("valor de pixel inválido: %q: %w", v, err)
	}
	return int(f), nil
}
