package slider

import (
	"context"
	"fmt"
	"image"
)

// LocatorOptions parametriza o Gap Locator. Zero values assumem os defaults.
type LocatorOptions struct {
	CannyLow         float64
	CannyHigh        float64
	ExclusionColumns int
	// MinScore desligado (0) aceita qualquer máximo global
	MinScore float64
}

const (
	DefaultCannyLow         = 50
	DefaultCannyHigh        = 150
	DefaultExclusionColumns = 50
)

func (o LocatorOptions) withDefaults() LocatorOptions {
	if o.CannyLow <= 0 {
		o.CannyLow = DefaultCannyLow
	}
	if o.CannyHigh <= 0 {
		o.CannyHigh = DefaultCannyHigh
	}
	if o.ExclusionColumns <= 0 {
		o.ExclusionColumns = DefaultExclusionColumns
	}
	return o
}

// GapLocation é o offset horizontal, no espaço de pixels do background, onde
// a peça encaixa.
type GapLocation struct {
	X     int
	Y     int
	Score float64
	Debug *image.RGBA
}

// GapFinder é quem decide onde a peça encaixa: o Locator local ou um
// serviço remoto.
type GapFinder interface {
	FindGap(ctx context.Context, background, piece *Raster) (GapLocation, error)
}

// Locator encontra o gap comparando mapas de borda da peça e do background.
type Locator struct {
	opts LocatorOptions
}

func NewLocator(opts LocatorOptions) *Locator {
	return &Locator{opts: opts.withDefaults()}
}

func (l *Locator) FindGap(_ context.Context, background, piece *Raster) (GapLocation, error) {
	return l.Locate(background, piece)
}

// Locate é determinístico para as mesmas imagens. A coluna de exclusão
// existe porque a peça começa colada na borda esquerda e casaria consigo mesma.
func (l *Locator) Locate(background, piece *Raster) (GapLocation, error) {
	if piece.Width() > background.Width() || piece.Height() > background.Height() {
		return GapLocation{}, fmt.Errorf("%w: peça %dx%d, background %dx%d", ErrPieceTooLarge,
			piece.Width(), piece.Height(), background.Width(), background.Height())
	}

	x, y, score, err := matchEdges(background, piece, l.opts, l.opts.ExclusionColumns)
	if err != nil {
		return GapLocation{}, err
	}
	loc := GapLocation{
		X:     x,
		Y:     y,
		Score: score,
		Debug: Annotate(background, x, y, piece.Width(), piece.Height()),
	}

	if l.opts.MinScore > 0 && score < l.opts.MinScore {
		return loc, fmt.Errorf("%w: score %.3f < %.3f", ErrLowConfidence, score, l.opts.MinScore)
	}
	return loc, nil
}
