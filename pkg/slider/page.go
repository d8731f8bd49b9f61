package slider

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

// Size é a caixa renderizada de um elemento, em pixels CSS.
type Size struct {
	W, H float64
}

// Page faz lookup de elementos. Deve devolver um erro que satisfaça
// errors.Is(err, ErrElementNotFound) quando o seletor não casa.
type Page interface {
	Element(ctx context.Context, selector string) (Element, error)
}

// Element é a visão mínima de um nó do DOM. Métodos devolvem ErrStaleElement
// quando o nó saiu da página.
type Element interface {
	Click(ctx context.Context) error
	ComputedStyle(ctx context.Context, property string) (string, error)
	Size(ctx context.Context) (Size, error)
	Attribute(ctx context.Context, name string) (string, error)
	Visible(ctx context.Context) (bool, error)
}

// Pointer é o dispositivo que arrasta a alça.
type Pointer interface {
	Press(ctx context.Context, on Element) error
	MoveBy(ctx context.Context, dx, dy int) error
	Release(ctx context.Context) error
}

// Artifact é o material de debug de uma tentativa.
type Artifact struct {
	Attempt    int
	Background *Raster
	Piece      *Raster
	Debug      *image.RGBA
	GapX       int
	Score      float64
	Drag       int
	Ratio      float64
	Solved     bool
}

// ArtifactSink persiste artefatos de debug. Falhas aqui nunca derrubam a tentativa.
type ArtifactSink interface {
	SaveArtifact(ctx context.Context, a Artifact) error
}

// Selectors guarda, por papel, a lista ordenada de seletores candidatos.
type Selectors struct {
	Activation []string
	Background []string
	Piece      []string
	Track      []string
	Handle     []string
	Container  []string
}

// DefaultSelectors são os seletores do widget scaptcha.
func DefaultSelectors() Selectors {
	return Selectors{
		Activation: []string{".scaptcha-anchor-checkbox", ".scaptcha-card-checkbox"},
		Background: []string{".scaptcha-card-background"},
		Piece:      []string{".scaptcha-card-slider-puzzle"},
		Track:      []string{".scaptcha-card-slider-track"},
		Handle:     []string{".scaptcha-card-slider-control"},
		Container:  []string{".scaptcha-card-container"},
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	pick := func(v, def []string) []string {
		if len(v) == 0 {
			return def
		}
		return v
	}
	return Selectors{
		Activation: pick(s.Activation, d.Activation),
		Background: pick(s.Background, d.Background),
		Piece:      pick(s.Piece, d.Piece),
		Track:      pick(s.Track, d.Track),
		Handle:     pick(s.Handle, d.Handle),
		Container:  pick(s.Container, d.Container),
	}
}

// FirstMatch tenta os candidatos em ordem e devolve o primeiro encontrado.
func FirstMatch(ctx context.Context, p Page, candidates []string) (Element, string, error) {
	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("%w: nenhum seletor configurado", ErrElementNotFound)
	}
	var lastErr error
	for _, sel := range candidates {
		el, err := p.Element(ctx, sel)
		if err == nil {
			return el, sel, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, ErrElementNotFound) {
			// erro de transporte: não adianta tentar outro seletor
			return nil, sel, err
		}
	}
	return nil, "", fmt.Errorf("%w: [%s]: %v", ErrElementNotFound, strings.Join(candidates, ", "), lastErr)
}

// Clock abstrai o tempo para que os testes não durmam de verdade.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock usa time.Now e timers de verdade, respeitando o ctx.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
