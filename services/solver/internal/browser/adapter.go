package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// Page adapta *rod.Page para slider.Page e slider.Pointer.
type Page struct {
	page *rod.Page
	// posição do mouse desde o último Press
	pos proto.Point
}

func NewPage(p *rod.Page) *Page { return &Page{page: p} }

var (
	_ slider.Page    = (*Page)(nil)
	_ slider.Pointer = (*Page)(nil)
	_ slider.Element = (*Element)(nil)
)

// Element consulta o DOM uma vez, sem esperar. Quem precisa esperar o widget
// usa captcha.WaitForCaptcha antes.
func (p *Page) Element(ctx context.Context, selector string) (slider.Element, error) {
	ok, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("consulta %s: %w", selector, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", slider.ErrElementNotFound, selector)
	}
	return &Element{el: el}, nil
}

// Press move o mouse até o centro do elemento e segura o botão esquerdo.
func (p *Page) Press(ctx context.Context, on slider.Element) error {
	e, ok := on.(*Element)
	if !ok {
		return fmt.Errorf("elemento %T não pertence ao rod", on)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	x, y, _, _, err := e.quad(ctx)
	if err != nil {
		return err
	}
	p.pos = proto.Point{X: x, Y: y}
	if err := p.page.Mouse.MoveLinear(p.pos, 5); err != nil {
		return fmt.Errorf("erro movendo até a alça: %w", err)
	}
	return p.page.Mouse.Down(proto.InputMouseButtonLeft, 1)
}

// MoveBy desloca o mouse em relação à posição atual.
func (p *Page) MoveBy(ctx context.Context, dx, dy int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.pos = proto.Point{X: p.pos.X + float64(dx), Y: p.pos.Y + float64(dy)}
	return p.page.Mouse.MoveTo(p.pos)
}

// Release solta o botão. Usa o contexto do page para soltar mesmo com ctx cancelado.
func (p *Page) Release(context.Context) error {
	return p.page.Mouse.Up(proto.InputMouseButtonLeft, 1)
}

// Element adapta *rod.Element.
type Element struct {
	el *rod.Element
}

func (e *Element) Click(ctx context.Context) error {
	return stale(e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (e *Element) ComputedStyle(ctx context.Context, property string) (string, error) {
	res, err := e.el.Context(ctx).Eval(`(p) => getComputedStyle(this).getPropertyValue(p)`, property)
	if err != nil {
		return "", stale(err)
	}
	return res.Value.Str(), nil
}

func (e *Element) Size(ctx context.Context) (slider.Size, error) {
	_, _, w, h, err := e.quad(ctx)
	if err != nil {
		return slider.Size{}, err
	}
	return slider.Size{W: w, H: h}, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", stale(err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	v, err := e.el.Context(ctx).Visible()
	return v, stale(err)
}

// quad devolve centro e tamanho do primeiro quad do elemento.
func (e *Element) quad(ctx context.Context) (cx, cy, w, h float64, err error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return 0, 0, 0, 0, stale(err)
	}
	if len(shape.Quads) == 0 {
		return 0, 0, 0, 0, errors.New("elemento não tem dimensões válidas")
	}
	q := shape.Quads[0]
	cx = (q[0] + q[2]) / 2
	cy = (q[1] + q[5]) / 2
	return cx, cy, q[2] - q[0], q[5] - q[1], nil
}

// stale converte erros de nó destacado do DOM em slider.ErrStaleElement.
func stale(err error) error {
	if err == nil {
		return nil
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		return fmt.Errorf("%w: %v", slider.ErrStaleElement, err)
	}
	return err
}
