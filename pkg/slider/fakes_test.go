package slider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"
)

// fakeClock avança só quando alguém dorme.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type fakeElement struct {
	styles  map[string]string
	attrs   map[string]string
	size    Size
	hidden  bool
	stale   bool
	clicks  int
	sizeErr error
	visErr  error
}

func (e *fakeElement) Click(context.Context) error {
	if e.stale {
		return ErrStaleElement
	}
	e.clicks++
	return nil
}

func (e *fakeElement) ComputedStyle(_ context.Context, prop string) (string, error) {
	if e.stale {
		return "", ErrStaleElement
	}
	v, ok := e.styles[prop]
	if !ok {
		return "", fmt.Errorf("estilo %q ausente", prop)
	}
	return v, nil
}

func (e *fakeElement) Size(context.Context) (Size, error) {
	if e.sizeErr != nil {
		return Size{}, e.sizeErr
	}
	return e.size, nil
}

func (e *fakeElement) Attribute(_ context.Context, name string) (string, error) {
	if e.stale {
		return "", ErrStaleElement
	}
	return e.attrs[name], nil
}

func (e *fakeElement) Visible(context.Context) (bool, error) {
	if e.stale {
		return false, ErrStaleElement
	}
	if e.visErr != nil {
		return false, e.visErr
	}
	return !e.hidden, nil
}

type fakePage struct {
	elements map[string]*fakeElement
	lookups  map[string]int
	// onLookup roda antes de cada busca; usado para remover o widget no meio do polling
	onLookup func(sel string, n int)
}

func newFakePage() *fakePage {
	return &fakePage{elements: map[string]*fakeElement{}, lookups: map[string]int{}}
}

func (p *fakePage) Element(_ context.Context, sel string) (Element, error) {
	p.lookups[sel]++
	if p.onLookup != nil {
		p.onLookup(sel, p.lookups[sel])
	}
	el, ok := p.elements[sel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, sel)
	}
	return el, nil
}

type fakePointer struct {
	pressed   bool
	released  bool
	moves     []DragStep
	failAt    int
	onRelease func()
}

func (p *fakePointer) Press(context.Context, Element) error {
	p.pressed = true
	return nil
}

func (p *fakePointer) MoveBy(_ context.Context, dx, dy int) error {
	if p.failAt > 0 && len(p.moves)+1 == p.failAt {
		return errors.New("mouse perdeu o alvo")
	}
	p.moves = append(p.moves, DragStep{DX: dx, DY: dy})
	return nil
}

func (p *fakePointer) Release(context.Context) error {
	p.released = true
	if p.onRelease != nil {
		p.onRelease()
	}
	return nil
}

func (p *fakePointer) totalDX() int {
	sum := 0
	for _, m := range p.moves {
		sum += m.DX
	}
	return sum
}

type fakeSink struct {
	saved []Artifact
	err   error
}

func (s *fakeSink) SaveArtifact(_ context.Context, a Artifact) error {
	s.saved = append(s.saved, a)
	return s.err
}

// canvas cria uma imagem preta com quadrados brancos.
func canvas(w, h int, squares ...image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	for _, r := range squares {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func mustRaster(t *testing.T, img image.Image) *Raster {
	t.Helper()
	r, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	return r
}

func dataURIStyle(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return `url("data:image/png;base64,` + base64.StdEncoding.EncodeToString(buf.Bytes()) + `")`
}
