package vision

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// loopback entrega o pedido direto ao Handler, sem servidor NATS.
type loopback struct {
	h       *Handler
	subject string
}

func (l *loopback) RequestWithContext(_ context.Context, subj string, data []byte) (*nats.Msg, error) {
	l.subject = subj
	return &nats.Msg{Subject: subj, Data: l.h.Handle(data)}, nil
}

func square(w, h int, r image.Rectangle) *slider.Raster {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 0xff}
			if image.Pt(x, y).In(r) {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}
	raster, _ := slider.FromImage(img)
	return raster
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestClient_RoundTrip(t *testing.T) {
	lb := &loopback{h: NewHandler(slider.LocatorOptions{}, quiet())}
	c := NewClient(lb, "", 0, quiet())

	bg := square(300, 150, image.Rect(175, 55, 195, 75))
	piece := square(50, 50, image.Rect(15, 15, 35, 35))

	loc, err := c.FindGap(context.Background(), bg, piece)
	if err != nil {
		t.Fatalf("FindGap: %v", err)
	}
	if lb.subject != SubjectSlider {
		t.Errorf("subject = %q, esperava %q", lb.subject, SubjectSlider)
	}
	if loc.X != 160 || loc.Y != 40 {
		t.Errorf("gap = (%d,%d), esperava (160,40)", loc.X, loc.Y)
	}
	if loc.Score < 0.999 {
		t.Errorf("confiança = %.3f", loc.Score)
	}
	if loc.Debug == nil || loc.Debug.Bounds().Dx() != 300 || loc.Debug.Bounds().Dy() != 150 {
		t.Error("match anotado ausente no caminho remoto")
	}
}

func TestClient_ConfiancaBaixa(t *testing.T) {
	lb := &loopback{h: NewHandler(slider.LocatorOptions{MinScore: 0.999}, quiet())}
	c := NewClient(lb, "", 0, quiet())

	bg := square(300, 150, image.Rect(150, 60, 169, 79))
	piece := square(40, 40, image.Rect(10, 10, 30, 30))
	loc, err := c.FindGap(context.Background(), bg, piece)
	if !errors.Is(err, slider.ErrLowConfidence) {
		t.Fatalf("esperava ErrLowConfidence, veio %v", err)
	}
	if loc.Debug == nil {
		t.Error("confiança baixa também devia trazer o match anotado")
	}
}

func TestHandle_PedidoInvalido(t *testing.T) {
	h := NewHandler(slider.LocatorOptions{}, quiet())

	tests := []struct {
		name string
		body string
	}{
		{"json quebrado", `{"background_b64":`},
		{"base64 inválido", `{"background_b64":"@@@","piece_b64":"@@@"}`},
		{"data uri sem imagem", `{"background_b64":"data:image/png;base64,bm9wZQ==","piece_b64":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp GapResponse
			if err := json.Unmarshal(h.Handle([]byte(tt.body)), &resp); err != nil {
				t.Fatalf("resposta não é JSON: %v", err)
			}
			if resp.Success || resp.ErrorKind != KindBadRequest || resp.Error == "" {
				t.Errorf("resposta inesperada: %+v", resp)
			}
		})
	}
}

func TestHandle_AceitaDataURI(t *testing.T) {
	h := NewHandler(slider.LocatorOptions{}, quiet())
	bg, _ := EncodeRaster(square(300, 150, image.Rect(175, 55, 195, 75)))
	piece, _ := EncodeRaster(square(50, 50, image.Rect(15, 15, 35, 35)))

	body, _ := json.Marshal(GapRequest{
		RequestID:     "abc",
		BackgroundB64: "data:image/png;base64," + bg,
		PieceB64:      piece,
	})
	var resp GapResponse
	if err := json.Unmarshal(h.Handle(body), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.XOffset != 160 || resp.RequestID != "abc" {
		t.Errorf("resposta inesperada: %+v", resp)
	}
}
