package slider

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"regexp"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNoPayload indica que o estilo não traz um data URI base64 de imagem
	ErrNoPayload = errors.New("nenhum payload data:image base64 no estilo")
	// ErrBadBase64 indica payload base64 malformado
	ErrBadBase64 = errors.New("base64 inválido")
	// ErrBadRaster indica bytes que não decodificam como imagem
	ErrBadRaster = errors.New("raster inválido")
	// ErrEmptyRaster indica imagem com largura ou altura zero
	ErrEmptyRaster = errors.New("raster vazio")
)

// ExtractionError envolve qualquer falha de extração de imagem do estilo.
type ExtractionError struct {
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("extração de imagem (%s): %v", e.Format, e.Err)
	}
	return fmt.Sprintf("extração de imagem: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// url("data:image/png;base64,...."): o payload termina em aspas, parênteses ou espaço
var dataURIPattern = regexp.MustCompile(`data:image/([A-Za-z0-9.+-]+);base64,([^"'\)\s]+)`)

// Raster é um buffer de pixels decodificado. Color guarda RGB com alpha
// achatado (sempre 255); Alpha só existe quando a origem tinha transparência.
type Raster struct {
	Color    *image.RGBA
	Alpha    *image.Alpha
	Channels int
}

func (r *Raster) Width() int  { return r.Color.Bounds().Dx() }
func (r *Raster) Height() int { return r.Color.Bounds().Dy() }

// HasAlpha informa se a silhueta da origem foi preservada.
func (r *Raster) HasAlpha() bool { return r.Alpha != nil }

// ExtractFromStyle decodifica a imagem embutida num valor computado de
// background-image. Qualquer outra forma (URL externa, gradiente, none) é erro.
func ExtractFromStyle(style string) (*Raster, error) {
	m := dataURIPattern.FindStringSubmatch(style)
	if m == nil {
		return nil, &ExtractionError{Err: ErrNoPayload}
	}
	format, payload := strings.ToLower(m[1]), m[2]

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, &ExtractionError{Format: format, Err: fmt.Errorf("%w: %v", ErrBadBase64, err)}
	}

	r, err := DecodeRaster(bytes.NewReader(data))
	if err != nil {
		return nil, &ExtractionError{Format: format, Err: err}
	}
	return r, nil
}

func decodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	// alguns widgets cortam o padding
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// DecodeRaster decodifica bytes de imagem e normaliza os canais.
func DecodeRaster(rd io.Reader) (*Raster, error) {
	img, _, err := image.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRaster, err)
	}
	return FromImage(img)
}

// FromImage normaliza uma imagem qualquer para Raster: cinza vira 3 canais,
// transparência vai para um canal Alpha separado.
func FromImage(img image.Image) (*Raster, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, ErrEmptyRaster
	}

	channels := channelCount(img)
	rgb := image.NewRGBA(image.Rect(0, 0, w, h))
	var alpha *image.Alpha
	if channels == 4 {
		alpha = image.NewAlpha(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			off := rgb.PixOffset(x, y)
			rgb.Pix[off+0] = c.R
			rgb.Pix[off+1] = c.G
			rgb.Pix[off+2] = c.B
			rgb.Pix[off+3] = 0xff
			if alpha != nil {
				alpha.Pix[alpha.PixOffset(x, y)] = c.A
			}
		}
	}

	return &Raster{Color: rgb, Alpha: alpha, Channels: channels}, nil
}

func channelCount(img image.Image) int {
	m := img.ColorModel()
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	}
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.YCbCrModel, color.CMYKModel:
		return 3
	}
	// PNG RGB sem transparência também decodifica como *image.RGBA
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// Encode grava o raster como PNG, reaplicando o alpha quando existe.
func (r *Raster) Encode(w io.Writer) error {
	if r.Alpha == nil {
		return png.Encode(w, r.Color)
	}
	b := r.Color.Bounds()
	out := image.NewNRGBA(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			src := r.Color.PixOffset(x, y)
			dst := out.PixOffset(x, y)
			copy(out.Pix[dst:dst+3], r.Color.Pix[src:src+3])
			out.Pix[dst+3] = r.Alpha.Pix[r.Alpha.PixOffset(x, y)]
		}
	}
	return png.Encode(w, out)
}
