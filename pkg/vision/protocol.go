// Package vision expõe o Gap Locator via NATS request-reply, para que o solver
// possa delegar o template matching a um worker separado.
package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// SubjectSlider é o tópico de request-reply do locator.
const SubjectSlider = "jobs.captcha.slider"

// GapRequest é o JSON enviado ao serviço. As imagens vão como base64 puro ou
// como data URI completo.
type GapRequest struct {
	RequestID     string `json:"request_id,omitempty"`
	BackgroundB64 string `json:"background_b64"`
	PieceB64      string `json:"piece_b64"`
}

// GapResponse é a resposta do serviço.
type GapResponse struct {
	RequestID  string  `json:"request_id,omitempty"`
	XOffset    float64 `json:"x_offset"`
	YOffset    int     `json:"y_offset"`
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
	ErrorKind  string  `json:"error_kind,omitempty"`
}

// Error kinds do protocolo
const (
	KindBadRequest    = "bad_request"
	KindLowConfidence = "low_confidence"
	KindLocator       = "locator"
)

// EncodeRaster serializa o raster como PNG em base64.
func EncodeRaster(r *slider.Raster) (string, error) {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return "", fmt.Errorf("erro codificando png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeRaster aceita base64 puro ou data URI.
func DecodeRaster(payload string) (*slider.Raster, error) {
	if strings.HasPrefix(payload, "data:image") {
		return slider.ExtractFromStyle(payload)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", slider.ErrBadBase64, err)
	}
	return slider.DecodeRaster(bytes.NewReader(data))
}
