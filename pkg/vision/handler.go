package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// Handler responde pedidos de localização de gap.
type Handler struct {
	locator *slider.Locator
	logger  *slog.Logger
}

func NewHandler(opts slider.LocatorOptions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{locator: slider.NewLocator(opts), logger: logger}
}

// Serve é o callback de nats.Subscribe.
func (h *Handler) Serve(m *nats.Msg) {
	if err := m.Respond(h.Handle(m.Data)); err != nil {
		h.logger.Error("[NATS] falha ao responder", "subject", m.Subject, "error", err)
	}
}

// Handle processa um GapRequest serializado e devolve o GapResponse serializado.
// Nunca falha: erros viram success=false.
func (h *Handler) Handle(data []byte) []byte {
	var req GapRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return h.reply(GapResponse{Error: fmt.Sprintf("json inválido: %v", err), ErrorKind: KindBadRequest})
	}

	bg, err := DecodeRaster(req.BackgroundB64)
	if err != nil {
		return h.reply(GapResponse{RequestID: req.RequestID, Error: "background: " + err.Error(), ErrorKind: KindBadRequest})
	}
	piece, err := DecodeRaster(req.PieceB64)
	if err != nil {
		return h.reply(GapResponse{RequestID: req.RequestID, Error: "piece: " + err.Error(), ErrorKind: KindBadRequest})
	}

	loc, err := h.locator.Locate(bg, piece)
	resp := GapResponse{
		RequestID:  req.RequestID,
		XOffset:    float64(loc.X),
		YOffset:    loc.Y,
		Confidence: loc.Score,
	}
	switch {
	case errors.Is(err, slider.ErrLowConfidence):
		resp.Error, resp.ErrorKind = err.Error(), KindLowConfidence
	case err != nil:
		resp.Error, resp.ErrorKind = err.Error(), KindLocator
	default:
		resp.Success = true
	}

	h.logger.Info("[Vision] gap localizado",
		"request_id", req.RequestID, "x", loc.X, "confidence", loc.Score, "success", resp.Success)
	return h.reply(resp)
}

func (h *Handler) reply(resp GapResponse) []byte {
	if !resp.Success {
		h.logger.Warn("[Vision] pedido falhou", "request_id", resp.RequestID, "kind", resp.ErrorKind, "error", resp.Error)
	}
	out, _ := json.Marshal(resp)
	return out
}
