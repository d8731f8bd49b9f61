package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loviiin/scaptcha/pkg/slider"
)

// ErrRemoteFailed indica que o serviço respondeu success=false.
var ErrRemoteFailed = errors.New("vision service falhou")

// Requester é o pedaço de *nats.Conn usado pelo cliente.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Client implementa slider.GapFinder delegando ao serviço via NATS.
type Client struct {
	nc      Requester
	subject string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(nc Requester, subject string, timeout time.Duration, logger *slog.Logger) *Client {
	if subject == "" {
		subject = SubjectSlider
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{nc: nc, subject: subject, timeout: timeout, logger: logger}
}

func (c *Client) FindGap(ctx context.Context, background, piece *slider.Raster) (slider.GapLocation, error) {
	bg, err := EncodeRaster(background)
	if err != nil {
		return slider.GapLocation{}, err
	}
	pc, err := EncodeRaster(piece)
	if err != nil {
		return slider.GapLocation{}, err
	}
	req := GapRequest{RequestID: uuid.NewString(), BackgroundB64: bg, PieceB64: pc}
	payload, _ := json.Marshal(req)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("[NATS] enviando pedido de gap", "subject", c.subject, "request_id", req.RequestID, "bytes", len(payload))
	msg, err := c.nc.RequestWithContext(ctx, c.subject, payload)
	if err != nil {
		return slider.GapLocation{}, fmt.Errorf("erro na requisição NATS: %w", err)
	}

	var resp GapResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return slider.GapLocation{}, fmt.Errorf("erro parseando resposta: %w", err)
	}

	loc := slider.GapLocation{X: int(resp.XOffset), Y: resp.YOffset, Score: resp.Confidence}
	if !resp.Success {
		if resp.ErrorKind == KindLowConfidence {
			// a posição veio preenchida; o match anotado ainda serve de diagnóstico
			loc.Debug = slider.Annotate(background, loc.X, loc.Y, piece.Width(), piece.Height())
			return loc, fmt.Errorf("%w: %s", slider.ErrLowConfidence, resp.Error)
		}
		return loc, fmt.Errorf("%w: %s", ErrRemoteFailed, resp.Error)
	}

	// a resposta não traz imagem; o match anotado é desenhado aqui
	loc.Debug = slider.Annotate(background, loc.X, loc.Y, piece.Width(), piece.Height())

	c.logger.Info("[NATS] gap recebido", "request_id", req.RequestID, "x_offset", loc.X, "confidence", loc.Score)
	return loc, nil
}
