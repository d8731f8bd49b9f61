package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Options é o pedaço do config que o browser usa.
type Options struct {
	Bin         string
	StateDir    string
	Headless    bool
	MonitorPort string
	Stealth     bool
	Width       int
	Height      int
}

// NewBrowser cria uma instância de browser Rod com estado persistente.
// O UserDataDir mantém cookies e localStorage entre execuções.
func NewBrowser(ctx context.Context, opts Options) (*rod.Browser, error) {
	path := opts.Bin
	if path == "" {
		path, _ = launcher.LookPath()
	}

	l := launcher.New().
		Context(ctx).
		Bin(path).
		UserDataDir(opts.StateDir).
		Leakless(false).
		Set("use-gl", "swiftshader"). // Software rendering para containers
		Set("disable-gpu").
		Set("no-sandbox") // Necessário em containers Linux

	if opts.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false) // Para desenvolvimento/VNC (Permite ver a tela)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("erro ao iniciar browser: %w", err)
	}

	b := rod.New().Context(ctx).ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("erro conectando ao browser: %w", err)
	}

	if opts.MonitorPort != "" {
		go b.ServeMonitor(opts.MonitorPort)
		slog.Info("[Rod] monitor de debug ativo", "addr", opts.MonitorPort)
	}
	return b, nil
}

// OpenPage abre uma aba (stealth quando configurado) e ajusta o viewport.
func OpenPage(b *rod.Browser, opts Options) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("erro criando pagina: %w", err)
	}

	if opts.Width > 0 && opts.Height > 0 {
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			page.Close()
			return nil, fmt.Errorf("erro ajustando viewport: %w", err)
		}
	}
	return page, nil
}
