// Package browser captures endpoint screenshots through headless Chrome.
// Like nmap, it is an optional collaborator: a missing browser or a failed
// capture is recorded per endpoint and the run continues.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/reconward/reconward/internal/config"
	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/pkg/types"
)

type Screenshotter struct {
	cfg config.BrowserConfig
	log *logger.Logger
}

func NewScreenshotter(cfg config.BrowserConfig, log *logger.Logger) *Screenshotter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1920
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 1080
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Screenshotter{cfg: cfg, log: log.WithComponent("browser")}
}

// Capture screenshots every endpoint into outDir, one PNG each, reusing a
// single browser process, and returns one record per endpoint in input
// order. One failed capture never stops the rest.
func (s *Screenshotter) Capture(ctx context.Context, endpoints []types.Endpoint, outDir string) ([]types.Screenshot, error) {
	if len(endpoints) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(s.cfg.ViewportWidth, s.cfg.ViewportHeight),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	results := make([]types.Screenshot, 0, len(endpoints))
	for _, ep := range endpoints {
		shot := types.Screenshot{Endpoint: ep.URL}
		if ctx.Err() != nil {
			shot.Err = ctx.Err().Error()
			results = append(results, shot)
			continue
		}

		path := filepath.Join(outDir, fileNameFor(ep))
		if err := s.capture(browserCtx, ep.URL, path); err != nil {
			shot.Err = err.Error()
			s.log.Warnw("Screenshot failed", "endpoint", ep.URL, "error", err)
		} else {
			shot.Path = path
			s.log.Debugw("Screenshot captured", "endpoint", ep.URL, "path", path)
		}
		results = append(results, shot)
	}
	return results, nil
}

func (s *Screenshotter) capture(browserCtx context.Context, url, path string) error {
	ctx, cancel := context.WithTimeout(browserCtx, s.cfg.Timeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
	}
	if s.cfg.WaitForLoad > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.WaitForLoad))
	}

	var buf []byte
	actions = append(actions, chromedp.FullScreenshot(&buf, 85))

	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("capture of %s failed: %w", url, err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func fileNameFor(ep types.Endpoint) string {
	name := fmt.Sprintf("%s_%d", ep.Host, ep.Port)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	return name + ".png"
}
