// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/config"
)

// Manager owns the browser process lifecycle and hands out page sessions.
// The underlying Chrome instance is launched lazily by chromedp when the
// first page runs an action, so constructing a Manager is cheap.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
	cfg         config.BrowserConfig

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup // Tracks open sessions so Shutdown can wait for stragglers.
	closed   bool
}

// Ensure Manager implements the interface.
var _ schemas.PageManager = (*Manager)(nil)

// NewManager creates a browser manager. The browser process itself starts
// when the first session is requested.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	m := &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		logger:      logger.Named("browser_manager"),
		cfg:         cfg,
		sessions:    make(map[string]*Session),
	}
	m.logger.Info("Browser manager created (browser launch deferred).")
	return m
}

// allocatorOptions assembles the Chrome launch flags from the configuration.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range cfg.Args {
		name, value := parseChromeArg(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseChromeArg converts a raw command line argument ("--foo=bar" or
// "--foo") into the name and value pair chromedp.Flag expects.
func parseChromeArg(arg string) (string, any) {
	trimmed := strings.TrimLeft(strings.TrimSpace(arg), "-")
	if trimmed == "" {
		return "", nil
	}
	if idx := strings.Index(trimmed, "="); idx >= 0 {
		if idx == 0 {
			return "", nil
		}
		return trimmed[:idx], trimmed[idx+1:]
	}
	return trimmed, true
}

// NewPage opens a fresh browser tab and navigates it to url. The returned
// page stays registered with the manager until its Close is called.
func (m *Manager) NewPage(ctx context.Context, url string) (schemas.Page, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("browser manager is shut down")
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)
	session := newSession(tabCtx, tabCancel, m.cfg, m.logger)

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	}

	if err := session.navigate(ctx, url); err != nil {
		// Release the tab immediately; the caller only sees the navigation error.
		_ = session.Close(context.Background())
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = session.Close(context.Background())
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New page session created.",
		zap.String("session_id", session.ID()),
		zap.String("url", url))
	return session, nil
}

// Shutdown closes all open sessions and terminates the browser process.
// The context bounds how long to wait for sessions to drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("open_sessions", len(sessionsToClose)))

	var g errgroup.Group
	for _, s := range sessionsToClose {
		s := s // go.mod targets go 1.21: range vars are shared across iterations
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.",
					zap.String("session_id", s.ID()), zap.Error(err))
				return err
			}
			return nil
		})
	}
	closeErr := g.Wait()

	// Sessions being closed concurrently by their owners may not be in the
	// snapshot above; the wait group covers those too.
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return closeErr
}
