// Package daemon hosts the long-running omnish-daemon process: the
// transport server, the session manager, the scheduled task runtime, and
// LLM dispatch, wired together per the daemon runtime's message routing
// rules.
//
// Grounded on the teacher's daemon lifecycle (internal/daemon/daemon.go):
// open storage, build the long-lived services, start a signal-driven
// run loop, shut down cleanly on SIGTERM/SIGINT.
package daemon

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/omnish-sh/omnish/internal/config"
	"github.com/omnish-sh/omnish/internal/llm"
	"github.com/omnish-sh/omnish/internal/logger"
	"github.com/omnish-sh/omnish/internal/omnerr"
	"github.com/omnish-sh/omnish/internal/session"
	"github.com/omnish-sh/omnish/internal/transport"
)

const (
	defaultEvictionWindow = 30 * time.Minute
	defaultCleanupMaxAge  = 48 * time.Hour
)

// Daemon owns every long-lived server-side service.
type Daemon struct {
	cfg   *config.Config
	mgr   *session.Manager
	idx   *session.Index
	tasks *TaskManager
	token string

	backendMu sync.RWMutex
	backend   llm.Backend
}

// New constructs a Daemon from cfg, rooted at sessionsDir, with its sqlite
// side index at indexPath (empty to disable). It does not start listening.
func New(cfg *config.Config, sessionsDir, indexPath string) (*Daemon, error) {
	mgr, err := session.NewManager(sessionsDir)
	if err != nil {
		return nil, err
	}

	var idx *session.Index
	if indexPath != "" {
		idx, err = session.OpenIndex(indexPath)
		if err != nil {
			return nil, err
		}
		mgr.AttachIndex(idx)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		logger.Warn("llm backend unavailable, falling back to dummy", "err", err)
		backend = llm.NewDummyBackend()
	}

	d := &Daemon{
		cfg:     cfg,
		mgr:     mgr,
		idx:     idx,
		backend: backend,
		tasks:   NewTaskManager(),
	}
	if err := d.registerScheduledTasks(); err != nil {
		return nil, err
	}
	return d, nil
}

// currentBackend returns the active LLM backend, safe to call concurrently
// with reloadBackend.
func (d *Daemon) currentBackend() llm.Backend {
	d.backendMu.RLock()
	defer d.backendMu.RUnlock()
	return d.backend
}

// reloadBackend swaps the active backend for one built from cfg. In-flight
// requests keep using the backend they already captured.
func (d *Daemon) reloadBackend(cfg *config.Config) {
	backend, err := newBackend(cfg)
	if err != nil {
		logger.Warn("config reload: llm backend unavailable, keeping previous backend", "err", err)
		return
	}
	d.backendMu.Lock()
	d.backend = backend
	d.backendMu.Unlock()
	logger.Info("config reload: llm backend swapped", "backend", backend.Name())
}

func newBackend(cfg *config.Config) (llm.Backend, error) {
	backendCfg, key, err := cfg.ResolveBackend()
	if err != nil {
		return nil, err
	}
	return llm.New(llm.Config{
		Kind:    backendCfg.BackendType,
		APIKey:  key,
		BaseURL: backendCfg.BaseURL,
		Model:   backendCfg.Model,
	})
}

func (d *Daemon) registerScheduledTasks() error {
	if err := d.tasks.Register("eviction", "0 0 * * * *", func() {
		evicted := d.mgr.EvictInactive(defaultEvictionWindow.Milliseconds(), time.Now().UnixMilli())
		if len(evicted) > 0 {
			logger.Info("eviction task ended inactive sessions", "count", len(evicted))
		}
	}); err != nil {
		return err
	}
	if err := d.tasks.Register("disk_cleanup", "0 0 0 * * *", func() {
		removed, err := d.mgr.CleanupExpiredDirs(defaultCleanupMaxAge, time.Now())
		if err != nil {
			logger.Error("disk_cleanup task failed", "err", err)
			return
		}
		if len(removed) > 0 {
			logger.Info("disk_cleanup removed expired session directories", "count", len(removed))
		}
	}); err != nil {
		return err
	}
	return nil
}

// Run loads/creates the auth token and TLS material, binds the configured
// socket, and serves until SIGTERM/SIGINT. It returns nil on a clean
// shutdown and a non-nil error only for unrecoverable startup failures.
func Run(cfg *config.Config) error {
	sessionsDir, err := config.SessionsDir()
	if err != nil {
		return omnerr.New("daemon.Run", omnerr.ConfigInvalid, err)
	}
	if err := config.EnsureDataDirs(); err != nil {
		return omnerr.New("daemon.Run", omnerr.ConfigInvalid, err)
	}

	d, err := New(cfg, sessionsDir, "")
	if err != nil {
		return err
	}
	if d.idx != nil {
		defer d.idx.Close()
	}

	tokenPath, err := config.AuthTokenPath()
	if err != nil {
		return omnerr.New("daemon.Run", omnerr.ConfigInvalid, err)
	}
	token, err := LoadOrCreateToken(tokenPath)
	if err != nil {
		return err
	}
	d.token = token

	ln, err := bindSocket(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	srv := transport.NewServer(ln, d.token, d.handle)

	d.tasks.RunNow("disk_cleanup")
	go d.tasks.Run(ctx)
	go d.watchConfig(ctx, config.ConfigPath())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	logger.Info("daemon started", "socket", cfg.Daemon.SocketPath)

	select {
	case sig := <-sigCh:
		logger.Info("daemon shutting down", "signal", sig.String())
		cancel()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// bindSocket chooses between a Unix-domain socket and a TLS-wrapped TCP
// listener depending on whether SocketPath looks like a host:port address
// or a filesystem path.
func bindSocket(cfg *config.Config) (net.Listener, error) {
	addr := cfg.Daemon.SocketPath
	if LooksLikeTCPAddr(addr) {
		tlsDir, err := config.TLSDir()
		if err != nil {
			return nil, omnerr.New("daemon.bindSocket", omnerr.ConfigInvalid, err)
		}
		tlsConfig, err := LoadOrCreateTLSConfig(tlsDir)
		if err != nil {
			return nil, err
		}
		return transport.ListenTCP(addr, tlsConfig)
	}
	return transport.ListenUnix(addr)
}

// LooksLikeTCPAddr reports whether addr parses as host:port, as opposed to
// a Unix socket filesystem path. Shared by the daemon's own bind-side
// decision and the client runtime's matching dial-side decision.
func LooksLikeTCPAddr(addr string) bool {
	if strings.HasPrefix(addr, "/") || strings.HasPrefix(addr, "./") || strings.HasPrefix(addr, "~") {
		return false
	}
	_, _, err := net.SplitHostPort(addr)
	return err == nil
}
