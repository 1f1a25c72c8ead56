package achd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/coreos/go-systemd/activation"
	"golang.org/x/sync/errgroup"

	"github.com/rswindell/ach/internal/achutil"
)

// DaemonConfig configures the standalone listener mode: bind to a fixed
// port instead of running once per inetd-spawned connection over
// stdin/stdout.
type DaemonConfig struct {
	Addr           string        // listen address, e.g. ":8076"
	PIDFile        string        // tableflip PID file path; empty disables it
	UseSystemd     bool          // prefer systemd-activated sockets over binding Addr
	DrainTimeout   time.Duration // grace period for in-flight sessions on shutdown
	SessionHandler func(ctx context.Context, conn net.Conn) error
}

// Daemon runs achd as a standalone listener: it either inherits
// listeners from systemd socket activation or binds Addr itself (with
// tableflip managing SIGHUP-triggered listener handoff so an upgrade
// doesn't drop in-flight sessions), then accepts connections and runs
// SessionHandler for each one concurrently.
func Daemon(ctx context.Context, log *achutil.Logger, cfg DaemonConfig) error {
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 60 * time.Second
	}

	upg, err := tableflip.New(tableflip.Options{PIDFile: cfg.PIDFile})
	if err != nil {
		return fmt.Errorf("achd: tableflip.New: %w", err)
	}
	defer upg.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP)
		for range sig {
			log.Infof("received SIGHUP, upgrading listener")
			if err := upg.Upgrade(); err != nil {
				log.Errorf("upgrade: %v", err)
			}
		}
	}()

	listeners, err := acquireListeners(upg, cfg)
	if err != nil {
		return err
	}

	if err := upg.Ready(); err != nil {
		return fmt.Errorf("achd: tableflip.Ready: %w", err)
	}
	log.Infof("achd daemon listening on %d socket(s)", len(listeners))

	var sessions sync.WaitGroup
	g, gctx := errgroup.WithContext(ctx)
	for i, ln := range listeners {
		ln := ln
		idx := i
		g.Go(func() error {
			return acceptLoop(gctx, log, idx, ln, cfg.SessionHandler, &sessions)
		})
	}

	select {
	case <-upg.Exit():
		log.Infof("tableflip exit requested, draining sessions")
	case <-ctx.Done():
		log.Infof("shutdown requested, draining sessions")
	}

	for _, ln := range listeners {
		ln.Close()
	}
	if err := g.Wait(); err != nil {
		log.Errorf("accept loop: %v", err)
	}

	drained := make(chan struct{})
	go func() {
		sessions.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		log.Infof("all sessions drained")
	case <-time.After(cfg.DrainTimeout):
		log.Infof("drain timeout elapsed with sessions still active")
	}

	return nil
}

// acquireListeners prefers systemd-activated sockets when cfg.UseSystemd
// is set, falling back to a manual bind through tableflip so future
// upgrades can hand the listener off without dropping connections.
func acquireListeners(upg *tableflip.Upgrader, cfg DaemonConfig) ([]net.Listener, error) {
	if cfg.UseSystemd {
		listeners, err := activation.Listeners()
		if err != nil {
			return nil, fmt.Errorf("achd: activation.Listeners: %w", err)
		}
		if len(listeners) > 0 {
			return listeners, nil
		}
	}
	ln, err := upg.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("achd: listen %s: %w", cfg.Addr, err)
	}
	return []net.Listener{ln}, nil
}

func acceptLoop(ctx context.Context, log *achutil.Logger, idx int, ln net.Listener, handle func(context.Context, net.Conn) error, sessions *sync.WaitGroup) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Errorf("listener %d accept: %v", idx, err)
			return err
		}
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			defer conn.Close()
			if err := handle(ctx, conn); err != nil {
				log.Errorf("session from %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
