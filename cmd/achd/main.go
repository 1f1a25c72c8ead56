// Command achd forwards frames between a local channel and a remote
// peer over TCP, either as an inetd-style one-shot server, a standalone
// daemon, or a client dialing out.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rswindell/ach/internal/achd"
	"github.com/rswindell/ach/internal/achutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	verbosity  int
	daemonize  bool
	useSystemd bool
	addr       string
	pidFile    string

	channelName string
	transport   string
	direction   string
	remoteHost  string
	remotePort  int
	frameCount  int
	frameSize   int
	getLast     bool
	retry       bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "achd",
		Short: "Forward ach channel frames over the network",
	}
	cmd.PersistentFlags().CountVarP(&f.verbosity, "verbose", "v", "increase logging verbosity")
	cmd.PersistentFlags().StringVar(&f.channelName, "channel-name", "", "local channel name")
	cmd.PersistentFlags().StringVar(&f.transport, "transport", "tcp", "transport: tcp or udp")
	cmd.PersistentFlags().IntVar(&f.frameCount, "frame-count", 10, "channel ring buffer frame count")
	cmd.PersistentFlags().IntVar(&f.frameSize, "frame-size", 4096, "channel ring buffer frame size")
	cmd.PersistentFlags().BoolVar(&f.getLast, "get-last", false, "push the newest frame instead of every frame in order")
	cmd.PersistentFlags().BoolVar(&f.retry, "retry", false, "client: set Retry in the local session headers (the connection is attempted once)")

	cmd.AddCommand(newServeCmd(f))
	cmd.AddCommand(newClientCmd(f))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(achutil.Version)
		},
	}
}

func newServeCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept a session: from inetd/stdio by default, or standalone with --daemonize",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := achutil.NewLogger("achd", f.verbosity)
			ctx := rootContext()

			if f.daemonize {
				return runDaemon(ctx, log, f)
			}
			return runInetdServer(ctx, log)
		},
	}
	cmd.Flags().BoolVar(&f.daemonize, "daemonize", false, "run as a standalone listener instead of inetd/stdio")
	cmd.Flags().BoolVar(&f.useSystemd, "systemd", false, "prefer systemd socket activation over binding --addr")
	cmd.Flags().StringVar(&f.addr, "addr", fmt.Sprintf(":%d", achd.DefaultPort), "listen address in daemonize mode")
	cmd.Flags().StringVar(&f.pidFile, "pidfile", "", "tableflip pidfile for daemonize mode")
	return cmd
}

func newClientCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect out to a remote achd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := achutil.NewLogger("achd", f.verbosity)
			ctx := rootContext()
			return runClient(ctx, log, f)
		},
	}
	cmd.Flags().StringVar(&f.remoteHost, "remote-host", "", "host to connect to")
	cmd.Flags().IntVar(&f.remotePort, "remote-port", achd.DefaultPort, "port to connect to")
	cmd.Flags().StringVar(&f.direction, "direction", "", "push or pull")
	cmd.MarkFlagRequired("remote-host")
	cmd.MarkFlagRequired("direction")
	return cmd
}

func rootContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

// errRefuseTTY mirrors achd.c's main() guard: a session served over
// stdin/stdout only makes sense when inetd (or an equivalent) has
// attached a socket to those descriptors, never an interactive shell.
var errRefuseTTY = fmt.Errorf("achd: stdin or stdout is a terminal, refusing to serve")

func runInetdServer(ctx context.Context, log *achutil.Logger) error {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsTerminal(os.Stdout.Fd()) {
		log.Errorf("%v", errRefuseTTY)
		return errRefuseTTY
	}
	conn := &stdioConn{}
	headers, handler, ch, sessConn, err := achd.Negotiate(ctx, achd.RoleServer, conn, nil)
	if err != nil {
		reporter := achd.NewErrorReporter(achd.RoleServer, conn, log)
		reporter.ReportError(err)
		return err
	}
	return handler(ctx, log, headers, ch, sessConn)
}

func runDaemon(ctx context.Context, log *achutil.Logger, f *rootFlags) error {
	return achd.Daemon(ctx, log, achd.DaemonConfig{
		Addr:       f.addr,
		PIDFile:    f.pidFile,
		UseSystemd: f.useSystemd,
		SessionHandler: func(ctx context.Context, conn net.Conn) error {
			headers, handler, ch, sessConn, err := achd.Negotiate(ctx, achd.RoleServer, conn, nil)
			if err != nil {
				reporter := achd.NewErrorReporter(achd.RoleServer, conn, log)
				reporter.ReportError(err)
				return err
			}
			return handler(ctx, log, headers, ch, sessConn)
		},
	})
}

func runClient(ctx context.Context, log *achutil.Logger, f *rootFlags) error {
	direction := achd.DirectionPush
	if f.direction == "pull" {
		direction = achd.DirectionPull
	}
	transport := achd.TransportTCP
	if f.transport == "udp" {
		transport = achd.TransportUDP
	}

	req := &achd.Headers{
		ChanName:   f.channelName,
		Transport:  transport,
		Direction:  direction,
		RemoteHost: f.remoteHost,
		RemotePort: f.remotePort,
		FrameCount: f.frameCount,
		FrameSize:  f.frameSize,
		GetLast:    f.getLast,
		Retry:      f.retry,
	}

	conn, err := achd.Connect(ctx, f.remoteHost, f.remotePort)
	if err != nil {
		log.Errorf("%v", err)
		return err
	}
	defer conn.Close()

	headers, handler, ch, sessConn, err := achd.Negotiate(ctx, achd.RoleClient, conn, req)
	if err != nil {
		log.Errorf("%v", err)
		return err
	}
	return handler(ctx, log, headers, ch, sessConn)
}

// stdioConn adapts os.Stdin/os.Stdout to the io.ReadWriter Negotiate
// needs for the inetd-style session, where the socket is already
// attached to the process's standard streams.
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
