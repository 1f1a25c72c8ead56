package achd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/rswindell/ach/internal/achchan"
	"github.com/rswindell/ach/internal/achutil"
)

// DefaultPort is the TCP port achd listens on and connects to absent an
// explicit override, matching achd.c's ACHD_PORT.
const DefaultPort = 8076

// Role distinguishes the two sides of a negotiated session.
type Role int

const (
	// RoleServer is the side that accepts an inbound connection, reads
	// the requesting headers, and reports status back in header form.
	RoleServer Role = iota
	// RoleClient is the side that dials out, writes a request header
	// block, and reports errors interactively (to its own stderr).
	RoleClient
)

// Handler performs the actual frame movement for one negotiated session,
// once both sides have agreed on a channel, transport and direction.
type Handler func(ctx context.Context, log *achutil.Logger, headers *Headers, ch achchan.Channel, conn io.ReadWriter) error

// handlers is the dispatch table achd_get_handler walks: keyed by
// (Transport, Direction), it names the function that actually moves
// frames once negotiation succeeds.
var handlers = map[Transport]map[Direction]Handler{
	TransportTCP: {
		DirectionPush: PushTCP,
		DirectionPull: PullTCP,
	},
	TransportUDP: {
		DirectionPush: unimplementedUDP,
		DirectionPull: unimplementedUDP,
	},
}

// ErrUnimplemented is returned by the UDP handlers; the transport is a
// recognized header value but no implementation exists, matching
// achd_push_udp/achd_pull_udp's assert(0) stubs.
var ErrUnimplemented = fmt.Errorf("achd: transport not implemented")

func unimplementedUDP(ctx context.Context, log *achutil.Logger, headers *Headers, ch achchan.Channel, conn io.ReadWriter) error {
	return ErrUnimplemented
}

// GetHandler looks up the handler for a (transport, direction) pair,
// mirroring achd_get_handler's table walk.
func GetHandler(transport Transport, direction Direction) (Handler, error) {
	if transport == TransportUnset {
		return nil, fmt.Errorf("achd: no transport header")
	}
	if direction == DirectionUnset {
		return nil, fmt.Errorf("achd: no direction header")
	}
	byDir, ok := handlers[transport]
	if !ok {
		return nil, fmt.Errorf("achd: unsupported transport %s", transport)
	}
	h, ok := byDir[direction]
	if !ok {
		return nil, fmt.Errorf("achd: unsupported direction %s for transport %s", direction, transport)
	}
	return h, nil
}

// ErrorReporter reports a session-ending error in whatever form fits
// this side's role: a client logs it and leaves exiting to its caller, a
// server encodes the failure into a header block sent to its peer.
type ErrorReporter interface {
	ReportError(err error)
}

// interactiveReporter is used by the client role: errors go to the
// logger, the caller is expected to exit non-zero.
type interactiveReporter struct {
	log *achutil.Logger
}

func (r *interactiveReporter) ReportError(err error) {
	r.log.Errorf("%v", err)
}

// headerReporter is used by the server role: the error is encoded as a
// status/message header block written back to the peer.
type headerReporter struct {
	w   io.Writer
	log *achutil.Logger
}

func (r *headerReporter) ReportError(err error) {
	r.log.Errorf("%v", err)
	h := &Headers{Status: 1, Message: err.Error()}
	_ = h.Emit(r.w)
}

// NewErrorReporter builds the reporter appropriate to role.
func NewErrorReporter(role Role, w io.Writer, log *achutil.Logger) ErrorReporter {
	if role == RoleServer {
		return &headerReporter{w: w, log: log}
	}
	return &interactiveReporter{log: log}
}

// sessionConn pairs the *bufio.Reader negotiation parsed headers from
// with the connection's writer, so any bytes that reader buffered past
// the "." terminator are still there for the pump to read instead of
// being stranded in a throwaway reader. Negotiate hands one of these
// back instead of the caller's original conn.
type sessionConn struct {
	r *bufio.Reader
	w io.Writer
}

func (c *sessionConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *sessionConn) Write(p []byte) (int, error) { return c.w.Write(p) }

// Negotiate reads (server) or writes-then-reads (client) the header
// block for one session over conn, opens the requested channel, and
// returns the agreed Headers, Handler, Channel, and the io.ReadWriter
// the pump should use (not necessarily conn itself: see sessionConn).
// For RoleServer, requestHeaders is nil and one is parsed from conn;
// for RoleClient, requestHeaders describes the outbound request.
func Negotiate(ctx context.Context, role Role, conn io.ReadWriter, requestHeaders *Headers) (*Headers, Handler, achchan.Channel, io.ReadWriter, error) {
	switch role {
	case RoleServer:
		return negotiateServer(conn)
	case RoleClient:
		return negotiateClient(conn, requestHeaders)
	default:
		return nil, nil, nil, nil, fmt.Errorf("achd: unknown role %d", role)
	}
}

func negotiateServer(conn io.ReadWriter) (*Headers, Handler, achchan.Channel, io.ReadWriter, error) {
	br := bufio.NewReader(conn)
	headers, err := ParseHeaders(br)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ch, err := openChannel(headers)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	handler, err := GetHandler(headers.Transport, headers.Direction)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	resp := &Headers{
		Status:     0,
		FrameCount: ch.FrameCount(),
		FrameSize:  ch.FrameSize(),
	}
	if err := resp.Emit(conn); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("achd: writing response headers: %w", err)
	}
	return headers, handler, ch, &sessionConn{r: br, w: conn}, nil
}

func negotiateClient(conn io.ReadWriter, req *Headers) (*Headers, Handler, achchan.Channel, io.ReadWriter, error) {
	handler, err := GetHandler(req.Transport, req.Direction)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ch, err := openChannel(req)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	// The remote end does the opposite of what we do; it also needs the
	// sizing headers so it can auto-provision its own side of the
	// channel the same way we just provisioned ours.
	wire := &Headers{
		ChanName:   req.ChannelName(),
		Transport:  req.Transport,
		Direction:  oppositeDirection(req.Direction),
		FrameCount: req.FrameCount,
		FrameSize:  req.FrameSize,
	}
	if err := wire.Emit(conn); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("achd: writing request headers: %w", err)
	}
	br := bufio.NewReader(conn)
	resp, err := ParseHeaders(br)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if resp.Status != 0 {
		if resp.Message != "" {
			return nil, nil, nil, nil, fmt.Errorf("achd: server error: %s", resp.Message)
		}
		return nil, nil, nil, nil, fmt.Errorf("achd: bad response from server (status %d)", resp.Status)
	}
	return req, handler, ch, &sessionConn{r: br, w: conn}, nil
}

func oppositeDirection(d Direction) Direction {
	if d == DirectionPull {
		return DirectionPush
	}
	return DirectionPull
}

// defaultFrameCount and defaultFrameSize size a channel auto-created by
// openChannel when no one has registered it yet, matching
// ACH_DEFAULT_FRAME_COUNT/ACH_DEFAULT_FRAME_SIZE's role in achd.c.
const (
	defaultFrameCount = 10
	defaultFrameSize  = 4096
)

// openChannel resolves the session's channel by name, auto-creating it
// with the session's requested frame-count/frame-size if this is the
// first session to reference it. The real ach library instead requires
// the channel to already exist (created out of band by ach_mk_channel);
// this in-process stand-in has no such out-of-band step, so the first
// achd session to mention a name provisions it.
func openChannel(h *Headers) (achchan.Channel, error) {
	name := h.ChannelName()
	if name == "" {
		return nil, fmt.Errorf("achd: no channel name header")
	}
	if ch, err := achchan.Open(name); err == nil {
		return ch, nil
	}
	frameCount, frameSize := h.FrameCount, h.FrameSize
	if frameCount == 0 {
		frameCount = defaultFrameCount
	}
	if frameSize == 0 {
		frameSize = defaultFrameSize
	}
	return achchan.Register(name, frameCount, frameSize), nil
}

// Connect dials host:port over TCP, matching achd_connect.
func Connect(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("achd: couldn't connect to %s: %w", addr, err)
	}
	return conn, nil
}
