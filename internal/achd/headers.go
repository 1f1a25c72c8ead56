// Package achd implements the forwarder: session header negotiation,
// role dispatch, the frame pump, and an optional standalone listener.
package achd

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Direction is the forwarding direction requested by a session header
// block: push sends local channel frames out to the remote, pull
// accepts frames from the remote into the local channel.
type Direction int

const (
	DirectionUnset Direction = iota
	DirectionPush
	DirectionPull
)

func (d Direction) String() string {
	switch d {
	case DirectionPush:
		return "push"
	case DirectionPull:
		return "pull"
	default:
		return "unset"
	}
}

// Transport is the wire transport requested by a session header block.
type Transport int

const (
	TransportUnset Transport = iota
	TransportTCP
	TransportUDP
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	default:
		return "unset"
	}
}

// Headers is the parsed, typed view of a session's negotiation block.
// Field names follow achd.c's struct achd_headers.
type Headers struct {
	ChanName       string
	RemoteChanName string
	FrameCount     int
	FrameSize      int
	LocalPort      int
	RemotePort     int
	TCPNoDelay     bool
	Retry          bool
	GetLast        bool
	RemoteHost     string
	Transport      Transport
	Direction      Direction
	Status         int
	Message        string
}

// ChannelName returns ChanName if set, falling back to RemoteChanName,
// matching achd_open's "local name wins" preference.
func (h *Headers) ChannelName() string {
	if h.ChanName != "" {
		return h.ChanName
	}
	return h.RemoteChanName
}

// lineRegex's value group takes the rest of the line after the first
// ':'/'=' separator (minus surrounding whitespace), which is wider than a
// single "word": response messages contain spaces and, since they carry
// error strings like "achd: line 1: ...", further ':' characters too.
var (
	lineRegex = regexp.MustCompile(`^\s*([[:word:]-]+)\s*[:=]\s*([^\n]+?)\s*$`)
	dotRegex  = regexp.MustCompile(`^\s*\.\s*$`)
)

// ParseHeaders reads a header block from br: one "key: value" (or
// "key=value") pair per line, optional "# comment" suffix, terminated
// by a line containing only a ".". Blank lines are ignored. An
// unrecognized key is an error; set-by-set validation of values (e.g.
// malformed integers) is also an error.
//
// br is read a line at a time directly (not via bufio.Scanner), so any
// bytes it has buffered past the "." terminator are still sitting in
// br's buffer for the caller to read afterward, rather than trapped
// inside a Scanner that's about to go out of scope. This matters for
// callers that reuse the same connection for frame data right after
// negotiation, per spec's no-frame-bytes-consumed-early invariant.
func ParseHeaders(br *bufio.Reader) (*Headers, error) {
	h := &Headers{}
	line := 0
	for {
		raw, err := br.ReadString('\n')
		if err != nil && raw == "" {
			if err == io.EOF {
				return nil, fmt.Errorf("achd: reading headers: unexpected EOF before terminator")
			}
			return nil, fmt.Errorf("achd: reading headers: %w", err)
		}
		raw = strings.TrimRight(raw, "\n")
		line++
		if dotRegex.MatchString(raw) {
			return h, nil
		}
		if cmt := strings.IndexByte(raw, '#'); cmt >= 0 {
			raw = raw[:cmt]
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		m := lineRegex.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("achd: malformed header at line %d: %q", line, raw)
		}
		if err := h.set(m[1], m[2]); err != nil {
			return nil, fmt.Errorf("achd: line %d: %w", line, err)
		}
	}
}

// set applies one key/value pair, matching achd_set_header's dispatch.
func (h *Headers) set(key, val string) error {
	switch strings.ToLower(key) {
	case "channel-name":
		h.ChanName = val
	case "frame-size":
		return setInt(&h.FrameSize, "frame size", val)
	case "frame-count":
		return setInt(&h.FrameCount, "frame count", val)
	case "remote-port":
		return setInt(&h.RemotePort, "remote port", val)
	case "local-port":
		return setInt(&h.LocalPort, "local port", val)
	case "remote-host":
		h.RemoteHost = val
	case "transport":
		switch strings.ToLower(val) {
		case "tcp":
			h.Transport = TransportTCP
		case "udp":
			h.Transport = TransportUDP
		default:
			return fmt.Errorf("invalid transport: %s", val)
		}
	case "tcp-nodelay":
		b, err := parseBoolean(val)
		if err != nil {
			return err
		}
		h.TCPNoDelay = b
	case "retry":
		b, err := parseBoolean(val)
		if err != nil {
			return err
		}
		h.Retry = b
	case "get-last":
		b, err := parseBoolean(val)
		if err != nil {
			return err
		}
		h.GetLast = b
	case "direction":
		switch strings.ToLower(val) {
		case "push":
			h.Direction = DirectionPush
		case "pull":
			h.Direction = DirectionPull
		default:
			return fmt.Errorf("invalid direction: %s", val)
		}
	case "status":
		return setInt(&h.Status, "status", val)
	case "message":
		h.Message = val
	default:
		return fmt.Errorf("invalid header: %s", key)
	}
	return nil
}

func setInt(dst *int, name, val string) error {
	i, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	*dst = i
	return nil
}

var booleanYes = map[string]bool{"yes": true, "true": true, "1": true, "t": true, "y": true, "+": true, "aye": true}
var booleanNo = map[string]bool{"no": true, "false": true, "0": true, "f": true, "n": true, "-": true, "nay": true}

// parseBoolean recognizes the same yes/no word lists as achd_parse_boolean.
func parseBoolean(val string) (bool, error) {
	lower := strings.ToLower(val)
	if booleanYes[lower] {
		return true, nil
	}
	if booleanNo[lower] {
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean: %s", val)
}

// Emit writes h back out as a header block, one "key: value" line per
// set field, terminated by a lone ".". Zero-valued string and integer
// fields are omitted except Status; the three booleans (tcp-nodelay,
// retry, get-last) are always written, as "yes" or "no".
func (h *Headers) Emit(w io.Writer) error {
	bw := bufio.NewWriter(w)
	writeStr := func(key, val string) {
		if val != "" {
			fmt.Fprintf(bw, "%s: %s\n", key, val)
		}
	}
	writeStr("channel-name", h.ChanName)
	writeStr("remote-host", h.RemoteHost)
	if h.FrameSize != 0 {
		fmt.Fprintf(bw, "frame-size: %d\n", h.FrameSize)
	}
	if h.FrameCount != 0 {
		fmt.Fprintf(bw, "frame-count: %d\n", h.FrameCount)
	}
	if h.LocalPort != 0 {
		fmt.Fprintf(bw, "local-port: %d\n", h.LocalPort)
	}
	if h.RemotePort != 0 {
		fmt.Fprintf(bw, "remote-port: %d\n", h.RemotePort)
	}
	if h.Transport != TransportUnset {
		writeStr("transport", h.Transport.String())
	}
	if h.Direction != DirectionUnset {
		writeStr("direction", h.Direction.String())
	}
	fmt.Fprintf(bw, "tcp-nodelay: %s\n", boolWord(h.TCPNoDelay))
	fmt.Fprintf(bw, "retry: %s\n", boolWord(h.Retry))
	fmt.Fprintf(bw, "get-last: %s\n", boolWord(h.GetLast))
	fmt.Fprintf(bw, "status: %d # %s\n", h.Status, statusComment(h.Status))
	writeStr("message", h.Message)
	fmt.Fprint(bw, ".\n")
	return bw.Flush()
}

func boolWord(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// statusComment mirrors achd.c's "status: %d # %s\n", where 0 reads "ok"
// and anything else reads "error".
func statusComment(status int) string {
	if status == 0 {
		return "ok"
	}
	return "error"
}
