package transport

import (
	"errors"
	"net"
	"syscall"
	"time"

	perrors "github.com/pkg/errors"
	"github.com/xtaci/smux"
)

// Port assignment (spec §6): the lower-numbered party accepts, the
// higher-numbered party connects (with retry on refused).
const (
	PortP1ToP0 = 2115
	PortP2ToP0 = 2116
	PortP2ToP1 = 2117
)

// dialRetryInterval is how long a connecting party waits between refused
// connection attempts (spec §7: "connect refused is retried with
// 1-second backoff until success").
var dialRetryInterval = time.Second

// Link is one TCP connection between a pair of parties, multiplexed via
// smux into one stream per worker so that N worker threads can share a
// single socket per peer pair (spec §4.2: "Each worker thread owns two
// peer streams").
type Link struct {
	conn    net.Conn
	session *smux.Session
}

// Listen accepts one incoming TCP connection on addr and wraps it as a
// server-side smux session.
func Listen(addr string) (*Link, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, perrors.Wrapf(err, "transport: listen on %s", addr)
	}
	defer ln.Close()
	conn, err := ln.Accept()
	if err != nil {
		return nil, perrors.Wrap(err, "transport: accept")
	}
	sess, err := smux.Server(conn, smux.DefaultConfig())
	if err != nil {
		return nil, perrors.Wrap(err, "transport: smux.Server")
	}
	return &Link{conn: conn, session: sess}, nil
}

// Dial connects to addr, retrying on refused connections with a fixed
// 1-second backoff, and wraps the connection as a client-side smux
// session.
func Dial(addr string) (*Link, error) {
	var conn net.Conn
	var err error
	for {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if !isConnRefused(err) {
			return nil, perrors.Wrapf(err, "transport: dial %s", addr)
		}
		time.Sleep(dialRetryInterval)
	}
	sess, err := smux.Client(conn, smux.DefaultConfig())
	if err != nil {
		return nil, perrors.Wrap(err, "transport: smux.Client")
	}
	return &Link{conn: conn, session: sess}, nil
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// OpenStream opens a new worker stream as the smux client side of this
// link. Workers must open streams in the same order on both ends; the
// caller (the worker pool) is responsible for that ordering.
func (l *Link) OpenStream() (*smux.Stream, error) {
	s, err := l.session.OpenStream()
	if err != nil {
		return nil, perrors.Wrap(err, "transport: OpenStream")
	}
	return s, nil
}

// AcceptStream accepts the next worker stream as the smux server side of
// this link.
func (l *Link) AcceptStream() (*smux.Stream, error) {
	s, err := l.session.AcceptStream()
	if err != nil {
		return nil, perrors.Wrap(err, "transport: AcceptStream")
	}
	return s, nil
}

// Close tears down the smux session and the underlying connection.
func (l *Link) Close() error {
	err := l.session.Close()
	_ = l.conn.Close()
	return err
}
