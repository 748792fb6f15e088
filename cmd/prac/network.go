package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/luxfi/duoram3pc/internal/party"
	"github.com/luxfi/duoram3pc/internal/transport"
)

// session holds every live connection for one player's run and the
// per-worker MPCIO contexts derived from them (spec §4.2: "each worker
// thread owns two peer streams").
type session struct {
	links []*transport.Link // links to tear down on exit
	ios   []*transport.MPCIO
}

func (s *session) Close() {
	for _, l := range s.links {
		_ = l.Close()
	}
}

// buildSession establishes the TCP+smux topology spec §6 pins (lower
// party number accepts, higher connects, with fixed ports per pair) and
// opens numThreads worker streams over each link, in lockstep so both
// ends agree on stream-to-worker ordering.
func buildSession(self party.ID, p0Addr, p1Addr string, numThreads int) (*session, error) {
	switch self {
	case party.P0:
		return buildP0Session(p0Addr, numThreads)
	case party.P1:
		return buildP1Session(p0Addr, numThreads)
	case party.P2:
		return buildP2Session(p0Addr, p1Addr, numThreads)
	default:
		return nil, fmt.Errorf("prac: invalid player number %d", int(self))
	}
}

func hostPort(addr string, port int) string {
	if addr == "" {
		return ":" + strconv.Itoa(port)
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

func buildP0Session(p0Addr string, numThreads int) (*session, error) {
	type result struct {
		link *transport.Link
		err  error
	}
	fromP1 := make(chan result, 1)
	fromP2 := make(chan result, 1)
	go func() {
		l, err := transport.Listen(hostPort(p0Addr, transport.PortP1ToP0))
		fromP1 <- result{l, err}
	}()
	go func() {
		l, err := transport.Listen(hostPort(p0Addr, transport.PortP2ToP0))
		fromP2 <- result{l, err}
	}()
	r1, r2 := <-fromP1, <-fromP2
	if r1.err != nil {
		return nil, fmt.Errorf("prac: P0 accept from P1: %w", r1.err)
	}
	if r2.err != nil {
		return nil, fmt.Errorf("prac: P0 accept from P2: %w", r2.err)
	}
	linkP1, linkP2 := r1.link, r2.link

	ios := make([]*transport.MPCIO, numThreads)
	for w := 0; w < numThreads; w++ {
		clock := &transport.LamportClock{}
		peerStream, err := linkP1.AcceptStream()
		if err != nil {
			return nil, fmt.Errorf("prac: P0 worker %d accept peer stream: %w", w, err)
		}
		serverStream, err := linkP2.AcceptStream()
		if err != nil {
			return nil, fmt.Errorf("prac: P0 worker %d accept server stream: %w", w, err)
		}
		peerConn := transport.NewConn(peerStream, clock)
		serverConn := transport.NewConn(serverStream, clock)
		ios[w] = transport.NewComputationalMPCIO(party.P0, w, peerConn, serverConn)
	}
	return &session{links: []*transport.Link{linkP1, linkP2}, ios: ios}, nil
}

func buildP1Session(p0Addr string, numThreads int) (*session, error) {
	type result struct {
		link *transport.Link
		err  error
	}
	fromP0 := make(chan result, 1)
	fromP2 := make(chan result, 1)
	go func() {
		l, err := transport.Dial(hostPort(p0Addr, transport.PortP1ToP0))
		fromP0 <- result{l, err}
	}()
	go func() {
		l, err := transport.Listen(hostPort("", transport.PortP2ToP1))
		fromP2 <- result{l, err}
	}()
	r0, r2 := <-fromP0, <-fromP2
	if r0.err != nil {
		return nil, fmt.Errorf("prac: P1 dial P0: %w", r0.err)
	}
	if r2.err != nil {
		return nil, fmt.Errorf("prac: P1 accept from P2: %w", r2.err)
	}
	linkP0, linkP2 := r0.link, r2.link

	ios := make([]*transport.MPCIO, numThreads)
	for w := 0; w < numThreads; w++ {
		clock := &transport.LamportClock{}
		peerStream, err := linkP0.OpenStream()
		if err != nil {
			return nil, fmt.Errorf("prac: P1 worker %d open peer stream: %w", w, err)
		}
		serverStream, err := linkP2.AcceptStream()
		if err != nil {
			return nil, fmt.Errorf("prac: P1 worker %d accept server stream: %w", w, err)
		}
		peerConn := transport.NewConn(peerStream, clock)
		serverConn := transport.NewConn(serverStream, clock)
		ios[w] = transport.NewComputationalMPCIO(party.P1, w, peerConn, serverConn)
	}
	return &session{links: []*transport.Link{linkP0, linkP2}, ios: ios}, nil
}

func buildP2Session(p0Addr, p1Addr string, numThreads int) (*session, error) {
	type result struct {
		link *transport.Link
		err  error
	}
	toP0 := make(chan result, 1)
	toP1 := make(chan result, 1)
	go func() {
		l, err := transport.Dial(hostPort(p0Addr, transport.PortP2ToP0))
		toP0 <- result{l, err}
	}()
	go func() {
		l, err := transport.Dial(hostPort(p1Addr, transport.PortP2ToP1))
		toP1 <- result{l, err}
	}()
	r0, r1 := <-toP0, <-toP1
	if r0.err != nil {
		return nil, fmt.Errorf("prac: P2 dial P0: %w", r0.err)
	}
	if r1.err != nil {
		return nil, fmt.Errorf("prac: P2 dial P1: %w", r1.err)
	}
	linkP0, linkP1 := r0.link, r1.link

	ios := make([]*transport.MPCIO, numThreads)
	for w := 0; w < numThreads; w++ {
		clock := &transport.LamportClock{}
		streamP0, err := linkP0.OpenStream()
		if err != nil {
			return nil, fmt.Errorf("prac: P2 worker %d open P0 stream: %w", w, err)
		}
		streamP1, err := linkP1.OpenStream()
		if err != nil {
			return nil, fmt.Errorf("prac: P2 worker %d open P1 stream: %w", w, err)
		}
		connP0 := transport.NewConn(streamP0, clock)
		connP1 := transport.NewConn(streamP1, clock)
		ios[w] = transport.NewServerMPCIO(w, connP0, connP1)
	}
	return &session{links: []*transport.Link{linkP0, linkP1}, ios: ios}, nil
}
