// Package transport implements the two-peer-plus-server messaging
// substrate (spec §4.2): per-worker byte streams, Lamport-ordered
// send/receive, and the buffered/coalesced flush discipline that keeps a
// background writer continuously busy.
package transport

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// flushThreshold is the queued-byte watermark past which Queue hands the
// segment to the writer without waiting for an explicit Send (spec §4.2).
const flushThreshold = 28800

// Conn is one cooperative byte stream to a single remote party. It
// coalesces queued writes into segments and hands them to a background
// writer goroutine so that the next segment can be accumulated while the
// previous one is still in flight on the wire.
//
// Conn is safe for one queuing/sending goroutine and one receiving
// goroutine to use concurrently, matching the worker/reader split in the
// teacher's protocol handler.
type Conn struct {
	rw    io.ReadWriteCloser
	clock *LamportClock

	mu      sync.Mutex
	cur     []byte
	pending [][]byte
	notify  chan struct{}

	writerErr chan error
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps rw (typically an *smux.Stream) as a Conn. clock is shared
// with the worker's other Conns so all of a worker's sends/receives order
// against one counter.
func NewConn(rw io.ReadWriteCloser, clock *LamportClock) *Conn {
	c := &Conn{
		rw:        rw,
		clock:     clock,
		notify:    make(chan struct{}, 1),
		writerErr: make(chan error, 1),
		closed:    make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Queue appends b to the in-flight segment. If the accumulated segment
// reaches flushThreshold bytes, it is rotated into the pending FIFO
// immediately so the writer can start sending it without waiting for an
// explicit Send.
func (c *Conn) Queue(b []byte) {
	if len(b) == 0 {
		return
	}
	c.mu.Lock()
	c.cur = append(c.cur, b...)
	if len(c.cur) >= flushThreshold {
		c.rotateLocked()
	}
	c.mu.Unlock()
	c.kick()
}

// Send flushes whatever is currently queued, even if below the
// threshold, and marks the send event on the Lamport clock. It does not
// block for the bytes to reach the wire.
func (c *Conn) Send() {
	c.mu.Lock()
	c.rotateLocked()
	c.mu.Unlock()
	c.clock.Tick()
	c.kick()
}

// rotateLocked moves the in-flight segment into the pending FIFO. Caller
// must hold c.mu.
func (c *Conn) rotateLocked() {
	if len(c.cur) == 0 {
		return
	}
	c.pending = append(c.pending, c.cur)
	c.cur = nil
}

func (c *Conn) kick() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// writeLoop is the background writer: it drains the pending FIFO in order
// and streams each segment to the wire.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.notify:
		}
		for {
			c.mu.Lock()
			if len(c.pending) == 0 {
				c.mu.Unlock()
				break
			}
			seg := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()

			if _, err := c.rw.Write(seg); err != nil {
				select {
				case c.writerErr <- errors.Wrap(err, "transport: write failed"):
				default:
				}
				return
			}
		}
	}
}

// Recv blocks until exactly n bytes have been read from the peer. A short
// read, unexpected EOF, or a prior write failure is fatal: the protocol
// has no recovery path for a peer that sends the wrong number of bytes
// (spec §5, §7).
func (c *Conn) Recv(n int) ([]byte, error) {
	select {
	case err := <-c.writerErr:
		return nil, err
	default:
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, errors.Wrapf(err, "transport: short read wanted %d bytes", n)
	}
	c.clock.Tick()
	return buf, nil
}

// Close stops the background writer and closes the underlying stream.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.rw.Close()
	})
	return err
}
