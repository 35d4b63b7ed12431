package adapters

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"

	"ring_and_rip/ports"
)

// UDPClient - owns exactly one UDP association for one transaction and
// pumps the transaction's queue bidirectionally: queued requests go out
// on the wire, inbound datagrams are handed back to the transaction,
// which may enqueue more work (an ACK, an authenticated retry).
type UDPClient struct {
	tx   ports.Transaction
	addr string
	log  *slog.Logger

	closing atomic.Bool
	stopped chan struct{}
}

// NewUDPClient - creates a driver dialing the host extracted from uriTo.
func NewUDPClient(tx ports.Transaction, uriTo string, log *slog.Logger) (*UDPClient, error) {
	addr, err := RemoteAddr(uriTo)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}

	return &UDPClient{
		tx:      tx,
		addr:    addr,
		log:     log.With("peer", addr, "method", tx.Method()),
		stopped: make(chan struct{}),
	}, nil
}

// Run - opens the association and blocks until it closes: either the
// transaction's hangup sentinel is reached, a response fails to parse,
// the transport reports an error, or ctx is done. Returns whatever
// Result the transaction accumulated.
func (c *UDPClient) Run(ctx context.Context) (*ports.Result, error) {
	raddr, err := net.ResolveUDPAddr("udp", c.addr)
	if err != nil {
		transportErrors.Inc()
		return nil, err
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		transportErrors.Inc()
		return nil, err
	}

	defer func() {
		c.closing.Store(true)
		conn.Close()
		close(c.stopped)
	}()

	in := make(chan string, 4)
	readErr := make(chan error, 1)
	go c.readLoop(conn, in, readErr)

	c.log.Debug("association open", "local", conn.LocalAddr().String())

	if done, err := c.drain(conn); done || err != nil {
		return c.tx.Result(), err
	}

	for {
		select {
		case <-ctx.Done():
			return c.tx.Result(), ctx.Err()

		case <-c.tx.Wakeup():
			if done, err := c.drain(conn); done || err != nil {
				return c.tx.Result(), err
			}

		case raw := <-in:
			responsesReceived.WithLabelValues(statusOf(raw)).Inc()

			if err := c.tx.HandleResponse(raw); err != nil {
				c.log.Error("closing association after bad response", "err", err)
				return c.tx.Result(), err
			}

			// the handler may have enqueued new work
			if done, err := c.drain(conn); done || err != nil {
				return c.tx.Result(), err
			}

		case err := <-readErr:
			transportErrors.Inc()
			c.log.Error("closing association after transport error", "err", err)
			return c.tx.Result(), err
		}
	}
}

// drain - sends queued requests in order until the queue is empty (keep
// waiting) or the hangup sentinel is reached (close the association).
func (c *UDPClient) drain(conn *net.UDPConn) (bool, error) {
	for {
		payload, hangup, ok := c.tx.NextRequest()
		if !ok {
			return false, nil
		}

		if hangup {
			c.log.Debug("hangup sentinel reached, closing association")
			return true, nil
		}

		requestsSent.WithLabelValues(methodOf(payload)).Inc()

		if _, err := conn.Write([]byte(payload)); err != nil {
			transportErrors.Inc()
			return false, err
		}

		c.log.Debug("sent request", "request_method", methodOf(payload), "bytes", len(payload))
	}
}

func (c *UDPClient) readLoop(conn *net.UDPConn, in chan<- string, readErr chan<- error) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			// a read error after we started closing is just the socket
			// being torn down
			if !c.closing.Load() {
				readErr <- err
			}
			return
		}

		select {
		case in <- string(buf[:n]):
		case <-c.stopped:
			return
		}
	}
}
