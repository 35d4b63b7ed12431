package domain

import (
	"context"
	"fmt"

	"ring_and_rip/ports"
)

// Invite - a client INVITE transaction. Created with the INVITE already
// queued; the caller rings the far end by letting a driver pump it and
// hangs up via Cancel.
type Invite struct {
	*transaction
}

// NewInvite - builds an INVITE transaction with one pending request.
func NewInvite(cfg Config) (*Invite, error) {
	t, err := newTransaction(cfg, ports.MethodInvite, true)
	if err != nil {
		return nil, err
	}

	t.extraHeaders = func() []string {
		return []string{"Content-Length: 0"}
	}

	t.mu.Lock()
	t.enqueueLocked(t.buildLocked(t.method, t.method, t.extraHeaders()...))
	t.mu.Unlock()

	return &Invite{transaction: t}, nil
}

// Cancel - aborts the in-progress call attempt: enqueues a CANCEL for
// the current dialog followed immediately by the terminal sentinel, and
// wakes the driver so both go out without waiting for an inbound
// datagram. After this nothing more can be enqueued; a second Cancel is
// an error.
func (i *Invite) Cancel() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.machine.Event(context.Background(), eventCancelled); err != nil {
		return fmt.Errorf("cancel refused in state %s: %w", i.machine.Current(), err)
	}

	i.enqueueLocked(i.buildLocked(ports.MethodCancel, ports.MethodCancel, "Content-Length: 0"))

	i.pending = append(i.pending, pendingItem{hangup: true})
	i.closed = true
	i.notifyLocked()

	i.log.Info("cancel queued, hanging up")

	return nil
}
