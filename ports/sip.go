package ports

// Transaction is a client SIP transaction as seen by a transport driver.
// The driver pops outgoing wire messages from the transaction's queue and
// feeds every inbound datagram back into it; handling a response may push
// more work onto the queue (an authenticated retry, an ACK).
type Transaction interface {
	// the transaction's own request method ("INVITE" or "REGISTER")
	Method() string
	// pops the head of the outgoing queue. ok is false when the queue is
	// empty. hangup marks the terminal sentinel: no more messages will
	// ever follow and the association should be closed.
	NextRequest() (payload string, hangup bool, ok bool)
	// decodes a raw response and advances the transaction
	HandleResponse(raw string) error
	// signalled whenever new work lands on the queue while the driver may
	// be idle (e.g. a CANCEL enqueued by the ring timer)
	Wakeup() <-chan struct{}
	// the outcome of the last completed challenge round, or nil
	Result() *Result
}

// Cancelable is a transaction that can abort its in-progress request
// mid-dialog. Only INVITE supports this.
type Cancelable interface {
	Transaction
	// enqueues a CANCEL followed by the terminal sentinel
	Cancel() error
}

// Result - the outcome a caller may inspect after the association closes.
// Status and Challenge hold the last completed challenge round; a clean
// call that was never challenged produces no Result at all.
type Result struct {
	Status    int
	Challenge string
}

const (
	// MethodInvite - Indicates a client is being invited to participate in a call session.
	MethodInvite = "INVITE"
	// MethodAck - Confirms that the client has received a final response to an INVITE request.
	MethodAck = "ACK"
	// MethodCancel - Cancels any pending request.
	MethodCancel = "CANCEL"
	// MethodRegister - Registers the address listed in the To header field with a SIP server.
	MethodRegister = "REGISTER"
)
