package domain

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"sync"

	"ring_and_rip/adapters"
	"ring_and_rip/ports"

	"github.com/looplab/fsm"
)

// transaction states, see the events below for the legal transitions
const (
	stateCreated          = "created"
	stateAwaitingResponse = "awaiting_response"
	stateCancelling       = "cancelling"
	stateCompleted        = "completed"
)

const (
	eventRequestSent = "request_sent"
	eventChallenged  = "challenged"
	eventCancelled   = "cancelled"
	eventCompleted   = "completed"
)

// every Via branch starts with the magic cookie
const branchPrefix = "z9hG4bK"

// Config - the addressing and credential strings handed to the engine by
// its caller. They are treated as opaque; no validation happens here.
type Config struct {
	URIFrom string
	URITo   string
	URIVia  string
	// register mode only
	URIContact string

	Username string
	Password string

	// entropy for branch/call-id/tag generation; crypto/rand when nil
	Entropy io.Reader

	Logger *slog.Logger
}

type pendingItem struct {
	payload string
	// the terminal sentinel: no more messages, close the association
	hangup bool
}

// transaction - the state shared by both request variants: stable dialog
// identifiers, the outgoing FIFO queue, and the 401-retry protocol.
type transaction struct {
	mu sync.Mutex

	cfg    Config
	method string
	// a 401 must be ACKed before the retry (INVITE yes, REGISTER no)
	sendAckUnauthorized bool
	// canonical extra headers of the variant's own request
	extraHeaders func() []string

	// regenerated for every request instance (initial and each retry)
	branch string
	// stable for the lifetime of the transaction
	callID string
	tag    string
	cseq   int

	// set by the first challenge, reused for every retry afterwards
	realm string
	nonce string

	pending []pendingItem
	// the hangup sentinel has been enqueued; nothing may follow it
	closed bool
	result *ports.Result

	wakeup  chan struct{}
	machine *fsm.FSM
	log     *slog.Logger
}

func newTransaction(cfg Config, method string, ackUnauthorized bool) (*transaction, error) {
	if cfg.Entropy == nil {
		cfg.Entropy = rand.Reader
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &transaction{
		cfg:                 cfg,
		method:              method,
		sendAckUnauthorized: ackUnauthorized,
		cseq:                1,
		wakeup:              make(chan struct{}, 1),
		log:                 cfg.Logger.With("method", method),
	}

	var err error
	if t.branch, err = t.newBranch(); err != nil {
		return nil, err
	}
	if t.callID, err = t.newHashedID(32); err != nil {
		return nil, err
	}
	if t.tag, err = t.newHashedID(8); err != nil {
		return nil, err
	}

	t.machine = fsm.NewFSM(
		stateCreated,
		fsm.Events{
			{Name: eventRequestSent, Src: []string{stateCreated}, Dst: stateAwaitingResponse},
			// a challenge can recur arbitrarily, each 401 produces another retry
			{Name: eventChallenged, Src: []string{stateCreated, stateAwaitingResponse}, Dst: stateAwaitingResponse},
			{Name: eventCancelled, Src: []string{stateCreated, stateAwaitingResponse}, Dst: stateCancelling},
			{Name: eventCompleted, Src: []string{stateCreated, stateAwaitingResponse, stateCancelling}, Dst: stateCompleted},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.log.Debug("transaction state change", "from", e.Src, "to", e.Dst)
			},
		},
	)

	return t, nil
}

// Method - the transaction's own request method.
func (t *transaction) Method() string {
	return t.method
}

// Wakeup - signalled whenever new work lands on the queue.
func (t *transaction) Wakeup() <-chan struct{} {
	return t.wakeup
}

// Result - the outcome of the last completed challenge round, or nil.
func (t *transaction) Result() *ports.Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.result
}

// NextRequest - pops and returns the head of the queue. Consumption is
// strictly in enqueue order.
func (t *transaction) NextRequest() (string, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) == 0 {
		return "", false, false
	}

	item := t.pending[0]
	t.pending = t.pending[1:]

	if item.hangup {
		_ = t.machine.Event(context.Background(), eventCompleted)
		return "", true, true
	}

	if t.machine.Current() == stateCreated {
		_ = t.machine.Event(context.Background(), eventRequestSent)
	}

	return item.payload, false, true
}

// HandleResponse - decodes a raw response and transitions on its status
// code. Parse failures surface to the caller and should terminate the
// call attempt.
func (t *transaction) HandleResponse(raw string) error {
	status, headers, err := adapters.ParseResponse(raw)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch status {
	case 401:
		return t.retryWithAuthLocked(headers)

	case 487:
		// the far end confirmed our cancellation, acknowledge it with the
		// current branch and cseq
		t.log.Debug("request cancelled by far end, acknowledging")
		t.enqueueLocked(t.buildACKLocked())

	case 100, 200:
		// informational/success observations, the state machine does not
		// move on these
		t.log.Debug("observed response", "status", status)

	default:
		t.log.Debug("ignoring response", "status", status)
	}

	return nil
}

// retryWithAuthLocked - answers a 401 challenge: ACK it if the variant
// requires that, then reissue the request with a fresh branch, the next
// cseq, and a Digest Authorization header. There is no retry ceiling; a
// server that keeps challenging keeps getting retries.
func (t *transaction) retryWithAuthLocked(headers map[string]string) error {
	challenge := headers["WWW-Authenticate"]

	realm, nonce, err := adapters.ParseChallenge(challenge)
	if err != nil {
		return err
	}

	if t.closed {
		t.log.Warn("challenge received after hangup, ignoring")
		return nil
	}

	t.realm = realm
	t.nonce = nonce

	if t.sendAckUnauthorized {
		// acknowledge with the branch/cseq of the request that provoked
		// the challenge, before either is regenerated
		t.enqueueLocked(t.buildACKLocked())
	}

	branch, err := t.newBranch()
	if err != nil {
		return err
	}
	t.branch = branch
	t.cseq++

	auth := adapters.DigestAuthorization(
		t.cfg.Username, t.cfg.Password, realm, nonce, t.method, t.cfg.URITo,
	)
	headersOut := append([]string{auth}, t.extraHeaders()...)
	t.enqueueLocked(t.buildLocked(t.method, t.method, headersOut...))

	t.result = &ports.Result{Status: 401, Challenge: challenge}
	_ = t.machine.Event(context.Background(), eventChallenged)

	t.log.Info("retrying with digest credentials", "realm", realm, "cseq", t.cseq)

	return nil
}

// buildLocked - encodes one request against the transaction's current
// identifiers.
func (t *transaction) buildLocked(method, cseqMethod string, extra ...string) string {
	return adapters.Request{
		Method:     method,
		URITo:      t.cfg.URITo,
		URIFrom:    t.cfg.URIFrom,
		URIVia:     t.cfg.URIVia,
		Branch:     t.branch,
		Tag:        t.tag,
		CallID:     t.callID,
		CSeq:       t.cseq,
		CSeqMethod: cseqMethod,
		Headers:    extra,
	}.Encode()
}

// the ACK's CSeq line carries the method of the request being
// acknowledged, not "ACK"
func (t *transaction) buildACKLocked() string {
	return t.buildLocked(ports.MethodAck, t.method, "Content-Length: 0")
}

func (t *transaction) enqueueLocked(payload string) bool {
	if t.closed {
		t.log.Warn("dropping request enqueued after hangup")
		return false
	}

	t.pending = append(t.pending, pendingItem{payload: payload})
	t.notifyLocked()

	return true
}

func (t *transaction) notifyLocked() {
	select {
	case t.wakeup <- struct{}{}:
	default:
	}
}

func (t *transaction) newBranch() (string, error) {
	buf := make([]byte, 13)
	if _, err := io.ReadFull(t.cfg.Entropy, buf); err != nil {
		return "", err
	}

	// 13 random bytes render to 26 hex characters, one more than needed
	return branchPrefix + hex.EncodeToString(buf)[:25], nil
}

// newHashedID - a stable identifier derived from hashed random bytes,
// truncated to length hex characters.
func (t *transaction) newHashedID(length int) (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(t.cfg.Entropy, buf); err != nil {
		return "", err
	}

	sum := md5.Sum(buf)

	return hex.EncodeToString(sum[:])[:length], nil
}
