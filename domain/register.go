package domain

import (
	"fmt"

	"ring_and_rip/ports"
)

// registrations are short-lived on purpose, the caller re-registers as
// needed
const registerExpiresSeconds = 60

// Register - a client REGISTER transaction binding a contact address for
// a user. Created with the REGISTER already queued. REGISTER never
// enqueues the hangup sentinel itself, so the driver's lifetime is
// bounded by its context instead.
type Register struct {
	*transaction
}

// NewRegister - builds a REGISTER transaction with one pending request.
func NewRegister(cfg Config) (*Register, error) {
	t, err := newTransaction(cfg, ports.MethodRegister, false)
	if err != nil {
		return nil, err
	}

	contact := cfg.URIContact
	t.extraHeaders = func() []string {
		return []string{
			fmt.Sprintf("Contact: %s", contact),
			fmt.Sprintf("Expires: %d", registerExpiresSeconds),
			"Content-Length: 0",
		}
	}

	t.mu.Lock()
	t.enqueueLocked(t.buildLocked(t.method, t.method, t.extraHeaders()...))
	t.mu.Unlock()

	return &Register{transaction: t}, nil
}
