package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ring_and_rip/ports"
)

// a driver stub that blocks until released
type stubDriver struct {
	release <-chan struct{}
	result  *ports.Result
	err     error
}

func (d *stubDriver) Run(context.Context) (*ports.Result, error) {
	if d.release != nil {
		<-d.release
	}
	return d.result, d.err
}

// a cancelable stub whose Cancel releases the driver, mimicking the
// CANCEL/sentinel flow closing the association
type stubCall struct {
	cancelled chan struct{}
}

func (*stubCall) Method() string                    { return ports.MethodInvite }
func (*stubCall) NextRequest() (string, bool, bool) { return "", false, false }
func (*stubCall) HandleResponse(string) error       { return nil }
func (*stubCall) Wakeup() <-chan struct{}           { return nil }
func (*stubCall) Result() *ports.Result             { return nil }

func (c *stubCall) Cancel() error {
	close(c.cancelled)
	return nil
}

func TestCallAndCancelFiresCancelAfterRingDuration(t *testing.T) {
	call := &stubCall{cancelled: make(chan struct{})}
	driver := &stubDriver{
		release: call.cancelled,
		result:  &ports.Result{Status: 401, Challenge: "c"},
	}

	start := time.Now()
	result, err := CallAndCancel(context.Background(), driver, call, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 401, result.Status)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	select {
	case <-call.cancelled:
	default:
		t.Fatal("cancel was never called")
	}
}

func TestCallAndCancelSkipsCancelWhenDriverFinishesFirst(t *testing.T) {
	call := &stubCall{cancelled: make(chan struct{})}
	driver := &stubDriver{} // returns immediately

	result, err := CallAndCancel(context.Background(), driver, call, time.Hour)

	require.NoError(t, err)
	assert.Nil(t, result)

	select {
	case <-call.cancelled:
		t.Fatal("cancel fired although the association already closed")
	default:
	}
}

func TestCallAndCancelOnContextDone(t *testing.T) {
	call := &stubCall{cancelled: make(chan struct{})}
	driver := &stubDriver{release: call.cancelled}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CallAndCancel(ctx, driver, call, time.Hour)
	require.NoError(t, err)

	select {
	case <-call.cancelled:
	default:
		t.Fatal("context cancellation did not hang up the call")
	}
}
