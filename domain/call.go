package domain

import (
	"context"
	"time"

	"ring_and_rip/ports"
)

// CallAndCancel - places a "ring for ringFor, then hang up" notification
// call: the driver pumps the invite while a timer waits to fire Cancel.
// Best-effort by contract; if the far end tears the association down
// before the timer fires, the timer is abandoned and no CANCEL is sent.
func CallAndCancel(ctx context.Context, driver ports.Driver, invite ports.Cancelable, ringFor time.Duration) (*ports.Result, error) {
	type outcome struct {
		result *ports.Result
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := driver.Run(ctx)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(ringFor)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.result, o.err

	case <-timer.C:
		// a refusal here means the transaction already completed or was
		// cancelled, the association will close on its own
		_ = invite.Cancel()

	case <-ctx.Done():
		_ = invite.Cancel()
	}

	o := <-done

	return o.result, o.err
}
