package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrUpstreamStalled is returned from a body read when the upstream sent no
// bytes for longer than the read idle timeout.
var ErrUpstreamStalled = errors.New("upstream stalled")

// idleBody aborts the upstream exchange when a single Read waits longer than
// idle. The timer only runs while a Read is in progress, so a slow client
// draining the relay never trips it. A zero idle disables the timer.
// Close always releases the request context.
type idleBody struct {
	rc     io.ReadCloser
	ctx    context.Context
	cancel context.CancelCauseFunc
	idle   time.Duration
	timer  *time.Timer
}

func newIdleBody(ctx context.Context, cancel context.CancelCauseFunc, rc io.ReadCloser, idle time.Duration) *idleBody {
	b := &idleBody{rc: rc, ctx: ctx, cancel: cancel, idle: idle}
	if idle > 0 {
		b.timer = time.AfterFunc(idle, func() {
			cancel(fmt.Errorf("%w: no data for %s", ErrUpstreamStalled, idle))
		})
		b.timer.Stop()
	}
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	if b.timer == nil {
		return b.rc.Read(p)
	}

	b.timer.Reset(b.idle)
	n, err := b.rc.Read(p)
	b.timer.Stop()

	if err != nil && err != io.EOF {
		if cause := context.Cause(b.ctx); errors.Is(cause, ErrUpstreamStalled) {
			return n, cause
		}
	}
	return n, err
}

func (b *idleBody) Close() error {
	if b.timer != nil {
		b.timer.Stop()
	}
	err := b.rc.Close()
	b.cancel(nil)
	return err
}
