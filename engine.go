package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/praslov/authkit/internal/notify"
	"github.com/praslov/authkit/internal/rate"
	"github.com/praslov/authkit/password"
	"github.com/praslov/authkit/session"
	"github.com/praslov/authkit/token"
)

// Engine composes the hasher, token codec, session store, code flows, and
// throttle into the login, registration, refresh, device-management, and
// recovery operations. Construct through [Builder.Build]; immutable and
// safe for concurrent use afterwards.
type Engine struct {
	config    Config
	hasher    *password.Hasher
	tokens    *token.Manager
	sessions  *session.Store
	limiter   *rate.Limiter
	notify    *notify.Dispatcher
	metrics   *Metrics
	directory UserDirectory
	now       func() time.Time
	warn      func(format string, args ...any)
}

// Close drains and stops the notification dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notify.Close()
}

// Admit gates one request through the sliding-window throttle. The client
// key is the caller's IP (from [WithClientIP]) plus the endpoint path, so
// limits are independent per endpoint. Returns nil when admitted,
// [ErrRateLimited] when denied. With the throttle disabled everything is
// admitted.
func (e *Engine) Admit(ctx context.Context, endpoint string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.limiter == nil {
		return nil
	}

	clientKey := clientIPFromContext(ctx) + ":" + endpoint
	if err := e.limiter.Admit(ctx, clientKey); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricThrottleDenied)
			return ErrRateLimited
		}
		return e.storeFault(err)
	}

	return nil
}

// NotifyDropped reports notifications discarded due to a full buffer.
func (e *Engine) NotifyDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notify.Dropped()
}

// NotifyFailed reports notification deliveries that returned an error.
func (e *Engine) NotifyFailed() uint64 {
	if e == nil {
		return 0
	}
	return e.notify.Failed()
}

// MetricsSnapshot returns a copy of all metric values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeFault maps an infrastructure error to the public sentinel while
// preserving the cause in the message.
func (e *Engine) storeFault(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// emitNotification enqueues an outbound message. Fire-and-forget: the
// calling flow returns as soon as the message is buffered.
func (e *Engine) emitNotification(ctx context.Context, address string, kind NotifyKind, code string) {
	e.notify.Emit(ctx, NotifyMessage{
		Address: address,
		Kind:    kind,
		Code:    code,
	})
}
