package utils

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/manifest-network/chainguard/internal/rpc"
)

// Dialer builds a new adapter around a new node connection.
type Dialer func() (*rpc.Adapter, error)

// Reconnector hands out clones of a node adapter and replaces the adapter
// once its connection has been poisoned. A poisoned adapter is never reused.
type Reconnector struct {
	dial       Dialer
	maxRetries uint64
	backoff    time.Duration

	mu      sync.Mutex
	current *rpc.Adapter
	redials int
}

// NewReconnector dials the first adapter straight away.
func NewReconnector(dial Dialer, maxRetries uint, backoff time.Duration) (*Reconnector, error) {
	adapter, err := dial()
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "failed to connect to node")
	}
	return &Reconnector{
		dial:       dial,
		maxRetries: uint64(maxRetries),
		backoff:    backoff,
		current:    adapter,
	}, nil
}

// Redials returns how many times the adapter has been replaced.
func (r *Reconnector) Redials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redials
}

// adapter returns a clone of a healthy adapter, replacing a poisoned one first.
func (r *Reconnector) adapter() (*rpc.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cause := r.current.Err(); cause != nil {
		adapter, err := r.dial()
		if err != nil {
			return nil, pkgerrors.WithMessage(err, "failed to reconnect to node")
		}
		r.current = adapter
		r.redials++
		slog.Warn("Replaced poisoned node connection", "cause", cause, "redials", r.redials)
	}
	return r.current.Clone(), nil
}

// Do runs fn with a healthy adapter clone. Transport failures are retried
// with exponential backoff on a fresh connection, up to the configured number
// of retries. Any other error is returned as is.
func (r *Reconnector) Do(ctx context.Context, fn func(ctx context.Context, adapter *rpc.Adapter) error) error {
	backoff, err := retry.NewExponential(r.backoff)
	if err != nil {
		return err
	}
	backoff = retry.WithMaxRetries(r.maxRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		adapter, err := r.adapter()
		if err != nil {
			return retry.RetryableError(err)
		}

		err = fn(ctx, adapter)
		if errors.Is(err, rpc.ErrTransport) || errors.Is(err, rpc.ErrPoisoned) {
			return retry.RetryableError(err)
		}
		return err
	})
}
