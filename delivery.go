package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DeliveryChannel hands one-time codes to the account holder out of band.
// Implementations must treat the plaintext code as write-only: it is never
// persisted and never logged.
type DeliveryChannel interface {
	DeliverVerificationCode(ctx context.Context, user *User, code string, expiresAt time.Time) error
	DeliverResetToken(ctx context.Context, user *User, token string, expiresAt time.Time) error
}

type noopDeliveryChannel struct{}

func (noopDeliveryChannel) DeliverVerificationCode(context.Context, *User, string, time.Time) error {
	return nil
}

func (noopDeliveryChannel) DeliverResetToken(context.Context, *User, string, time.Time) error {
	return nil
}

func normalizeDeliveryChannel(d DeliveryChannel) DeliveryChannel {
	if d == nil {
		return noopDeliveryChannel{}
	}
	return d
}

// DefaultDeliveryTimeout bounds how long an issuance operation may block
// on the delivery channel.
const DefaultDeliveryTimeout = 10 * time.Second

// BoundedDelivery wraps a channel with a per-call timeout so a slow or
// wedged transport cannot hold an issuance operation open indefinitely.
type BoundedDelivery struct {
	channel DeliveryChannel
	timeout time.Duration
}

// NewBoundedDelivery decorates the channel with the given timeout. A
// non-positive timeout falls back to DefaultDeliveryTimeout.
func NewBoundedDelivery(channel DeliveryChannel, timeout time.Duration) *BoundedDelivery {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &BoundedDelivery{
		channel: normalizeDeliveryChannel(channel),
		timeout: timeout,
	}
}

func (b *BoundedDelivery) DeliverVerificationCode(ctx context.Context, user *User, code string, expiresAt time.Time) error {
	return b.deliver(ctx, func(ctx context.Context) error {
		return b.channel.DeliverVerificationCode(ctx, user, code, expiresAt)
	})
}

func (b *BoundedDelivery) DeliverResetToken(ctx context.Context, user *User, token string, expiresAt time.Time) error {
	return b.deliver(ctx, func(ctx context.Context) error {
		return b.channel.DeliverResetToken(ctx, user, token, expiresAt)
	})
}

func (b *BoundedDelivery) deliver(ctx context.Context, send func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- send(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return goerrors.Wrap(err, ErrDeliveryFailure.Category, ErrDeliveryFailure.Message).
				WithTextCode(ErrDeliveryFailure.TextCode)
		}
		return nil
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), ErrDeliveryFailure.Category, "delivery timed out").
			WithTextCode(ErrDeliveryFailure.TextCode)
	}
}
