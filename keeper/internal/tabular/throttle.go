package tabular

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig configures a ThrottledBook.
type RetryConfig struct {
	// Backoff is the fixed sleep after a throttled response. Default: 60s.
	Backoff time.Duration
	// MaxAttempts bounds attempts per call; 0 retries forever.
	MaxAttempts int
	// RequestsPerMinute paces every call client-side; 0 disables pacing.
	RequestsPerMinute int
	Logger            *slog.Logger
}

func (c *RetryConfig) defaults() {
	if c.Backoff <= 0 {
		c.Backoff = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// throttled waits out ErrThrottled responses of inner with a fixed
// backoff. Sleeps observe ctx cancellation.
type throttled struct {
	inner   Store
	cfg     RetryConfig
	limiter *rate.Limiter
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func (t *throttled) do(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("tabular: %s: %w", op, err)
			}
		}
		err := fn()
		if !errors.Is(err, ErrThrottled) {
			return err
		}
		if t.cfg.MaxAttempts > 0 && attempt >= t.cfg.MaxAttempts {
			return fmt.Errorf("tabular: %s: gave up after %d attempts: %w", op, attempt, err)
		}
		t.cfg.Logger.Warn("tabular: throttled, backing off",
			"op", op, "attempt", attempt, "backoff", t.cfg.Backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.cfg.Backoff):
		}
	}
}

func (t *throttled) ReadAll(ctx context.Context) ([][]string, error) {
	var rows [][]string
	err := t.do(ctx, "read", func() error {
		var err error
		rows, err = t.inner.ReadAll(ctx)
		return err
	})
	return rows, err
}

func (t *throttled) Append(ctx context.Context, row []string) (int, error) {
	var pos int
	err := t.do(ctx, "append", func() error {
		var err error
		pos, err = t.inner.Append(ctx, row)
		return err
	})
	return pos, err
}

func (t *throttled) InsertAt(ctx context.Context, pos int, row []string) error {
	return t.do(ctx, "insert", func() error { return t.inner.InsertAt(ctx, pos, row) })
}

func (t *throttled) UpdateRange(ctx context.Context, pos int, rows [][]string) error {
	return t.do(ctx, "update", func() error { return t.inner.UpdateRange(ctx, pos, rows) })
}

func (t *throttled) DeleteAt(ctx context.Context, pos int) error {
	return t.do(ctx, "delete", func() error { return t.inner.DeleteAt(ctx, pos) })
}

func (t *throttled) ReplaceAll(ctx context.Context, rows [][]string) error {
	return t.do(ctx, "replace", func() error { return t.inner.ReplaceAll(ctx, rows) })
}

// ThrottledBook wraps every tab a Book opens with the same retry policy.
// The quota belongs to the whole book, so all tabs and the opens
// themselves draw from one pacing limiter.
type ThrottledBook struct {
	book    Book
	cfg     RetryConfig
	limiter *rate.Limiter
}

// NewThrottledBook wraps b.
func NewThrottledBook(b Book, cfg RetryConfig) *ThrottledBook {
	cfg.defaults()
	return &ThrottledBook{book: b, cfg: cfg, limiter: newLimiter(cfg.RequestsPerMinute)}
}

func (b *ThrottledBook) Tab(ctx context.Context, name string, header []string) (Store, error) {
	var s Store
	err := (&throttled{cfg: b.cfg, limiter: b.limiter}).do(ctx, "open "+name, func() error {
		var err error
		s, err = b.book.Tab(ctx, name, header)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &throttled{inner: s, cfg: b.cfg, limiter: b.limiter}, nil
}
