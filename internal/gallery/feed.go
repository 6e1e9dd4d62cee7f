package gallery

import (
	"context"
	"fmt"

	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	redispkg "github.com/crewboard/crewboard-backend/pkg/redis"
)

type sequenceLister interface {
	ListGallery(ctx context.Context, limit int) ([]models.Media, error)
}

// ChangeSignal delivers coalesced "something changed" ticks. The payload
// carries no data; the feed always re-queries the record store so it never
// serves a stale snapshot.
type ChangeSignal interface {
	Subscribe(ctx context.Context) (<-chan struct{}, func(), error)
}

// Notifier is the Redis-backed change signal. Every gallery write publishes
// on the channel; the feed subscribes to it.
type Notifier struct {
	redis   *redispkg.Client
	channel string
}

// NewNotifier constructs the publisher/subscriber pair for the change channel.
func NewNotifier(client *redispkg.Client, channel string) (*Notifier, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		return nil, fmt.Errorf("change channel required")
	}
	return &Notifier{redis: client, channel: channel}, nil
}

// GalleryChanged publishes one change tick.
func (n *Notifier) GalleryChanged(ctx context.Context) error {
	return n.redis.Publish(ctx, n.channel, "changed")
}

// Subscribe opens a coalescing subscription on the change channel.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	sub, err := n.redis.Subscribe(ctx, n.channel)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range sub.Channel() {
			select {
			case out <- struct{}{}:
			default:
				// A tick is already pending; the requery will see this
				// change too.
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

// Feed re-queries the authoritative gallery sequence on every change tick and
// hands each fresh snapshot to the consumer.
type Feed struct {
	lister sequenceLister
	signal ChangeSignal
	limit  int
	logg   *logger.Logger
}

// NewFeed constructs a feed over the record store and change signal.
func NewFeed(lister sequenceLister, signal ChangeSignal, limit int, logg *logger.Logger) (*Feed, error) {
	if lister == nil {
		return nil, fmt.Errorf("sequence lister required")
	}
	if signal == nil {
		return nil, fmt.Errorf("change signal required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("stream limit must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Feed{lister: lister, signal: signal, limit: limit, logg: logg}, nil
}

// Snapshot queries the current authoritative sequence.
func (f *Feed) Snapshot(ctx context.Context) (Sequence, error) {
	rows, err := f.lister.ListGallery(ctx, f.limit)
	if err != nil {
		return nil, err
	}
	return SequenceFromModels(rows), nil
}

// Run delivers the current snapshot immediately, then once per change tick,
// until the context ends. A lost subscription terminates the loop with an
// error so the caller can restart the worker.
func (f *Feed) Run(ctx context.Context, onPush func(context.Context, Sequence)) error {
	ticks, cancel, err := f.signal.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to change signal: %w", err)
	}
	defer cancel()

	f.push(ctx, onPush)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return fmt.Errorf("change signal subscription closed")
			}
			f.push(ctx, onPush)
		}
	}
}

func (f *Feed) push(ctx context.Context, onPush func(context.Context, Sequence)) {
	seq, err := f.Snapshot(ctx)
	if err != nil {
		f.logg.Error(ctx, "gallery requery failed", err)
		return
	}
	onPush(ctx, seq)
}
