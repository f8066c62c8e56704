package ports

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/feedherald/feedherald/pkg/config"
	"github.com/feedherald/feedherald/pkg/metrics"
)

type HandlerDeliverFeed interface {
	Handle(ctx context.Context, feed config.FeedConfig) error
}

type FeedUpdater interface {
	UpdateFeeds(ctx context.Context, scheduled bool)
}

// PollFeedsTimer runs the synchronize-then-deliver cycle immediately and
// then on a fixed cadence until the context is cancelled. Per-feed failures
// are logged and never stop the cycle or the timer.
type PollFeedsTimer struct {
	updater  FeedUpdater
	handler  HandlerDeliverFeed
	feeds    []config.FeedConfig
	interval time.Duration
}

func NewPollFeedsTimer(
	updater FeedUpdater,
	handler HandlerDeliverFeed,
	feeds []config.FeedConfig,
	interval time.Duration,
) *PollFeedsTimer {
	return &PollFeedsTimer{
		updater:  updater,
		handler:  handler,
		feeds:    feeds,
		interval: interval,
	}
}

func (t *PollFeedsTimer) Run(ctx context.Context) {
	for {
		t.runCycle(ctx)

		select {
		case <-time.After(t.interval):
			continue
		case <-ctx.Done():
			return
		}
	}
}

func (t *PollFeedsTimer) runCycle(ctx context.Context) {
	log.Print("[INFO] checking for new feed updates...")

	t.updater.UpdateFeeds(ctx, true)

	var wg sync.WaitGroup
	for _, feed := range t.feeds {
		feed := feed
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.handler.Handle(ctx, feed); err != nil {
				log.Printf("[ERROR] error processing feed %s: %s", feed.FeedURL, err)
			}
		}()
	}
	wg.Wait()

	metrics.PollCycles.Inc()
}
