// Package feeds reconciles the configured feed list against the store and
// drives the store's fetch and read-state operations. Store errors are
// contained here: they are logged and turned into safe defaults so a store
// failure never crashes a polling cycle.
package feeds

import (
	"context"
	"log"
	"sync"

	"github.com/feedherald/feedherald/pkg/config"
	"github.com/feedherald/feedherald/pkg/executor"
	"github.com/feedherald/feedherald/pkg/metrics"
	"github.com/feedherald/feedherald/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
)

type Manager struct {
	store    store.Store
	executor *executor.Executor
}

func NewManager(s store.Store, e *executor.Executor) *Manager {
	return &Manager{store: s, executor: e}
}

// AddFeed registers a single feed and applies its update interval when
// provided. Registration is idempotent.
func (m *Manager) AddFeed(ctx context.Context, feedUrl string, updateInterval *int) {
	log.Printf("[INFO] adding feed: %s", feedUrl)

	err := m.executor.Run(ctx, func() error {
		return m.store.AddFeed(feedUrl, true)
	})
	if err != nil {
		log.Printf("[ERROR] error adding feed %s: %v", feedUrl, err)
		metrics.AppErrors.With(prometheus.Labels{"type": "STORE_ADD"}).Inc()
		return
	}

	if updateInterval == nil {
		return
	}

	err = m.executor.Run(ctx, func() error {
		return m.store.SetUpdateInterval(feedUrl, *updateInterval)
	})
	if err != nil {
		log.Printf("[ERROR] error setting the update interval for feed %s: %v", feedUrl, err)
		metrics.AppErrors.With(prometheus.Labels{"type": "STORE_TAG"}).Inc()
	}
}

// AddAll registers every configured feed concurrently.
func (m *Manager) AddAll(ctx context.Context, feeds []config.FeedConfig) {
	var wg sync.WaitGroup
	for _, feed := range feeds {
		feed := feed
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddFeed(ctx, feed.FeedURL, feed.UpdateInterval)
		}()
	}
	wg.Wait()
}

// ExistingFeeds returns the urls currently registered in the store. On a
// store failure it returns an empty set, which drives a re-add on the next
// reconciliation rather than a silent skip.
func (m *Manager) ExistingFeeds(ctx context.Context) map[string]struct{} {
	existing := make(map[string]struct{})

	err := m.executor.Run(ctx, func() error {
		feeds, err := m.store.GetFeeds()
		if err != nil {
			return err
		}
		for _, feed := range feeds {
			existing[feed.URL] = struct{}{}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] error listing registered feeds: %v", err)
		metrics.AppErrors.With(prometheus.Labels{"type": "STORE_LIST"}).Inc()
		return map[string]struct{}{}
	}

	return existing
}

// Cleanup deletes every feed in existing that is no longer configured.
// Deletions run concurrently and independently.
func (m *Manager) Cleanup(ctx context.Context, configUrls, existing map[string]struct{}) {
	var wg sync.WaitGroup
	for feedUrl := range existing {
		if _, ok := configUrls[feedUrl]; ok {
			continue
		}

		feedUrl := feedUrl
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("[INFO] removing feed: %s", feedUrl)
			err := m.executor.Run(ctx, func() error {
				return m.store.DeleteFeed(feedUrl)
			})
			if err != nil {
				log.Printf("[ERROR] error removing feed %s: %v", feedUrl, err)
				metrics.AppErrors.With(prometheus.Labels{"type": "STORE_DELETE"}).Inc()
			}
		}()
	}
	wg.Wait()
}

// UpdateFeeds triggers the store's fetch-and-refresh for all registered
// feeds. Failures are logged; the cycle continues.
func (m *Manager) UpdateFeeds(ctx context.Context, scheduled bool) {
	err := m.executor.Run(ctx, func() error {
		return m.store.UpdateFeeds(scheduled)
	})
	if err != nil {
		log.Printf("[ERROR] error updating feeds: %v", err)
		metrics.AppErrors.With(prometheus.Labels{"type": "STORE_UPDATE"}).Inc()
	}
}

// UnreadEntries returns the unread entries for a feed in the store's order
// (newest first). On a store failure it returns an empty sequence.
func (m *Manager) UnreadEntries(ctx context.Context, feedUrl string) []store.Entry {
	var entries []store.Entry

	err := m.executor.Run(ctx, func() error {
		var err error
		entries, err = m.store.GetEntries(feedUrl, false)
		return err
	})
	if err != nil {
		log.Printf("[ERROR] error fetching unread entries for %s: %v", feedUrl, err)
		metrics.AppErrors.With(prometheus.Labels{"type": "STORE_ENTRIES"}).Inc()
		return nil
	}

	return entries
}

// MarkEntriesAsRead flips the read flag for each entry, concurrently and
// independently. A failed mark leaves the entry unread for the next cycle.
func (m *Manager) MarkEntriesAsRead(ctx context.Context, entries []store.Entry) {
	if len(entries) == 0 {
		return
	}

	log.Printf("[INFO] marking %d entries as read", len(entries))

	var wg sync.WaitGroup
	for _, entry := range entries {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.executor.Run(ctx, func() error {
				return m.store.MarkEntryAsRead(entry)
			})
			if err != nil {
				log.Printf("[ERROR] error marking entry %q as read: %v", entry.Link, err)
				metrics.AppErrors.With(prometheus.Labels{"type": "STORE_MARK_READ"}).Inc()
			}
		}()
	}
	wg.Wait()
}

// Setup reconciles the store against the configuration and performs the
// initial unthrottled refresh. The existing set is snapshotted before any
// add is issued, so feeds added in this pass can never race into the
// removal candidate set.
func (m *Manager) Setup(ctx context.Context, conf *config.ConfigFile) {
	existing := m.ExistingFeeds(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.AddAll(ctx, conf.Feeds)
	}()
	go func() {
		defer wg.Done()
		m.Cleanup(ctx, conf.FeedURLSet(), existing)
	}()
	wg.Wait()

	// Immediate update after setup, bypassing the per-feed throttle.
	m.UpdateFeeds(ctx, false)
}
