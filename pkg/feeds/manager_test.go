package feeds

import (
	"context"
	"sync"
	"testing"

	"github.com/feedherald/feedherald/pkg/config"
	"github.com/feedherald/feedherald/pkg/executor"
	"github.com/feedherald/feedherald/pkg/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mutex sync.Mutex

	feeds     map[string]*store.Feed
	entries   map[string][]store.Entry
	updateLog []bool

	failAddFeed     bool
	failGetFeeds    bool
	failDeleteFeed  bool
	failGetEntries  bool
	failMarkAsRead  map[string]bool
	snapshotOnAdd   func()
	deletedFeedUrls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		feeds:          make(map[string]*store.Feed),
		entries:        make(map[string][]store.Entry),
		failMarkAsRead: make(map[string]bool),
	}
}

func (f *fakeStore) AddFeed(url string, existOK bool) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.snapshotOnAdd != nil {
		f.snapshotOnAdd()
	}
	if f.failAddFeed {
		return errors.New("store failure")
	}
	if _, ok := f.feeds[url]; ok {
		if existOK {
			return nil
		}
		return store.ErrFeedExists
	}
	f.feeds[url] = &store.Feed{URL: url}
	return nil
}

func (f *fakeStore) SetUpdateInterval(url string, minutes int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	feed, ok := f.feeds[url]
	if !ok {
		return store.ErrFeedNotFound
	}
	feed.UpdateInterval = &minutes
	return nil
}

func (f *fakeStore) DeleteFeed(url string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failDeleteFeed {
		return errors.New("store failure")
	}
	if _, ok := f.feeds[url]; !ok {
		return store.ErrFeedNotFound
	}
	delete(f.feeds, url)
	f.deletedFeedUrls = append(f.deletedFeedUrls, url)
	return nil
}

func (f *fakeStore) GetFeeds() ([]store.Feed, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failGetFeeds {
		return nil, errors.New("store failure")
	}
	var feeds []store.Feed
	for _, feed := range f.feeds {
		feeds = append(feeds, *feed)
	}
	return feeds, nil
}

func (f *fakeStore) UpdateFeeds(scheduled bool) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.updateLog = append(f.updateLog, scheduled)
	return nil
}

func (f *fakeStore) GetEntries(feedURL string, read bool) ([]store.Entry, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failGetEntries {
		return nil, errors.New("store failure")
	}
	var entries []store.Entry
	for _, entry := range f.entries[feedURL] {
		if entry.Read == read {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (f *fakeStore) MarkEntryAsRead(entry store.Entry) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failMarkAsRead[entry.Link] {
		return errors.New("store failure")
	}
	entries := f.entries[entry.FeedURL]
	for i := range entries {
		if entries[i].Link == entry.Link {
			entries[i].Read = true
		}
	}
	return nil
}

func (f *fakeStore) registeredUrls() map[string]struct{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	urls := make(map[string]struct{})
	for url := range f.feeds {
		urls[url] = struct{}{}
	}
	return urls
}

func newTestManager(t *testing.T, s store.Store) *Manager {
	t.Helper()
	e := executor.New(4)
	t.Cleanup(e.Close)
	return NewManager(s, e)
}

func configWith(urls ...string) *config.ConfigFile {
	conf := &config.ConfigFile{DBPath: "test.sqlite"}
	for _, url := range urls {
		conf.Feeds = append(conf.Feeds, config.FeedConfig{FeedURL: url, ChannelID: "123"})
	}
	return conf
}

func TestAddFeedIsIdempotent(t *testing.T) {
	fake := newFakeStore()
	manager := newTestManager(t, fake)

	manager.AddFeed(context.Background(), "https://blog.example/rss", nil)
	manager.AddFeed(context.Background(), "https://blog.example/rss", nil)

	assert.Len(t, fake.registeredUrls(), 1)
}

func TestAddFeedAppliesUpdateInterval(t *testing.T) {
	fake := newFakeStore()
	manager := newTestManager(t, fake)
	interval := 60

	manager.AddFeed(context.Background(), "https://blog.example/rss", &interval)

	require.NotNil(t, fake.feeds["https://blog.example/rss"].UpdateInterval)
	assert.Equal(t, 60, *fake.feeds["https://blog.example/rss"].UpdateInterval)
}

func TestSetupReconcilesStoreAgainstConfiguration(t *testing.T) {
	fake := newFakeStore()
	require.NoError(t, fake.AddFeed("https://stale.example/rss", false))
	require.NoError(t, fake.AddFeed("https://kept.example/rss", false))
	manager := newTestManager(t, fake)

	conf := configWith("https://kept.example/rss", "https://new.example/rss")
	manager.Setup(context.Background(), conf)

	registered := fake.registeredUrls()
	assert.Equal(t, conf.FeedURLSet(), registered)
	assert.Equal(t, []string{"https://stale.example/rss"}, fake.deletedFeedUrls)
}

func TestSetupPerformsUnthrottledInitialUpdate(t *testing.T) {
	fake := newFakeStore()
	manager := newTestManager(t, fake)

	manager.Setup(context.Background(), configWith("https://blog.example/rss"))

	require.Len(t, fake.updateLog, 1)
	assert.False(t, fake.updateLog[0])
}

func TestSetupSnapshotsExistingFeedsBeforeAdds(t *testing.T) {
	fake := newFakeStore()
	snapshotted := false
	fake.snapshotOnAdd = func() {
		// GetFeeds holds the same mutex, so reaching AddFeed proves the
		// snapshot either happened already or was not yet requested; the
		// deleted list below proves no added feed was a removal candidate.
		snapshotted = true
	}
	manager := newTestManager(t, fake)

	manager.Setup(context.Background(), configWith("https://new.example/rss"))

	assert.True(t, snapshotted)
	assert.Empty(t, fake.deletedFeedUrls)
	assert.Contains(t, fake.registeredUrls(), "https://new.example/rss")
}

func TestExistingFeedsWithStoreFailureReturnsEmptySet(t *testing.T) {
	fake := newFakeStore()
	require.NoError(t, fake.AddFeed("https://blog.example/rss", false))
	fake.failGetFeeds = true
	manager := newTestManager(t, fake)

	existing := manager.ExistingFeeds(context.Background())
	assert.Empty(t, existing)
}

func TestCleanupFailureOnOneFeedDoesNotBlockOthers(t *testing.T) {
	fake := newFakeStore()
	require.NoError(t, fake.AddFeed("https://one.example/rss", false))
	require.NoError(t, fake.AddFeed("https://two.example/rss", false))
	manager := newTestManager(t, fake)

	existing := fake.registeredUrls()
	// Deleting a feed the fake does not know about fails; the other delete
	// must still happen.
	existing["https://ghost.example/rss"] = struct{}{}

	manager.Cleanup(context.Background(), map[string]struct{}{"https://one.example/rss": {}}, existing)

	registered := fake.registeredUrls()
	assert.Contains(t, registered, "https://one.example/rss")
	assert.NotContains(t, registered, "https://two.example/rss")
}

func TestUnreadEntriesWithStoreFailureReturnsEmpty(t *testing.T) {
	fake := newFakeStore()
	fake.failGetEntries = true
	manager := newTestManager(t, fake)

	entries := manager.UnreadEntries(context.Background(), "https://blog.example/rss")
	assert.Empty(t, entries)
}

func TestMarkEntriesAsReadFailureOnOneEntryDoesNotBlockOthers(t *testing.T) {
	fake := newFakeStore()
	fake.entries["https://blog.example/rss"] = []store.Entry{
		{FeedURL: "https://blog.example/rss", Link: "https://blog.example/posts/1"},
		{FeedURL: "https://blog.example/rss", Link: "https://blog.example/posts/2"},
	}
	fake.failMarkAsRead["https://blog.example/posts/1"] = true
	manager := newTestManager(t, fake)

	manager.MarkEntriesAsRead(context.Background(), fake.entries["https://blog.example/rss"])

	unread, err := fake.GetEntries("https://blog.example/rss", false)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "https://blog.example/posts/1", unread[0].Link)
}
