package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeedUrl = "https://blog.example/rss"
const sampleEntryLink = "https://blog.example/posts/1"

func newMockedStore(t *testing.T) (*SQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLite(db, nil), mock
}

func TestAddFeedInsertsNewFeed(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectExec("INSERT OR IGNORE INTO feeds").
		WithArgs(sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.AddFeed(sampleFeedUrl, false)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddFeedWithExistingFeedAndExistOKIsNoop(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectExec("INSERT OR IGNORE INTO feeds").
		WithArgs(sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.AddFeed(sampleFeedUrl, true)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddFeedWithExistingFeedWithoutExistOKReturnsError(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectExec("INSERT OR IGNORE INTO feeds").
		WithArgs(sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.AddFeed(sampleFeedUrl, false)
	assert.ErrorIs(t, err, ErrFeedExists)
}

func TestSetUpdateIntervalForUnknownFeedReturnsError(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectExec("UPDATE feeds SET interval_minutes").
		WithArgs(60, sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetUpdateInterval(sampleFeedUrl, 60)
	assert.ErrorIs(t, err, ErrFeedNotFound)
}

func TestDeleteFeedRemovesFeedAndEntries(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entries WHERE feed_url").
		WithArgs(sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM feeds WHERE url").
		WithArgs(sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.DeleteFeed(sampleFeedUrl)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFeedWithUnknownFeedReturnsError(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entries WHERE feed_url").
		WithArgs(sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM feeds WHERE url").
		WithArgs(sampleFeedUrl).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.DeleteFeed(sampleFeedUrl)
	assert.ErrorIs(t, err, ErrFeedNotFound)
}

func TestGetFeedsScansAllColumns(t *testing.T) {
	s, mock := newMockedStore(t)
	lastUpdated := time.Unix(1700000000, 0)
	rows := sqlmock.NewRows([]string{"url", "title", "interval_minutes", "last_updated"}).
		AddRow(sampleFeedUrl, "Example Blog", 60, lastUpdated.Unix()).
		AddRow("https://news.example/atom.xml", "", nil, nil)
	mock.ExpectQuery("SELECT url, title, interval_minutes, last_updated FROM feeds").
		WillReturnRows(rows)

	feeds, err := s.GetFeeds()
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	assert.Equal(t, sampleFeedUrl, feeds[0].URL)
	assert.Equal(t, "Example Blog", feeds[0].Title)
	require.NotNil(t, feeds[0].UpdateInterval)
	assert.Equal(t, 60, *feeds[0].UpdateInterval)
	require.NotNil(t, feeds[0].LastUpdated)
	assert.Equal(t, lastUpdated, *feeds[0].LastUpdated)

	assert.Nil(t, feeds[1].UpdateInterval)
	assert.Nil(t, feeds[1].LastUpdated)
}

func TestGetEntriesReturnsNewestFirst(t *testing.T) {
	s, mock := newMockedStore(t)
	rows := sqlmock.NewRows([]string{"feed_url", "link", "title", "summary", "published", "read"}).
		AddRow(sampleFeedUrl, sampleEntryLink, "Post 1", "<p>hello</p>", 1700000300, false).
		AddRow(sampleFeedUrl, "https://blog.example/posts/0", "Post 0", "", nil, false)
	mock.ExpectQuery("SELECT feed_url, link, title, summary, published, read FROM entries WHERE feed_url=\\? AND read=\\? ORDER BY published DESC, added DESC").
		WithArgs(sampleFeedUrl, false).
		WillReturnRows(rows)

	entries, err := s.GetEntries(sampleFeedUrl, false)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Post 1", entries[0].Title)
	require.NotNil(t, entries[0].Published)
	assert.Equal(t, int64(1700000300), entries[0].Published.Unix())
	assert.False(t, entries[0].Read)

	assert.Equal(t, "Post 0", entries[1].Title)
	assert.Nil(t, entries[1].Published)
}

func TestMarkEntryAsReadUpdatesReadFlag(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectExec("UPDATE entries SET read=1").
		WithArgs(sampleFeedUrl, sampleEntryLink).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.MarkEntryAsRead(Entry{FeedURL: sampleFeedUrl, Link: sampleEntryLink})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEntryAsReadWithUnknownEntryReturnsError(t *testing.T) {
	s, mock := newMockedStore(t)
	mock.ExpectExec("UPDATE entries SET read=1").
		WithArgs(sampleFeedUrl, sampleEntryLink).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkEntryAsRead(Entry{FeedURL: sampleFeedUrl, Link: sampleEntryLink})
	assert.ErrorContains(t, err, "not found")
}

func TestUpdateDue(t *testing.T) {
	now := time.Unix(1700000000, 0)
	hourAgo := now.Add(-time.Hour)
	minuteAgo := now.Add(-time.Minute)
	sixty := 60

	testCases := []struct {
		name     string
		feed     Feed
		expected bool
	}{
		{
			name:     "no interval is always due",
			feed:     Feed{LastUpdated: &minuteAgo},
			expected: true,
		},
		{
			name:     "never updated is due",
			feed:     Feed{UpdateInterval: &sixty},
			expected: true,
		},
		{
			name:     "interval elapsed is due",
			feed:     Feed{UpdateInterval: &sixty, LastUpdated: &hourAgo},
			expected: true,
		},
		{
			name:     "interval not elapsed is not due",
			feed:     Feed{UpdateInterval: &sixty, LastUpdated: &minuteAgo},
			expected: false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, updateDue(tc.feed, now))
		})
	}
}
