package store

import (
	"database/sql"
	"log"
	"os"
	"path"
	"sync"
	"time"

	"github.com/feedherald/feedherald/pkg/metrics"
	"github.com/hashicorp/go-multierror"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const updateWorkers = 10

const schemaSQL = `
CREATE TABLE IF NOT EXISTS feeds (
	url TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	interval_minutes INTEGER,
	last_updated INTEGER
);
CREATE TABLE IF NOT EXISTS entries (
	feed_url TEXT NOT NULL,
	link TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	published INTEGER,
	read INTEGER NOT NULL DEFAULT 0,
	added INTEGER NOT NULL,
	PRIMARY KEY (feed_url, link)
);
CREATE INDEX IF NOT EXISTS idx_entries_unread ON entries (feed_url, read);
`

// SQLite is the Store engine backed by a sqlite database.
type SQLite struct {
	db      *sql.DB
	fetcher *Fetcher
	now     func() time.Time
}

func Open(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(path.Dir(dbPath), 0o770); err != nil {
		return nil, errors.Wrapf(err, "unable to initialize the database directory at %q", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening the database")
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, errors.Wrap(err, "cannot migrate schema")
	}

	log.Printf("[INFO] database opened at %s", dbPath)

	return NewSQLite(db, NewFetcher()), nil
}

func NewSQLite(db *sql.DB, fetcher *Fetcher) *SQLite {
	return &SQLite{db: db, fetcher: fetcher, now: time.Now}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) AddFeed(url string, existOK bool) error {
	result, err := s.db.Exec(`INSERT OR IGNORE INTO feeds (url) VALUES (?)`, url)
	if err != nil {
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrapf(err, "error registering feed %q", url)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error checking the insert result")
	}

	if affected == 0 {
		if existOK {
			return nil
		}
		return ErrFeedExists
	}

	log.Printf("[DEBUG] registered feed %q", url)
	metrics.FeedsAdded.Inc()
	return nil
}

func (s *SQLite) SetUpdateInterval(url string, minutes int) error {
	result, err := s.db.Exec(`UPDATE feeds SET interval_minutes=? WHERE url=?`, minutes, url)
	if err != nil {
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrapf(err, "error setting the update interval for feed %q", url)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error checking the update result")
	}

	if affected == 0 {
		return ErrFeedNotFound
	}

	return nil
}

func (s *SQLite) DeleteFeed(url string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "error starting a transaction")
	}

	if _, err := tx.Exec(`DELETE FROM entries WHERE feed_url=?`, url); err != nil {
		_ = tx.Rollback()
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrapf(err, "error deleting entries for feed %q", url)
	}

	result, err := tx.Exec(`DELETE FROM feeds WHERE url=?`, url)
	if err != nil {
		_ = tx.Rollback()
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrapf(err, "error deleting feed %q", url)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "error checking the delete result")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing the delete")
	}

	if affected == 0 {
		return ErrFeedNotFound
	}

	log.Printf("[DEBUG] deleted feed %q", url)
	metrics.FeedsRemoved.Inc()
	return nil
}

func (s *SQLite) GetFeeds() ([]Feed, error) {
	rows, err := s.db.Query(`SELECT url, title, interval_minutes, last_updated FROM feeds ORDER BY url`)
	if err != nil {
		return nil, errors.Wrap(err, "error listing feeds")
	}
	defer rows.Close() // not much we can do here

	var feeds []Feed
	for rows.Next() {
		var (
			feed        Feed
			interval    sql.NullInt64
			lastUpdated sql.NullInt64
		)
		if err := rows.Scan(&feed.URL, &feed.Title, &interval, &lastUpdated); err != nil {
			metrics.AppErrors.With(prometheus.Labels{"type": "SQL_SCAN"}).Inc()
			return nil, errors.Wrap(err, "error scanning the retrieved rows")
		}
		if interval.Valid {
			minutes := int(interval.Int64)
			feed.UpdateInterval = &minutes
		}
		if lastUpdated.Valid {
			at := time.Unix(lastUpdated.Int64, 0)
			feed.LastUpdated = &at
		}
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

// UpdateFeeds fetches and refreshes every registered feed. A scheduled run
// honors each feed's update interval; an unscheduled run refreshes
// unconditionally. One feed's failure never blocks the others.
func (s *SQLite) UpdateFeeds(scheduled bool) error {
	log.Printf("[INFO] updating feeds (scheduled=%t)", scheduled)

	feeds, err := s.GetFeeds()
	if err != nil {
		return errors.Wrap(err, "error listing feeds to update")
	}

	var (
		wg        sync.WaitGroup
		mutex     sync.Mutex
		resultErr error
	)
	sem := make(chan struct{}, updateWorkers)

	counterSuccess := 0
	counterError := 0
	now := s.now()

	for _, feed := range feeds {
		if scheduled && !updateDue(feed, now) {
			continue
		}

		feed := feed
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := s.updateFeed(feed, now)

			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				log.Printf("[ERROR] error updating feed %q: %v", feed.URL, err)
				resultErr = multierror.Append(resultErr, err)
				counterError++
			} else {
				counterSuccess++
			}
		}()
	}

	wg.Wait()

	metrics.UpdateResults.With(prometheus.Labels{"result": "success"}).Set(float64(counterSuccess))
	metrics.UpdateResults.With(prometheus.Labels{"result": "error"}).Set(float64(counterError))
	log.Printf("[INFO] updating feeds result success=%d error=%d", counterSuccess, counterError)

	return resultErr
}

func updateDue(feed Feed, now time.Time) bool {
	if feed.UpdateInterval == nil || feed.LastUpdated == nil {
		return true
	}
	return now.Sub(*feed.LastUpdated) >= time.Duration(*feed.UpdateInterval)*time.Minute
}

func (s *SQLite) updateFeed(feed Feed, now time.Time) error {
	parsed, err := s.fetcher.Fetch(feed.URL)
	if err != nil {
		return errors.Wrapf(err, "error fetching feed %q", feed.URL)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "error starting a transaction")
	}

	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}

		var published sql.NullInt64
		if at := itemTime(item.PublishedParsed, item.UpdatedParsed); at != nil {
			published = sql.NullInt64{Int64: at.Unix(), Valid: true}
		}

		// INSERT OR IGNORE keyed on (feed_url, link) so a re-fetched entry
		// never resets its read flag.
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO entries (feed_url, link, title, summary, published, read, added) VALUES (?, ?, ?, ?, ?, 0, ?)`,
			feed.URL, item.Link, item.Title, summary, published, now.Unix(),
		); err != nil {
			_ = tx.Rollback()
			metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
			return errors.Wrapf(err, "error storing entry %q", item.Link)
		}
	}

	if _, err := tx.Exec(
		`UPDATE feeds SET title=?, last_updated=? WHERE url=?`,
		parsed.Title, now.Unix(), feed.URL,
	); err != nil {
		_ = tx.Rollback()
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrapf(err, "error refreshing feed %q", feed.URL)
	}

	return errors.Wrap(tx.Commit(), "error committing the update")
}

func itemTime(published, updated *time.Time) *time.Time {
	if published != nil {
		return published
	}
	return updated
}

// GetEntries returns entries newest first.
func (s *SQLite) GetEntries(feedURL string, read bool) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT feed_url, link, title, summary, published, read FROM entries WHERE feed_url=? AND read=? ORDER BY published DESC, added DESC`,
		feedURL, read,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing entries for feed %q", feedURL)
	}
	defer rows.Close() // not much we can do here

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			published sql.NullInt64
		)
		if err := rows.Scan(&entry.FeedURL, &entry.Link, &entry.Title, &entry.Summary, &published, &entry.Read); err != nil {
			metrics.AppErrors.With(prometheus.Labels{"type": "SQL_SCAN"}).Inc()
			return nil, errors.Wrap(err, "error scanning the retrieved rows")
		}
		if published.Valid {
			at := time.Unix(published.Int64, 0)
			entry.Published = &at
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *SQLite) MarkEntryAsRead(entry Entry) error {
	result, err := s.db.Exec(`UPDATE entries SET read=1 WHERE feed_url=? AND link=?`, entry.FeedURL, entry.Link)
	if err != nil {
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrapf(err, "error marking entry %q as read", entry.Link)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error checking the update result")
	}

	if affected == 0 {
		return errors.Errorf("entry %q not found for feed %q", entry.Link, entry.FeedURL)
	}

	metrics.EntriesMarkedRead.Inc()
	return nil
}
