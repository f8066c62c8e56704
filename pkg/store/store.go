// Package store is the durable feed state store: registered feeds, their
// entries, and the per-entry read flag. All operations are synchronous and
// are expected to be called through the executor bridge.
package store

import (
	"time"

	"github.com/pkg/errors"
)

var (
	ErrFeedExists   = errors.New("feed already exists")
	ErrFeedNotFound = errors.New("feed not found")
)

type Feed struct {
	URL            string
	Title          string
	UpdateInterval *int
	LastUpdated    *time.Time
}

type Entry struct {
	FeedURL   string
	Link      string
	Title     string
	Summary   string
	Published *time.Time
	Read      bool
}

type Store interface {
	AddFeed(url string, existOK bool) error
	SetUpdateInterval(url string, minutes int) error
	DeleteFeed(url string) error
	GetFeeds() ([]Feed, error)
	UpdateFeeds(scheduled bool) error
	GetEntries(feedURL string, read bool) ([]Entry, error)
	MarkEntryAsRead(entry Entry) error
}
