package app

import (
	"context"

	"github.com/feedherald/feedherald/pkg/notify"
	"github.com/feedherald/feedherald/pkg/store"
)

type App struct {
	DeliverFeed *HandlerDeliverFeed
}

// FeedService is the slice of the feeds manager the delivery handler needs.
type FeedService interface {
	UnreadEntries(ctx context.Context, feedUrl string) []store.Entry
	MarkEntriesAsRead(ctx context.Context, entries []store.Entry)
}

// ChannelResolver resolves a configured channel id to a send-capable
// channel, or fails when the id does not name one.
type ChannelResolver interface {
	Channel(id string) (notify.Sender, error)
}
