package app

import (
	"context"
	"fmt"
	"log"

	"github.com/feedherald/feedherald/pkg/config"
	"github.com/feedherald/feedherald/pkg/message"
	"github.com/feedherald/feedherald/pkg/metrics"
	"github.com/feedherald/feedherald/pkg/notify"
	"github.com/feedherald/feedherald/pkg/store"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// HandlerDeliverFeed delivers one feed's unread entries to its channel and
// marks the delivered ones as read. An entry is marked read only after its
// send was confirmed; a failed send leaves the entry unread for the next
// cycle.
type HandlerDeliverFeed struct {
	feedService      FeedService
	channelResolver  ChannelResolver
	maxContentLength int
}

func NewHandlerDeliverFeed(
	feedService FeedService,
	channelResolver ChannelResolver,
	maxContentLength int,
) *HandlerDeliverFeed {
	return &HandlerDeliverFeed{
		feedService:      feedService,
		channelResolver:  channelResolver,
		maxContentLength: maxContentLength,
	}
}

func (h *HandlerDeliverFeed) Handle(ctx context.Context, feed config.FeedConfig) error {
	entries := h.feedService.UnreadEntries(ctx, feed.FeedURL)
	if len(entries) == 0 {
		log.Printf("[DEBUG] no unread entries for feed %s", feed.FeedURL)
		return nil
	}

	channel, err := h.channelResolver.Channel(string(feed.ChannelID))
	if err != nil {
		log.Printf("[ERROR] invalid channel ID %s for feed %s: %v", feed.ChannelID, feed.FeedURL, err)
		metrics.AppErrors.With(prometheus.Labels{"type": "CHANNEL_RESOLVE"}).Inc()
		return errors.Wrapf(err, "error resolving the channel for feed %s", feed.FeedURL)
	}

	log.Printf("[INFO] sending %d entries to channel %s", len(entries), feed.ChannelID)

	// The store returns entries newest first. Sends go oldest first and are
	// serialized per feed so the channel receives them in chronological
	// order.
	var (
		delivered []store.Entry
		resultErr error
	)
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := h.sendEntry(channel, feed, entry); err != nil {
			resultErr = multierror.Append(resultErr, err)
			continue
		}
		delivered = append(delivered, entry)
	}

	h.feedService.MarkEntriesAsRead(ctx, delivered)

	return resultErr
}

func (h *HandlerDeliverFeed) sendEntry(channel notify.Sender, feed config.FeedConfig, entry store.Entry) error {
	formatted := message.FormatEntry(entry, h.maxContentLength)

	if err := channel.Send(formatted); err != nil {
		log.Printf("[ERROR] error sending entry %s to channel %s: %v", entry.Link, feed.ChannelID, err)
		metrics.AppErrors.With(prometheus.Labels{"type": "CHANNEL_SEND"}).Inc()

		notice := fmt.Sprintf("❗ Failed to send entry [%s] due to an error: %v", entry.Link, err)
		if noticeErr := channel.SendText(notice); noticeErr != nil {
			log.Printf("[ERROR] error posting the failure notice to channel %s: %v", feed.ChannelID, noticeErr)
		}

		return errors.Wrapf(err, "error sending entry %s", entry.Link)
	}

	log.Printf("[INFO] sent entry %s to channel %s", entry.Link, feed.ChannelID)
	metrics.EntriesSent.Inc()
	return nil
}
