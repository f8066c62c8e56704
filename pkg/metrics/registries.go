package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedherald_poll_cycles_total",
		Help: "The total number of completed polling cycles",
	})
	FeedsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedherald_feeds_added_total",
		Help: "The total number of feeds registered in the store",
	})
	FeedsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedherald_feeds_removed_total",
		Help: "The total number of feeds removed from the store",
	})
	EntriesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedherald_entries_sent_total",
		Help: "The total number of entries delivered to a channel",
	})
	EntriesMarkedRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedherald_entries_marked_read_total",
		Help: "The total number of entries marked as read after delivery",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedherald_cache_hits_total",
		Help: "The total number of parsed feed cache hits",
	})
	CacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedherald_cache_miss_total",
		Help: "The total number of parsed feed cache misses",
	})
	AppErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedherald_errors_total",
		Help: "Number of errors for the app.",
	}, []string{"type"})
	UpdateResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedherald_update_results",
		Help: "Feed update results",
	}, []string{"result"})
)
