package helpers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LimiterInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aoordersync_limiter_in_flight",
		Help: "Remote calls currently executing per exchange",
	}, []string{"exchange"})

	LimiterRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aoordersync_limiter_retries_total",
		Help: "Remote calls retried after a failure",
	}, []string{"exchange"})

	QueueItemsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aoordersync_queue_items_processed_total",
		Help: "Filled order queue items fetched and recorded",
	})

	QueueItemFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aoordersync_queue_item_failures_total",
		Help: "Filled order queue items left unprocessed after a failed fetch",
	})

	PendingOrdersFilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aoordersync_pending_orders_filled_total",
		Help: "Pending orders observed as FILLED",
	})

	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aoordersync_hub_connections",
		Help: "Open duplex connections",
	})

	HubDroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aoordersync_hub_dropped_messages_total",
		Help: "Outbound messages dropped because a connection send buffer was full",
	})

	SchedulerTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aoordersync_scheduler_tick_errors_total",
		Help: "Scheduler tick bodies that returned an error or panicked",
	}, []string{"trigger"})
)
