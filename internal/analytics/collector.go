package analytics

import (
	"context"
	"log/slog"

	"github.com/texsearch/texsearch/pkg/kafka"
	"github.com/texsearch/texsearch/pkg/logger"
)

type Collector struct {
	producer *kafka.Producer
	eventCh  chan interface{}
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	c := &Collector{
		producer: producer,
		eventCh:  make(chan interface{}, bufferSize),
		logger:   logger.WithComponent("analytics-collector"),
		done:     make(chan struct{}),
	}

	return c
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				if err := c.producer.Publish(ctx, kafka.Event{
					Key:   "analytics",
					Value: event,
				}); err != nil {
					c.logger.Error("failed to publish analytics event", "error", err)

				}
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event interface{}) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

// drainRemaining flushes whatever is still buffered in eventCh as a single
// batch write rather than one Publish call per event, since shutdown is the
// one point where a burst of queued search/reconcile events is known to sit
// in memory all at once.
func (c *Collector) drainRemaining() {
	var pending []kafka.Event
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flush(pending)
				return
			}
			pending = append(pending, kafka.Event{Key: "analytics", Value: event})
		default:
			c.flush(pending)
			return
		}
	}
}

func (c *Collector) flush(pending []kafka.Event) {
	if len(pending) == 0 {
		return
	}
	if err := c.producer.PublishBatch(context.Background(), pending); err != nil {
		c.logger.Error("failed to publish remaining events", "count", len(pending), "error", err)
	}
}
