package eventbus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/matthewbaird/dirconsole/internal/event"
)

// LogConsumer logs all domain events for observability.
type LogConsumer struct {
	log logrus.FieldLogger
}

func NewLogConsumer(log logrus.FieldLogger) *LogConsumer { return &LogConsumer{log: log} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.log.WithFields(logrus.Fields{
		"event_type":   evt.EventType,
		"event_id":     evt.ID,
		"directory_id": evt.DirectoryID,
		"records":      len(evt.RecordIDs),
	}).Info("event: " + evt.Summary)
	return nil
}
