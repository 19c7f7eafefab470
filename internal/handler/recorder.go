package handler

import (
	"context"

	"github.com/matthewbaird/dirconsole/internal/event"
)

// defaultRecorder is the package-level event recorder, set during server
// startup via SetRecorder.
var defaultRecorder event.Recorder

// SetRecorder sets the package-level event recorder.
// Call this during server startup before handling requests.
func SetRecorder(r event.Recorder) {
	defaultRecorder = r
}

// recordEvent records a domain event if a recorder is configured.
// Failures are logged and never fail the request.
func recordEvent(ctx context.Context, evt event.DomainEvent) {
	if defaultRecorder == nil {
		return
	}
	if err := defaultRecorder.Record(ctx, evt); err != nil {
		logger.WithError(err).WithFields(map[string]any{
			"event_type":   evt.EventType,
			"directory_id": evt.DirectoryID,
		}).Warn("handler: event recording failed")
	}
}
