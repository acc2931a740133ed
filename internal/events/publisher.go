// Package events streams panel view updates to subscribers over server-sent events.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/veranemoloko/video-tracker/internal/domain"
)

// StreamPanels is the SSE stream id that carries PanelView updates.
const StreamPanels = "panels"

const eventPanel = "panel"

// Publisher fans panel views out to every connected SSE client.
type Publisher struct {
	server *sse.Server
	logger *slog.Logger
}

// NewPublisher creates a Publisher with the panels stream ready to accept subscribers.
// Past events are not replayed; new clients read current state from the panels endpoint.
func NewPublisher(logger *slog.Logger) *Publisher {
	server := sse.New()
	server.AutoReplay = false
	server.AutoStream = false
	server.CreateStream(StreamPanels)

	return &Publisher{
		server: server,
		logger: logger,
	}
}

// Publish sends view to all subscribers of the panels stream.
func (p *Publisher) Publish(view domain.PanelView) {
	data, err := json.Marshal(view)
	if err != nil {
		p.logger.Error("failed to encode panel view", "surface", view.Surface, "error", err)
		return
	}

	p.server.Publish(StreamPanels, &sse.Event{
		Event: []byte(eventPanel),
		Data:  data,
	})
}

// ServeHTTP serves the SSE endpoint. Clients select the stream with ?stream=panels.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.server.ServeHTTP(w, r)
}

// Close disconnects all subscribers and stops the stream.
func (p *Publisher) Close() {
	p.server.Close()
	p.logger.Info("event publisher closed")
}
