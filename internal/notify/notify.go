// Package notify pushes state and message changes to connected viewers.
// Delivery is fire-and-forget, at most once, and never awaited: callers
// persist first, then publish, so an observer can never see a change the
// store has not committed.
package notify

import "go.uber.org/zap"

type Publisher interface {
	Publish(room, event string, payload any)
}

const (
	EventStateChange   = "change:state"
	EventMessageChange = "change:message"
)

// WorkspaceRoom names the notification room for one workspace.
func WorkspaceRoom(workspaceID string) string {
	return "workspace-" + workspaceID
}

// LogPublisher records publications in the service log. It stands in for
// the real-time channel in deployments without one and keeps the
// persist-then-publish ordering observable.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(room, event string, payload any) {
	p.log.Debug("notification published",
		zap.String("room", room),
		zap.String("event", event),
		zap.Any("payload", payload))
}

type NopPublisher struct{}

func (NopPublisher) Publish(room, event string, payload any) {}
