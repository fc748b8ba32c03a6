package campaign

import (
	"context"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/pkg/logger"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
}

// Event is one auditable state change.
type Event struct {
	UserID     int64
	Action     string
	Resource   string
	ResourceID int64
	Details    map[string]string
}

// Emitter records events to the audit log off the request path. Emit never
// blocks the caller; when the buffer is full the event is dropped and counted
// in the log.
type Emitter struct {
	repo   AuditRepository
	events chan Event
	done   chan struct{}
}

func NewEmitter(repo AuditRepository, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	e := &Emitter{
		repo:   repo,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) Emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		logger.Warn("audit buffer full, dropping event", "action", ev.Action, "resource_id", ev.ResourceID)
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := e.repo.Create(ctx, &model.AuditLog{
			UserID:     ev.UserID,
			Action:     ev.Action,
			Resource:   ev.Resource,
			ResourceID: ev.ResourceID,
			Details:    ev.Details,
		})
		cancel()
		if err != nil {
			logger.Error("failed to write audit log", "action", ev.Action, "error", err)
		}
	}
}

// Close drains buffered events and stops the writer.
func (e *Emitter) Close() {
	close(e.events)
	<-e.done
}
