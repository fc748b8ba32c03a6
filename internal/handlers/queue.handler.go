package handlers

import (
	"github.com/fasthttp/router"
	"github.com/leadflow/campaign-gateway/internal/queue"
	xhttp "github.com/leadflow/campaign-gateway/pkg/http"
)

type QueueHandler struct {
	queues []*queue.Queue
}

func RegisterQueueRoutes(e *router.Group, h *QueueHandler) {
	e.GET("/queues/stats", h.GetQueueStats)
}

func NewQueueHandler(queues ...*queue.Queue) *QueueHandler {
	return &QueueHandler{
		queues: queues,
	}
}

func (h *QueueHandler) GetQueueStats(ctx *xhttp.RequestCtx) {
	stats := make(map[string]*queue.Stats, len(h.queues))
	for _, q := range h.queues {
		s, err := q.GetStats()
		if err != nil {
			writeError(ctx, 503, "queue stats unavailable: "+err.Error())
			return
		}
		stats[q.Name()] = s
	}
	writeJSON(ctx, 200, stats)
}
