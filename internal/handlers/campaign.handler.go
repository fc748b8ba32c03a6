package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/leadflow/campaign-gateway/internal/model"
	xhttp "github.com/leadflow/campaign-gateway/pkg/http"
)

type CampaignService interface {
	Create(ctx context.Context, p model.CampaignCreateRequest) (*model.Campaign, error)
	Get(ctx context.Context, userID, id int64) (*model.Campaign, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
	Update(ctx context.Context, userID, id int64, p model.CampaignUpdateRequest) (*model.Campaign, error)
	Preview(ctx context.Context, userID, id int64) (*model.CampaignPreview, error)
	Start(ctx context.Context, userID, id int64) (*model.Campaign, error)
	Pause(ctx context.Context, userID, id int64) (*model.Campaign, error)
	Resume(ctx context.Context, userID, id int64) (*model.Campaign, error)
	Cancel(ctx context.Context, userID, id int64) (*model.Campaign, error)
	Stats(ctx context.Context, userID, id int64) (*model.MessageStats, error)
}

type CampaignMessageLister interface {
	ListByCampaign(ctx context.Context, campaignID int64, limit, offset int) ([]*model.Message, int64, error)
}

type CampaignHandler struct {
	svc      CampaignService
	messages CampaignMessageLister
}

func RegisterCampaignRoutes(e *router.Group, h *CampaignHandler) {
	e.POST("/campaigns", h.CreateCampaign)
	e.GET("/campaigns", h.ListCampaigns)
	e.GET("/campaigns/{id}", h.GetCampaign)
	e.PUT("/campaigns/{id}", h.UpdateCampaign)
	e.GET("/campaigns/{id}/preview", h.PreviewCampaign)
	e.POST("/campaigns/{id}/start", h.StartCampaign)
	e.POST("/campaigns/{id}/pause", h.PauseCampaign)
	e.POST("/campaigns/{id}/resume", h.ResumeCampaign)
	e.POST("/campaigns/{id}/cancel", h.CancelCampaign)
	e.GET("/campaigns/{id}/stats", h.GetCampaignStats)
	e.GET("/campaigns/{id}/messages", h.ListCampaignMessages)
}

func NewCampaignHandler(campaignService CampaignService, messages CampaignMessageLister) *CampaignHandler {
	return &CampaignHandler{
		svc:      campaignService,
		messages: messages,
	}
}

type createCampaignRequest struct {
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	Type            model.CampaignType   `json:"type"`
	TargetAudience  model.AudienceFilter `json:"target_audience"`
	MessageTemplate string               `json:"message_template"`
	ScheduledAt     *time.Time           `json:"scheduled_at"`
}

type updateCampaignRequest struct {
	Name            *string               `json:"name"`
	Description     *string               `json:"description"`
	MessageTemplate *string               `json:"message_template"`
	TargetAudience  *model.AudienceFilter `json:"target_audience"`
	ScheduledAt     *time.Time            `json:"scheduled_at"`
	SetScheduledAt  bool                  `json:"set_scheduled_at"`
}

type campaignListResponse struct {
	Items []*model.Campaign `json:"items"`
	Total int64             `json:"total"`
}

type campaignMessagesResponse struct {
	Items []*model.Message `json:"items"`
	Total int64            `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *CampaignHandler) CreateCampaign(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	if uid == 0 {
		writeError(ctx, 401, "missing "+userIDHeader+" header")
		return
	}
	var req createCampaignRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	c, err := h.svc.Create(ctx, model.CampaignCreateRequest{
		UserID:          uid,
		Name:            req.Name,
		Description:     req.Description,
		Type:            req.Type,
		TargetAudience:  req.TargetAudience,
		MessageTemplate: req.MessageTemplate,
		ScheduledAt:     req.ScheduledAt,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, c)
}

func (h *CampaignHandler) GetCampaign(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	c, err := h.svc.Get(ctx, uid, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, c)
}

func (h *CampaignHandler) ListCampaigns(ctx *xhttp.RequestCtx) {
	f := model.CampaignFilter{
		UserID: userID(ctx),
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}
	if v := query(ctx, "status"); v != "" {
		status := model.CampaignStatus(v)
		f.Status = &status
	}
	if v := query(ctx, "type"); v != "" {
		ct := model.CampaignType(v)
		f.Type = &ct
	}
	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, campaignListResponse{Items: items, Total: total})
}

func (h *CampaignHandler) UpdateCampaign(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	var req updateCampaignRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	c, err := h.svc.Update(ctx, uid, id, model.CampaignUpdateRequest{
		Name:            req.Name,
		Description:     req.Description,
		MessageTemplate: req.MessageTemplate,
		TargetAudience:  req.TargetAudience,
		ScheduledAt:     req.ScheduledAt,
		SetScheduledAt:  req.SetScheduledAt || req.ScheduledAt != nil,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, c)
}

func (h *CampaignHandler) PreviewCampaign(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	preview, err := h.svc.Preview(ctx, uid, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, preview)
}

func (h *CampaignHandler) StartCampaign(ctx *xhttp.RequestCtx) {
	h.transition(ctx, h.svc.Start)
}

func (h *CampaignHandler) PauseCampaign(ctx *xhttp.RequestCtx) {
	h.transition(ctx, h.svc.Pause)
}

func (h *CampaignHandler) ResumeCampaign(ctx *xhttp.RequestCtx) {
	h.transition(ctx, h.svc.Resume)
}

func (h *CampaignHandler) CancelCampaign(ctx *xhttp.RequestCtx) {
	h.transition(ctx, h.svc.Cancel)
}

func (h *CampaignHandler) transition(ctx *xhttp.RequestCtx, fn func(context.Context, int64, int64) (*model.Campaign, error)) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	c, err := fn(ctx, uid, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, c)
}

func (h *CampaignHandler) GetCampaignStats(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	stats, err := h.svc.Stats(ctx, uid, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, stats)
}

func (h *CampaignHandler) ListCampaignMessages(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	// Ownership check goes through the service; ListByCampaign itself is not
	// user scoped.
	if _, err := h.svc.Get(ctx, uid, id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	items, total, err := h.messages.ListByCampaign(ctx, id, queryInt(ctx, "limit"), queryInt(ctx, "offset"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, campaignMessagesResponse{Items: items, Total: total})
}
