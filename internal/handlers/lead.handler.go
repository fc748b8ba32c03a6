package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/leadflow/campaign-gateway/internal/model"
	xhttp "github.com/leadflow/campaign-gateway/pkg/http"
)

type LeadService interface {
	Create(ctx context.Context, p model.LeadCreateRequest) (*model.Lead, error)
	Get(ctx context.Context, userID, id int64) (*model.Lead, error)
	List(ctx context.Context, f model.LeadFilter) ([]*model.Lead, int64, error)
	UpdateConsent(ctx context.Context, userID, id int64, given bool, consentType model.ConsentType) (*model.Lead, error)
	ImportEngagement(ctx context.Context, userID int64, pageID, objectID string, source model.LeadSource) (string, error)
}

type LeadHandler struct {
	svc LeadService
}

func RegisterLeadRoutes(e *router.Group, h *LeadHandler) {
	e.POST("/leads", h.CreateLead)
	e.GET("/leads", h.ListLeads)
	e.GET("/leads/{id}", h.GetLead)
	e.PUT("/leads/{id}/consent", h.UpdateConsent)
	e.POST("/leads/import/engagement", h.ImportEngagement)
}

func NewLeadHandler(leadService LeadService) *LeadHandler {
	return &LeadHandler{
		svc: leadService,
	}
}

type createLeadRequest struct {
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Email          string            `json:"email"`
	PhoneNumber    string            `json:"phone_number"`
	FacebookUserID string            `json:"facebook_user_id"`
	Source         model.LeadSource  `json:"source"`
	Status         model.LeadStatus  `json:"status"`
	ConsentGiven   bool              `json:"consent_given"`
	ConsentType    model.ConsentType `json:"consent_type"`
	TagIDs         []int64           `json:"tag_ids"`
}

type updateConsentRequest struct {
	ConsentGiven bool              `json:"consent_given"`
	ConsentType  model.ConsentType `json:"consent_type"`
}

type importEngagementRequest struct {
	PageID   string           `json:"page_id"`
	ObjectID string           `json:"object_id"`
	Source   model.LeadSource `json:"source"`
}

type leadListResponse struct {
	Items []*model.Lead `json:"items"`
	Total int64         `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *LeadHandler) CreateLead(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	if uid == 0 {
		writeError(ctx, 401, "missing "+userIDHeader+" header")
		return
	}
	var req createLeadRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	lead, err := h.svc.Create(ctx, model.LeadCreateRequest{
		UserID:         uid,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		FacebookUserID: req.FacebookUserID,
		Source:         req.Source,
		Status:         req.Status,
		ConsentGiven:   req.ConsentGiven,
		ConsentType:    req.ConsentType,
		TagIDs:         req.TagIDs,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, lead)
}

func (h *LeadHandler) GetLead(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid lead id")
		return
	}
	lead, err := h.svc.Get(ctx, uid, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, lead)
}

func (h *LeadHandler) ListLeads(ctx *xhttp.RequestCtx) {
	f := model.LeadFilter{
		UserID: userID(ctx),
		Search: query(ctx, "search"),
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}
	if v := query(ctx, "status"); v != "" {
		status := model.LeadStatus(v)
		f.Status = &status
	}
	if v := query(ctx, "source"); v != "" {
		source := model.LeadSource(v)
		f.Source = &source
	}
	if query(ctx, "consented") == "true" {
		f.ConsentOnly = true
	}
	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, leadListResponse{Items: items, Total: total})
}

func (h *LeadHandler) UpdateConsent(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid lead id")
		return
	}
	var req updateConsentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	lead, err := h.svc.UpdateConsent(ctx, uid, id, req.ConsentGiven, req.ConsentType)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, lead)
}

func (h *LeadHandler) ImportEngagement(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	if uid == 0 {
		writeError(ctx, 401, "missing "+userIDHeader+" header")
		return
	}
	var req importEngagementRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	jobID, err := h.svc.ImportEngagement(ctx, uid, req.PageID, req.ObjectID, req.Source)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, map[string]string{"job_id": jobID})
}
