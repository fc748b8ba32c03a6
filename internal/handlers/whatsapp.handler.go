package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/services"
	xhttp "github.com/leadflow/campaign-gateway/pkg/http"
	"github.com/leadflow/campaign-gateway/pkg/logger"
)

type MessagingService interface {
	RegisterNumber(ctx context.Context, p model.WhatsAppNumberCreateRequest) (*model.WhatsAppNumber, error)
	ListNumbers(ctx context.Context, userID int64) ([]*model.WhatsAppNumber, error)
	SaveTemplate(ctx context.Context, userID int64, t *model.WhatsAppTemplate) (*model.WhatsAppTemplate, error)
	ListTemplates(ctx context.Context, userID, numberID int64) ([]*model.WhatsAppTemplate, error)
	SendTemplate(ctx context.Context, p services.SendTemplateRequest) (*model.Message, error)
	SendText(ctx context.Context, p services.SendTextRequest) (*model.Message, error)
}

// DeliveryReconciler absorbs provider callbacks: outbound status updates and
// inbound customer messages (which open the 24-hour session window).
type DeliveryReconciler interface {
	Reconcile(ctx context.Context, providerMessageID, status string, at time.Time) error
	RecordInboundContact(ctx context.Context, phone string, at time.Time) error
}

type WhatsAppHandler struct {
	svc         MessagingService
	reconciler  DeliveryReconciler
	verifyToken string
}

func RegisterWhatsAppRoutes(e *router.Group, h *WhatsAppHandler) {
	e.POST("/whatsapp/numbers", h.RegisterNumber)
	e.GET("/whatsapp/numbers", h.ListNumbers)
	e.POST("/whatsapp/numbers/{id}/templates", h.SaveTemplate)
	e.GET("/whatsapp/numbers/{id}/templates", h.ListTemplates)
	e.POST("/whatsapp/send/template", h.SendTemplate)
	e.POST("/whatsapp/send/text", h.SendText)
}

// RegisterWebhookRoutes attaches the provider callback endpoints. These live
// outside the API group: Meta calls them unauthenticated, verified by token
// and (in production) by request signature at the edge.
func RegisterWebhookRoutes(r *xhttp.Router, h *WhatsAppHandler) {
	r.GET("/webhooks/meta", h.VerifyWebhook)
	r.POST("/webhooks/meta", h.ReceiveWebhook)
}

func NewWhatsAppHandler(svc MessagingService, reconciler DeliveryReconciler, verifyToken string) *WhatsAppHandler {
	return &WhatsAppHandler{
		svc:         svc,
		reconciler:  reconciler,
		verifyToken: verifyToken,
	}
}

type registerNumberRequest struct {
	PhoneNumber       string `json:"phone_number"`
	PhoneNumberID     string `json:"phone_number_id"`
	DisplayName       string `json:"display_name"`
	BusinessAccountID string `json:"business_account_id"`
	AccessToken       string `json:"access_token"`
}

type saveTemplateRequest struct {
	Name       string               `json:"name"`
	Language   string               `json:"language"`
	Status     model.TemplateStatus `json:"status"`
	Category   string               `json:"category"`
	Components []string             `json:"components"`
}

type sendTemplateRequest struct {
	NumberID   int64    `json:"number_id"`
	TemplateID int64    `json:"template_id"`
	Recipient  string   `json:"recipient"`
	Parameters []string `json:"parameters"`
}

type sendTextRequest struct {
	NumberID  int64  `json:"number_id"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *WhatsAppHandler) RegisterNumber(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	if uid == 0 {
		writeError(ctx, 401, "missing "+userIDHeader+" header")
		return
	}
	var req registerNumberRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	number, err := h.svc.RegisterNumber(ctx, model.WhatsAppNumberCreateRequest{
		UserID:            uid,
		PhoneNumber:       req.PhoneNumber,
		PhoneNumberID:     req.PhoneNumberID,
		DisplayName:       req.DisplayName,
		BusinessAccountID: req.BusinessAccountID,
		AccessToken:       req.AccessToken,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, number)
}

func (h *WhatsAppHandler) ListNumbers(ctx *xhttp.RequestCtx) {
	numbers, err := h.svc.ListNumbers(ctx, userID(ctx))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, numbers)
}

func (h *WhatsAppHandler) SaveTemplate(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	numberID, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid number id")
		return
	}
	var req saveTemplateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	tmpl, err := h.svc.SaveTemplate(ctx, uid, &model.WhatsAppTemplate{
		WhatsAppNumberID: numberID,
		Name:             req.Name,
		Language:         req.Language,
		Status:           req.Status,
		Category:         req.Category,
		Components:       req.Components,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 201, tmpl)
}

func (h *WhatsAppHandler) ListTemplates(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	numberID, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid number id")
		return
	}
	templates, err := h.svc.ListTemplates(ctx, uid, numberID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, templates)
}

func (h *WhatsAppHandler) SendTemplate(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	if uid == 0 {
		writeError(ctx, 401, "missing "+userIDHeader+" header")
		return
	}
	var req sendTemplateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	msg, err := h.svc.SendTemplate(ctx, services.SendTemplateRequest{
		UserID:     uid,
		NumberID:   req.NumberID,
		TemplateID: req.TemplateID,
		Recipient:  req.Recipient,
		Parameters: req.Parameters,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, msg)
}

func (h *WhatsAppHandler) SendText(ctx *xhttp.RequestCtx) {
	uid := userID(ctx)
	if uid == 0 {
		writeError(ctx, 401, "missing "+userIDHeader+" header")
		return
	}
	var req sendTextRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	msg, err := h.svc.SendText(ctx, services.SendTextRequest{
		UserID:    uid,
		NumberID:  req.NumberID,
		Recipient: req.Recipient,
		Body:      req.Body,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, msg)
}

/* --------------------------------- Webhook ----------------------------------- */

// webhookEvent is the subset of Meta's webhook envelope we act on.
type webhookEvent struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					ID        string `json:"id"`
					Status    string `json:"status"`
					Timestamp string `json:"timestamp"`
				} `json:"statuses"`
				Messages []struct {
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// VerifyWebhook answers Meta's subscription handshake.
func (h *WhatsAppHandler) VerifyWebhook(ctx *xhttp.RequestCtx) {
	if query(ctx, "hub.mode") != "subscribe" || query(ctx, "hub.verify_token") != h.verifyToken {
		writeError(ctx, 403, "verification failed")
		return
	}
	ctx.Response.SetStatusCode(200)
	ctx.Response.SetBodyString(query(ctx, "hub.challenge"))
}

// ReceiveWebhook ingests delivery statuses and inbound messages. Always
// answers 200: the provider retries on anything else and the events are
// individually idempotent.
func (h *WhatsAppHandler) ReceiveWebhook(ctx *xhttp.RequestCtx) {
	var event webhookEvent
	if err := readJSON(ctx, &event); err != nil {
		logger.Warn("webhook: undecodable payload", "error", err)
		ctx.Response.SetStatusCode(200)
		return
	}
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				if err := h.reconciler.Reconcile(ctx, st.ID, st.Status, webhookTime(st.Timestamp)); err != nil {
					logger.Error("webhook: status reconcile failed", "provider_message_id", st.ID, "error", err)
				}
			}
			for _, msg := range change.Value.Messages {
				if err := h.reconciler.RecordInboundContact(ctx, msg.From, webhookTime(msg.Timestamp)); err != nil {
					logger.Error("webhook: inbound record failed", "from", msg.From, "error", err)
				}
			}
		}
	}
	ctx.Response.SetStatusCode(200)
}

// webhookTime parses Meta's unix-seconds string timestamps.
func webhookTime(s string) time.Time {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	return time.Now().UTC()
}
