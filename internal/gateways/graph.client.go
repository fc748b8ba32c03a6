package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

var ErrNoProviderMessageID = errors.New("provider response carried no message id")

// StatusError is a non-2xx Graph API response. 5xx and 429 are retryable;
// everything else in the 4xx range is a permanent rejection of this request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph api returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == fasthttp.StatusTooManyRequests
}

// IsRetryable reports whether a send error is worth another attempt.
// Transport errors are retryable; permanent API rejections are not.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return err != nil
}

type ClientMetrics struct {
	TotalRequests  atomic.Int64
	SuccessfulReqs atomic.Int64
	FailedReqs     atomic.Int64
	TotalLatencyMs atomic.Int64
	LastLatencyMs  atomic.Int64
}

func (m *ClientMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.LastLatencyMs.Store(latencyMs)
}

func (m *ClientMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
}

func (m *ClientMetrics) AvgLatencyMs() int64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / total
}

func (m *ClientMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

type Config struct {
	// BaseURL points at the Graph API host, or at channelsim in development.
	BaseURL         string
	Version         string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

// Client sends WhatsApp Cloud API and Messenger Platform requests.
type Client struct {
	config  *Config
	client  *fasthttp.Client
	metrics *ClientMetrics
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if config.Version == "" {
		config.Version = "v19.0"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	httpClient := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
	}

	logger.Info("Graph client initialized", "base_url", config.BaseURL, "version", config.Version)

	return &Client{
		config:  config,
		client:  httpClient,
		metrics: &ClientMetrics{},
	}, nil
}

// SendResult is the provider-side identity of an accepted message.
type SendResult struct {
	ProviderMessageID string
}

type waTemplateRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Template         *waTemplate `json:"template,omitempty"`
	Text             *waText     `json:"text,omitempty"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waText struct {
	Body string `json:"body"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendTemplate delivers an approved template through the WhatsApp Cloud API.
func (c *Client) SendTemplate(ctx context.Context, number *model.WhatsAppNumber, tpl *model.WhatsAppTemplate, to string, params []string) (*SendResult, error) {
	body := waTemplateRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &waTemplate{
			Name:     tpl.Name,
			Language: waLanguage{Code: tpl.Language},
		},
	}

	if len(params) > 0 {
		component := waComponent{Type: "body"}
		for _, p := range params {
			component.Parameters = append(component.Parameters, waParameter{Type: "text", Text: p})
		}
		body.Template.Components = []waComponent{component}
	}

	return c.sendWhatsApp(ctx, number, body)
}

// SendText delivers a free-form text via the WhatsApp Cloud API. Callers are
// responsible for the 24-hour session window; the provider rejects sends
// outside it anyway.
func (c *Client) SendText(ctx context.Context, number *model.WhatsAppNumber, to, text string) (*SendResult, error) {
	body := waTemplateRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &waText{Body: text},
	}
	return c.sendWhatsApp(ctx, number, body)
}

func (c *Client) sendWhatsApp(ctx context.Context, number *model.WhatsAppNumber, body waTemplateRequest) (*SendResult, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	path := fmt.Sprintf("/%s/%s/messages", c.config.Version, number.PhoneNumberID)

	start := time.Now()
	response, err := c.doRequest(ctx, "POST", path, number.AccessToken, reqBody)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		c.metrics.RecordFailure()
		return nil, err
	}
	c.metrics.RecordSuccess(latency)

	var resp waSendResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return nil, ErrNoProviderMessageID
	}

	logger.Info("WhatsApp message accepted",
		"to", body.To, "type", body.Type, "provider_message_id", resp.Messages[0].ID, "latency_ms", latency)

	return &SendResult{ProviderMessageID: resp.Messages[0].ID}, nil
}

type messengerRequest struct {
	Recipient messengerRecipient `json:"recipient"`
	Message   messengerMessage   `json:"message"`
	Tag       string             `json:"messaging_type,omitempty"`
}

type messengerRecipient struct {
	ID string `json:"id"`
}

type messengerMessage struct {
	Text string `json:"text"`
}

type messengerResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// SendMessenger delivers a text to a page-scoped user id via the Messenger
// Platform Send API.
func (c *Client) SendMessenger(ctx context.Context, pageAccessToken, recipientID, text string) (*SendResult, error) {
	body := messengerRequest{
		Recipient: messengerRecipient{ID: recipientID},
		Message:   messengerMessage{Text: text},
		Tag:       "MESSAGE_TAG",
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	path := fmt.Sprintf("/%s/me/messages", c.config.Version)

	start := time.Now()
	response, err := c.doRequest(ctx, "POST", path, pageAccessToken, reqBody)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		c.metrics.RecordFailure()
		return nil, err
	}
	c.metrics.RecordSuccess(latency)

	var resp messengerResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.MessageID == "" {
		return nil, ErrNoProviderMessageID
	}

	logger.Info("Messenger message accepted",
		"recipient_id", recipientID, "provider_message_id", resp.MessageID, "latency_ms", latency)

	return &SendResult{ProviderMessageID: resp.MessageID}, nil
}

type graphCommentsResponse struct {
	Data []struct {
		From struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"from"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Engager is one person who commented on or messaged a page object.
type Engager struct {
	FacebookUserID string
	Name           string
}

// FetchEngagers pulls the commenters of a Facebook object. Pagination stops
// after a sane bound rather than walking arbitrarily deep histories.
func (c *Client) FetchEngagers(ctx context.Context, pageAccessToken, objectID string) ([]Engager, error) {
	path := fmt.Sprintf("/%s/%s/comments?fields=from&limit=100", c.config.Version, objectID)

	response, err := c.doRequest(ctx, "GET", path, pageAccessToken, nil)
	if err != nil {
		return nil, err
	}

	var resp graphCommentsResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	seen := make(map[string]bool, len(resp.Data))
	engagers := make([]Engager, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.From.ID == "" || seen[d.From.ID] {
			continue
		}
		seen[d.From.ID] = true
		engagers = append(engagers, Engager{FacebookUserID: d.From.ID, Name: d.From.Name})
	}
	return engagers, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusCreated {
		return nil, &StatusError{Code: statusCode, Body: string(resp.Body())}
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}

// Stats returns the client's request counters.
func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_requests":  c.metrics.TotalRequests.Load(),
		"successful":      c.metrics.SuccessfulReqs.Load(),
		"failed":          c.metrics.FailedReqs.Load(),
		"success_rate":    c.metrics.SuccessRate(),
		"avg_latency_ms":  c.metrics.AvgLatencyMs(),
		"last_latency_ms": c.metrics.LastLatencyMs.Load(),
	}
}
