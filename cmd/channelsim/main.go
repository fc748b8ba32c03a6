package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// channelsim fakes the Meta Graph API for local development: WhatsApp Cloud
// API sends, Messenger sends and comment listing. When CALLBACK_URL is set it
// also emits delivery-status webhooks after a simulated delay, so the whole
// send -> webhook -> reconcile loop can run without a Meta app.

type sendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
}

type messengerSendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Simulator holds the tunable failure behavior.
type Simulator struct {
	deliveryRate float64
	minDelay     time.Duration
	maxDelay     time.Duration
	callbackURL  string
	rng          *rand.Rand
}

func NewSimulator(deliveryRate float64, minDelay, maxDelay time.Duration, callbackURL string) *Simulator {
	return &Simulator{
		deliveryRate: deliveryRate,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		callbackURL:  callbackURL,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulator) shouldSucceed() bool {
	return s.rng.Float64() < s.deliveryRate
}

func (s *Simulator) randomDelay() time.Duration {
	if s.maxDelay <= s.minDelay {
		return s.minDelay
	}
	return s.minDelay + time.Duration(s.rng.Int63n(int64(s.maxDelay-s.minDelay)))
}

// emitStatus posts a Meta-shaped statuses webhook back to the gateway after
// the simulated network delay.
func (s *Simulator) emitStatus(wamid, status string) {
	if s.callbackURL == "" {
		return
	}
	delay := s.randomDelay()
	time.Sleep(delay)

	payload := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []map[string]any{{
			"changes": []map[string]any{{
				"field": "messages",
				"value": map[string]any{
					"statuses": []map[string]any{{
						"id":        wamid,
						"status":    status,
						"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
					}},
				},
			}},
		}},
	}
	body, _ := json.Marshal(payload)
	resp, err := http.Post(s.callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("wamid", wamid).Msg("status callback failed")
		return
	}
	resp.Body.Close()
	log.Info().Str("wamid", wamid).Str("status", status).Dur("delay", delay).Msg("status callback delivered")
}

type Handler struct {
	sim *Simulator
}

func NewHandler(sim *Simulator) *Handler {
	return &Handler{sim: sim}
}

// SendMessage covers both WhatsApp ({version}/{phone_number_id}/messages) and
// Messenger ({version}/me/messages); the route param distinguishes them.
func (h *Handler) SendMessage(c *gin.Context) {
	if c.Param("target") == "me" {
		h.sendMessenger(c)
		return
	}
	h.sendWhatsApp(c)
}

func (h *Handler) sendWhatsApp(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, graphErrorBody("invalid request body", 100))
		return
	}

	log.Info().
		Str("phone_number_id", c.Param("target")).
		Str("to", req.To).
		Str("type", req.Type).
		Msg("whatsapp send received")

	if !h.sim.shouldSucceed() {
		c.JSON(http.StatusInternalServerError, graphErrorBody("temporarily unable to deliver", 131016))
		return
	}

	wamid := "wamid." + uuid.NewString()
	go h.sim.emitStatus(wamid, "delivered")

	c.JSON(http.StatusOK, gin.H{
		"messaging_product": "whatsapp",
		"contacts": []gin.H{
			{"input": req.To, "wa_id": req.To},
		},
		"messages": []gin.H{
			{"id": wamid},
		},
	})
}

func (h *Handler) sendMessenger(c *gin.Context) {
	var req messengerSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, graphErrorBody("invalid request body", 100))
		return
	}

	log.Info().Str("recipient", req.Recipient.ID).Msg("messenger send received")

	if !h.sim.shouldSucceed() {
		c.JSON(http.StatusInternalServerError, graphErrorBody("temporarily unable to deliver", 1200))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recipient_id": req.Recipient.ID,
		"message_id":   "m_" + uuid.NewString(),
	})
}

// ListComments fabricates a commenter list for engagement imports. Object ids
// ending in "_empty" return no data, for exercising the empty path.
func (h *Handler) ListComments(c *gin.Context) {
	objectID := c.Param("object")

	count := 3 + h.sim.rng.Intn(5)
	if len(objectID) > 6 && objectID[len(objectID)-6:] == "_empty" {
		count = 0
	}

	data := make([]gin.H, 0, count)
	for i := 0; i < count; i++ {
		userID := strconv.FormatInt(100000000000+h.sim.rng.Int63n(900000000000), 10)
		data = append(data, gin.H{
			"id": objectID + "_" + strconv.Itoa(i),
			"from": gin.H{
				"id":   userID,
				"name": fmt.Sprintf("Test User %d", i+1),
			},
		})
	}

	log.Info().Str("object_id", objectID).Int("count", count).Msg("comments listed")
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"delivery_rate": h.sim.deliveryRate,
		"timestamp":     time.Now(),
	})
}

// UpdateConfig tunes failure behavior at runtime, handy for retry testing.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		DeliveryRate *float64 `json:"delivery_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	if config.DeliveryRate != nil && *config.DeliveryRate >= 0 && *config.DeliveryRate <= 1.0 {
		h.sim.deliveryRate = *config.DeliveryRate
		log.Info().Float64("rate", *config.DeliveryRate).Msg("updated delivery rate")
	}
	c.JSON(http.StatusOK, gin.H{"delivery_rate": h.sim.deliveryRate})
}

func graphErrorBody(msg string, code int) graphError {
	var e graphError
	e.Error.Message = msg
	e.Error.Type = "OAuthException"
	e.Error.Code = code
	return e
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.POST("/:version/:target/messages", handler.SendMessage)
	router.GET("/:version/:object/comments", handler.ListComments)
	router.GET("/health", handler.HealthCheck)
	router.PUT("/config", handler.UpdateConfig)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	deliveryRate := getEnvFloat("DELIVERY_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 200*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 2*time.Second)
	callbackURL := getEnv("CALLBACK_URL", "")

	log.Info().
		Str("port", port).
		Float64("delivery_rate", deliveryRate).
		Str("callback_url", callbackURL).
		Msg("starting graph api simulator")

	sim := NewSimulator(deliveryRate, minDelay, maxDelay, callbackURL)
	handler := NewHandler(sim)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
