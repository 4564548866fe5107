package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/extraction"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ExtractRequest mirrors the pipeline's provider wire format.
type ExtractRequest struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// ExtractResponse carries the extracted fields back to the pipeline.
type ExtractResponse struct {
	Amount          float64 `json:"amount"`
	TransactionDate string  `json:"transaction_date"`
	Description     string  `json:"description"`
	ProviderID      string  `json:"provider_id"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status      string    `json:"status"`
	ProviderID  string    `json:"provider_id"`
	Timestamp   time.Time `json:"timestamp"`
	SuccessRate float64   `json:"success_rate"`
}

// MockExtractor simulates a hosted document extraction service. It answers
// with the same heuristics the pipeline uses locally, plus configurable
// latency and failures for exercising the gateway's retry and fallback paths.
type MockExtractor struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	providerID  string
	engine      extraction.Engine
	rng         *rand.Rand
}

func NewMockExtractor(successRate float64, minDelay, maxDelay time.Duration) *MockExtractor {
	return &MockExtractor{
		successRate: successRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		providerID:  "MOCK_EXTRACTOR_" + uuid.New().String()[:8],
		engine:      extraction.NewRegexEngine(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockExtractor) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	randomDelta := time.Duration(m.rng.Int63n(int64(delta)))
	return m.minDelay + randomDelta
}

func (m *MockExtractor) shouldSucceed() bool {
	return m.rng.Float64() < m.successRate
}

// Handler struct holds the mock extractor and routes
type Handler struct {
	extractor *MockExtractor
}

func NewHandler(extractor *MockExtractor) *Handler {
	return &Handler{extractor: extractor}
}

// Extract handles document extraction requests
func (h *Handler) Extract(c *gin.Context) {
	var req ExtractRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("filename", req.Filename).
		Int("content_bytes", len(req.Content)).
		Msg("Received extraction request")

	// Simulate processing delay
	delay := h.extractor.randomDelay()
	time.Sleep(delay)

	if !h.extractor.shouldSucceed() {
		log.Warn().
			Str("filename", req.Filename).
			Msg("Simulated extraction failure")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "extraction engine overloaded",
		})
		return
	}

	res := h.extractor.engine.Extract(c.Request.Context(), req.Content, req.Filename)

	log.Info().
		Str("filename", req.Filename).
		Float64("amount", res.Amount).
		Dur("delay", delay).
		Msg("Document extracted")

	c.JSON(http.StatusOK, ExtractResponse{
		Amount:          res.Amount,
		TransactionDate: res.TransactionDate.Format("2006-01-02"),
		Description:     res.Description,
		ProviderID:      h.extractor.providerID,
	})
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ProviderID:  h.extractor.providerID,
		Timestamp:   time.Now(),
		SuccessRate: h.extractor.successRate,
	})
}

// UpdateConfig allows changing extractor configuration at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		SuccessRate *float64 `json:"success_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.SuccessRate != nil {
		if *config.SuccessRate >= 0 && *config.SuccessRate <= 1.0 {
			h.extractor.successRate = *config.SuccessRate
			log.Info().Float64("rate", *config.SuccessRate).Msg("Updated success rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Configuration updated",
		"success_rate": h.extractor.successRate,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/extract", handler.Extract)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// Root health check
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	successRate := getEnvFloat("SUCCESS_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 500*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("success_rate", successRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock Document Extractor")

	extractor := NewMockExtractor(successRate, minDelay, maxDelay)
	handler := NewHandler(extractor)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
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
