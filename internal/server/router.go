package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/backup"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/cloudsync"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
	"go.uber.org/zap"
)

const clientNameContextKey = "halcyon_client_name"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingPairingCode  = errors.New("pairing code dependency required")
	errMissingJournal      = errors.New("journal service dependency required")
	errMissingChat         = errors.New("chat service dependency required")
	errMissingCheckins     = errors.New("checkin service dependency required")
	errMissingAnalyses     = errors.New("analysis service dependency required")
	errMissingOrchestrator = errors.New("backup orchestrator dependency required")
	errMissingCloud        = errors.New("cloud adapter dependency required")
	errInvalidAuth         = errors.New("authorization header missing or invalid")
)

// PairingTokenManager issues and validates bearer tokens for paired clients.
type PairingTokenManager interface {
	IssuePairingToken(ctx context.Context, clientName string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires every service the HTTP surface exposes.
type Dependencies struct {
	TokenManager PairingTokenManager
	PairingCode  string
	Journal      *journal.Service
	Chat         *chat.Service
	Checkins     *checkin.Service
	Analyses     *analysis.Service
	Orchestrator *backup.Orchestrator
	Cloud        *cloudsync.Adapter
	Dispatcher   *DataEventDispatcher
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router serving the device vault API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if strings.TrimSpace(deps.PairingCode) == "" {
		return nil, errMissingPairingCode
	}
	if deps.Journal == nil {
		return nil, errMissingJournal
	}
	if deps.Chat == nil {
		return nil, errMissingChat
	}
	if deps.Checkins == nil {
		return nil, errMissingCheckins
	}
	if deps.Analyses == nil {
		return nil, errMissingAnalyses
	}
	if deps.Orchestrator == nil {
		return nil, errMissingOrchestrator
	}
	if deps.Cloud == nil {
		return nil, errMissingCloud
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDataEventDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		pairingCode:  deps.PairingCode,
		journal:      deps.Journal,
		chat:         deps.Chat,
		checkins:     deps.Checkins,
		analyses:     deps.Analyses,
		orchestrator: deps.Orchestrator,
		cloud:        deps.Cloud,
		dispatcher:   dispatcher,
		logger:       logger,
	}

	router.POST("/auth/pair", handler.handlePair)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/journal", handler.handleJournalList)
	protected.GET("/journal/:date", handler.handleJournalGet)
	protected.PUT("/journal/:date", handler.handleJournalUpsert)

	protected.GET("/chat/sessions", handler.handleSessionList)
	protected.POST("/chat/sessions", handler.handleSessionCreate)
	protected.DELETE("/chat/sessions/:id", handler.handleSessionDelete)
	protected.GET("/chat/sessions/:id/messages", handler.handleMessageList)
	protected.POST("/chat/sessions/:id/messages", handler.handleMessageAppend)

	protected.GET("/checkins", handler.handleCheckinList)
	protected.GET("/checkins/:date", handler.handleCheckinGet)
	protected.PUT("/checkins/:date", handler.handleCheckinUpsert)

	protected.POST("/analyses/emotion", handler.handleEmotionRecord)
	protected.GET("/analyses/emotion", handler.handleEmotionList)
	protected.POST("/analyses/skin", handler.handleSkinRecord)
	protected.GET("/analyses/skin", handler.handleSkinList)
	protected.GET("/cycle/:date", handler.handleMenstrualGet)
	protected.PUT("/cycle/:date", handler.handleMenstrualUpsert)

	protected.POST("/backup/export", handler.handleBackupExport)
	protected.POST("/backup/restore", handler.handleBackupRestore)
	protected.POST("/backup/clear", handler.handleBackupClear)

	protected.GET("/cloud/status", handler.handleCloudStatus)
	protected.POST("/cloud/configure", handler.handleCloudConfigure)
	protected.POST("/cloud/backup", handler.handleCloudBackup)
	protected.POST("/cloud/restore", handler.handleCloudRestore)

	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens       PairingTokenManager
	pairingCode  string
	journal      *journal.Service
	chat         *chat.Service
	checkins     *checkin.Service
	analyses     *analysis.Service
	orchestrator *backup.Orchestrator
	cloud        *cloudsync.Adapter
	dispatcher   *DataEventDispatcher
	logger       *zap.Logger
}

type pairRequestPayload struct {
	PairingCode string `json:"pairing_code"`
	ClientName  string `json:"client_name"`
}

type pairResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handlePair(c *gin.Context) {
	var request pairRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PairingCode) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(request.PairingCode), []byte(h.pairingCode)) != 1 {
		h.logger.Warn("pairing attempt with wrong code")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	clientName := strings.TrimSpace(request.ClientName)
	if clientName == "" {
		clientName = "companion"
	}

	token, expiresIn, err := h.tokens.IssuePairingToken(c.Request.Context(), clientName)
	if err != nil {
		h.logger.Error("failed to issue pairing token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, pairResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	clientName, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(clientNameContextKey, clientName)
	c.Next()
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	stream, cancel := h.dispatcher.Subscribe(c.Request.Context())
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-stream
		if !ok {
			return false
		}
		c.SSEvent("data-change", event)
		return true
	})
}
