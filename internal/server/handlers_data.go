package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
	"go.uber.org/zap"
)

type journalUpsertPayload struct {
	Content    *string  `json:"content"`
	AIPrompt   *string  `json:"ai_prompt"`
	AIScore    *float64 `json:"ai_score"`
	AIAnalysis *string  `json:"ai_analysis"`
}

func (h *httpHandler) handleJournalList(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.journal.List(c.Request.Context(), journal.ListQuery{
		From:  c.Query("from"),
		To:    c.Query("to"),
		Limit: limit,
	})
	if err != nil {
		h.logger.Error("journal list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *httpHandler) handleJournalGet(c *gin.Context) {
	entryDate, err := journal.NewEntryDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	entry, found, err := h.journal.GetByDate(c.Request.Context(), entryDate)
	if err != nil {
		h.logger.Error("journal get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) handleJournalUpsert(c *gin.Context) {
	entryDate, err := journal.NewEntryDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	var payload journalUpsertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	entry, err := h.journal.Upsert(c.Request.Context(), journal.UpsertInput{
		EntryDate:  entryDate,
		Content:    payload.Content,
		AIPrompt:   payload.AIPrompt,
		AIScore:    payload.AIScore,
		AIAnalysis: payload.AIAnalysis,
	})
	if err != nil {
		h.logger.Error("journal upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed"})
		return
	}

	h.dispatcher.Publish(EventJournalEntries, entry.EntryDate)
	c.JSON(http.StatusOK, entry)
}

type sessionCreatePayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleSessionList(c *gin.Context) {
	sessions, err := h.chat.ListSessions(c.Request.Context())
	if err != nil {
		h.logger.Error("session list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *httpHandler) handleSessionCreate(c *gin.Context) {
	var payload sessionCreatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	session, err := h.chat.CreateSession(c.Request.Context(), payload.Name)
	if err != nil {
		h.logger.Error("session create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	h.dispatcher.Publish(EventChatSessions, session.ID)
	c.JSON(http.StatusCreated, session)
}

func (h *httpHandler) handleSessionDelete(c *gin.Context) {
	sessionID := c.Param("id")
	err := h.chat.DeleteSession(c.Request.Context(), sessionID)
	if errors.Is(err, chat.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("session delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	h.dispatcher.Publish(EventChatSessions, sessionID)
	c.Status(http.StatusNoContent)
}

type messageAppendPayload struct {
	Role            string `json:"role"`
	Content         string `json:"content"`
	EmotionContext  string `json:"emotion_context"`
	WellnessContext string `json:"wellness_context"`
}

func (h *httpHandler) handleMessageList(c *gin.Context) {
	messages, err := h.chat.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("message list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *httpHandler) handleMessageAppend(c *gin.Context) {
	var payload messageAppendPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	role, err := chat.ParseRole(payload.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_role"})
		return
	}

	message, err := h.chat.AppendMessage(c.Request.Context(), chat.AppendInput{
		SessionID:       c.Param("id"),
		Role:            role,
		Content:         payload.Content,
		EmotionContext:  payload.EmotionContext,
		WellnessContext: payload.WellnessContext,
	})
	if errors.Is(err, chat.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("message append failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append_failed"})
		return
	}

	h.dispatcher.Publish(EventChatMessages, message.SessionID)
	c.JSON(http.StatusCreated, message)
}

type checkinUpsertPayload struct {
	MoodScore    *int     `json:"mood_score"`
	EnergyLevel  *int     `json:"energy_level"`
	SleepHours   *float64 `json:"sleep_hours"`
	SleepQuality *int     `json:"sleep_quality"`
	Note         *string  `json:"note"`
}

func (h *httpHandler) handleCheckinList(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	rows, err := h.checkins.List(c.Request.Context(), checkin.ListQuery{
		From:  c.Query("from"),
		To:    c.Query("to"),
		Limit: limit,
	})
	if err != nil {
		h.logger.Error("checkin list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkins": rows})
}

func (h *httpHandler) handleCheckinGet(c *gin.Context) {
	row, found, err := h.checkins.GetByDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		h.logger.Error("checkin get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *httpHandler) handleCheckinUpsert(c *gin.Context) {
	var payload checkinUpsertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	row, err := h.checkins.Upsert(c.Request.Context(), checkin.UpsertInput{
		Date:         c.Param("date"),
		MoodScore:    payload.MoodScore,
		EnergyLevel:  payload.EnergyLevel,
		SleepHours:   payload.SleepHours,
		SleepQuality: payload.SleepQuality,
		Note:         payload.Note,
	})
	if errors.Is(err, checkin.ErrInvalidDate) || errors.Is(err, checkin.ErrOutOfRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input"})
		return
	}
	if err != nil {
		h.logger.Error("checkin upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed"})
		return
	}

	h.dispatcher.Publish(EventDailyCheckins, row.Date)
	c.JSON(http.StatusOK, row)
}

type emotionRecordPayload struct {
	Date            string  `json:"date"`
	Valence         float64 `json:"valence"`
	Arousal         float64 `json:"arousal"`
	DominantEmotion string  `json:"dominant_emotion"`
	Confidence      float64 `json:"confidence"`
	Notes           string  `json:"notes"`
	ImagePath       string  `json:"image_path"`
}

type skinRecordPayload struct {
	Date         string  `json:"date"`
	Hydration    float64 `json:"hydration"`
	Oiliness     float64 `json:"oiliness"`
	Texture      float64 `json:"texture"`
	Pigmentation float64 `json:"pigmentation"`
	OverallScore float64 `json:"overall_score"`
	Notes        string  `json:"notes"`
	ImagePath    string  `json:"image_path"`
}

type recordResponsePayload struct {
	Record    any    `json:"record"`
	Persisted bool   `json:"persisted"`
	Error     string `json:"error,omitempty"`
}

func (h *httpHandler) handleEmotionRecord(c *gin.Context) {
	var payload emotionRecordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	outcome, err := h.analyses.RecordEmotion(c.Request.Context(), analysis.EmotionInput{
		Date:            payload.Date,
		Valence:         payload.Valence,
		Arousal:         payload.Arousal,
		DominantEmotion: payload.DominantEmotion,
		Confidence:      payload.Confidence,
		Notes:           payload.Notes,
		ImagePath:       payload.ImagePath,
	})
	if errors.Is(err, analysis.ErrInvalidDate) || errors.Is(err, analysis.ErrScoreOutOfRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input"})
		return
	}
	if err != nil {
		h.logger.Error("emotion record failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record_failed"})
		return
	}

	response := recordResponsePayload{Record: outcome.Record, Persisted: outcome.Persisted}
	if outcome.PersistErr != nil {
		response.Error = outcome.PersistErr.Error()
	}
	if outcome.Persisted {
		h.dispatcher.Publish(EventAnalyses, outcome.Record.Date)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleEmotionList(c *gin.Context) {
	rows, err := h.analyses.ListEmotion(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.logger.Error("emotion list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": rows})
}

func (h *httpHandler) handleSkinRecord(c *gin.Context) {
	var payload skinRecordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	outcome, err := h.analyses.RecordSkin(c.Request.Context(), analysis.SkinInput{
		Date:         payload.Date,
		Hydration:    payload.Hydration,
		Oiliness:     payload.Oiliness,
		Texture:      payload.Texture,
		Pigmentation: payload.Pigmentation,
		OverallScore: payload.OverallScore,
		Notes:        payload.Notes,
		ImagePath:    payload.ImagePath,
	})
	if errors.Is(err, analysis.ErrInvalidDate) || errors.Is(err, analysis.ErrScoreOutOfRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input"})
		return
	}
	if err != nil {
		h.logger.Error("skin record failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record_failed"})
		return
	}

	response := recordResponsePayload{Record: outcome.Record, Persisted: outcome.Persisted}
	if outcome.PersistErr != nil {
		response.Error = outcome.PersistErr.Error()
	}
	if outcome.Persisted {
		h.dispatcher.Publish(EventAnalyses, outcome.Record.Date)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleSkinList(c *gin.Context) {
	rows, err := h.analyses.ListSkin(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.logger.Error("skin list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": rows})
}

type menstrualUpsertPayload struct {
	Note     *string  `json:"note"`
	Symptoms []string `json:"symptoms"`
}

func (h *httpHandler) handleMenstrualGet(c *gin.Context) {
	row, found, err := h.analyses.GetMenstrualNote(c.Request.Context(), c.Param("date"))
	if err != nil {
		h.logger.Error("menstrual get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *httpHandler) handleMenstrualUpsert(c *gin.Context) {
	var payload menstrualUpsertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	row, err := h.analyses.UpsertMenstrualNote(c.Request.Context(), analysis.MenstrualUpsertInput{
		Date:     c.Param("date"),
		Note:     payload.Note,
		Symptoms: payload.Symptoms,
	})
	if errors.Is(err, analysis.ErrInvalidDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	if err != nil {
		h.logger.Error("menstrual upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed"})
		return
	}

	h.dispatcher.Publish(EventAnalyses, row.Date)
	c.JSON(http.StatusOK, row)
}
