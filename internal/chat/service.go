package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/halcyonlabs/halcyon-device/internal/faults"
	"github.com/halcyonlabs/halcyon-device/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingSessionID  = errors.New("session identifier is required")
	errEmptyContent      = errors.New("message content is required")
	noOpLogger           = zap.NewNop()
)

// ErrSessionNotFound indicates an operation against a session id with no row.
var ErrSessionNotFound = errors.New("chat: session not found")

const (
	opServiceNew     = "chat.service.new"
	opCreateSession  = "chat.create_session"
	opGetSession     = "chat.get_session"
	opListSessions   = "chat.list_sessions"
	opDeleteSession  = "chat.delete_session"
	opAppendMessage  = "chat.append_message"
	opListMessages   = "chat.list_messages"
	opBulkSessions   = "chat.bulk_insert_sessions"
	opBulkMessages   = "chat.bulk_insert_messages"
	opClearAll       = "chat.clear_all"
	defaultSessionNm = "New conversation"
)

// ServiceConfig describes the dependencies of the chat service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service owns chat sessions and their messages.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the chat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, faults.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, faults.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateSession starts a new conversation.
func (s *Service) CreateSession(ctx context.Context, name string) (Session, error) {
	sessionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateSession, "id_generation_failed", err)
		return Session{}, faults.New(opCreateSession, "id_generation_failed", err)
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = defaultSessionNm
	}

	now := s.clock().UTC().Unix()
	session := Session{
		ID:               sessionID,
		Name:             trimmed,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		s.logError(opCreateSession, "insert_failed", err)
		return Session{}, faults.New(opCreateSession, "insert_failed", err)
	}
	return session, nil
}

// GetSession returns the session for the supplied id. Absence is reported via
// the boolean, not as an error.
func (s *Service) GetSession(ctx context.Context, sessionID string) (Session, bool, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		s.logError(opGetSession, "query_failed", err, zap.String("session_id", sessionID))
		return Session{}, false, faults.New(opGetSession, "query_failed", err)
	}
	return session, true, nil
}

// ListSessions returns every session ordered by last activity descending.
func (s *Service) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Order("updated_at_s DESC").
		Find(&sessions).Error
	if err != nil {
		s.logError(opListSessions, "query_failed", err)
		return nil, faults.New(opListSessions, "query_failed", err)
	}
	return sessions, nil
}

// DeleteSession removes the session and cascades to its messages. Both deletes
// run inside one transaction so no orphan messages survive a partial failure.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return faults.New(opDeleteSession, "missing_session_id", errMissingSessionID)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", sessionID).Delete(&Session{})
		if result.Error != nil {
			return faults.New(opDeleteSession, "session_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return faults.New(opDeleteSession, "session_not_found", ErrSessionNotFound)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&Message{}).Error; err != nil {
			return faults.New(opDeleteSession, "message_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrSessionNotFound) {
			s.logError(opDeleteSession, "transaction_failed", txErr, zap.String("session_id", sessionID))
		}
		return txErr
	}
	return nil
}

// AppendMessage inserts the message and bumps the parent session's
// last-activity stamp. The two writes are one transaction: a stored message
// whose session still reports stale activity is not an observable state.
func (s *Service) AppendMessage(ctx context.Context, input AppendInput) (Message, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return Message{}, faults.New(opAppendMessage, "missing_session_id", errMissingSessionID)
	}
	if strings.TrimSpace(input.Content) == "" {
		return Message{}, faults.New(opAppendMessage, "empty_content", errEmptyContent)
	}
	if _, err := ParseRole(string(input.Role)); err != nil {
		return Message{}, faults.New(opAppendMessage, "invalid_role", err)
	}

	messageID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAppendMessage, "id_generation_failed", err)
		return Message{}, faults.New(opAppendMessage, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	message := Message{
		ID:               messageID,
		SessionID:        input.SessionID,
		Role:             input.Role,
		Content:          input.Content,
		EmotionContext:   input.EmotionContext,
		WellnessContext:  input.WellnessContext,
		CreatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Session{}).
			Where("id = ?", input.SessionID).
			Update("updated_at_s", now)
		if result.Error != nil {
			return faults.New(opAppendMessage, "session_touch_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return faults.New(opAppendMessage, "session_not_found", ErrSessionNotFound)
		}
		if err := tx.Create(&message).Error; err != nil {
			return faults.New(opAppendMessage, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrSessionNotFound) {
			s.logError(opAppendMessage, "transaction_failed", txErr, zap.String("session_id", input.SessionID))
		}
		return Message{}, txErr
	}
	return message, nil
}

// ListMessages returns the messages of one session in chronological order.
func (s *Service) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at_s ASC").
		Find(&messages).Error
	if err != nil {
		s.logError(opListMessages, "query_failed", err, zap.String("session_id", sessionID))
		return nil, faults.New(opListMessages, "query_failed", err)
	}
	return messages, nil
}

// ListAllSessions returns every session ordered by last activity descending.
func (s *Service) ListAllSessions(ctx context.Context) ([]Session, error) {
	return s.ListSessions(ctx)
}

// ListAllMessages returns every message across sessions in insertion order.
func (s *Service) ListAllMessages(ctx context.Context) ([]Message, error) {
	var messages []Message
	err := s.db.WithContext(ctx).
		Order("created_at_s ASC").
		Find(&messages).Error
	if err != nil {
		s.logError(opListMessages, "query_failed", err)
		return nil, faults.New(opListMessages, "query_failed", err)
	}
	return messages, nil
}

// BulkInsertSessions writes session rows with insert-or-replace semantics.
func (s *Service) BulkInsertSessions(ctx context.Context, sessions []Session) error {
	if len(sessions) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&sessions).Error
	if err != nil {
		s.logError(opBulkSessions, "insert_failed", err, zap.Int("count", len(sessions)))
		return faults.New(opBulkSessions, "insert_failed", err)
	}
	return nil
}

// BulkInsertMessages writes message rows with insert-or-replace semantics.
func (s *Service) BulkInsertMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&messages).Error
	if err != nil {
		s.logError(opBulkMessages, "insert_failed", err, zap.Int("count", len(messages)))
		return faults.New(opBulkMessages, "insert_failed", err)
	}
	return nil
}

// ClearAll unconditionally deletes every session and message.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM chat_messages").Error; err != nil {
		s.logError(opClearAll, "message_delete_failed", err)
		return faults.New(opClearAll, "message_delete_failed", err)
	}
	if err := s.db.WithContext(ctx).Exec("DELETE FROM chat_sessions").Error; err != nil {
		s.logError(opClearAll, "session_delete_failed", err)
		return faults.New(opClearAll, "session_delete_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("chat service error", attrs...)
}
