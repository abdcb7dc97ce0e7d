package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Role enumerates the supported message authors.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ErrInvalidRole indicates a message role outside the supported set.
var ErrInvalidRole = errors.New("chat: invalid message role")

// ParseRole validates raw input and returns a Role.
func ParseRole(rawInput string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(rawInput))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleSystem:
		return RoleSystem, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, rawInput)
	}
}

// Session groups an ordered run of messages. UpdatedAtSeconds doubles as the
// denormalized last-activity stamp and is bumped on every appended message.
type Session struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Name             string `gorm:"column:name;size:320;not null" json:"name"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_chat_sessions_updated" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "chat_sessions"
}

// Message is one conversational turn. SessionID is a weak reference used for
// lookup and cascade delete only.
type Message struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	SessionID        string `gorm:"column:session_id;size:190;not null;index:idx_chat_messages_session" json:"session_id"`
	Role             Role   `gorm:"column:role;size:16;not null" json:"role"`
	Content          string `gorm:"column:content;type:text;not null" json:"content"`
	EmotionContext   string `gorm:"column:emotion_context;type:text" json:"emotion_context"`
	WellnessContext  string `gorm:"column:wellness_context;type:text" json:"wellness_context"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "chat_messages"
}

// AppendInput carries a message to be appended to a session.
type AppendInput struct {
	SessionID       string
	Role            Role
	Content         string
	EmotionContext  string
	WellnessContext string
}
