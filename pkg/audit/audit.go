package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Agent types recorded alongside the capability names used by /agents/chat.
const (
	AgentA2A = "a2a"
	AgentMCP = "mcp"
)

type Entry struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	AgentType string    `gorm:"column:agent_type;not null;index" json:"agent_type"`
	Message   string    `gorm:"column:message;not null;default:''" json:"message"`
	Response  string    `gorm:"column:response;not null;default:''" json:"response"`
	Metadata  string    `gorm:"column:metadata;not null;default:''" json:"metadata,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_conversations_created" json:"created_at"`
}

func (Entry) TableName() string {
	return "agent_conversations"
}

type Logger struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) (*Logger, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: running migrations: %w", err)
	}

	return &Logger{db: db, now: time.Now}, nil
}

// Log records one agent exchange. metadata may be a string (stored as-is),
// nil, or any JSON-marshalable value.
func (l *Logger) Log(ctx context.Context, agentType, message, response string, metadata any) error {
	var meta string
	switch v := metadata.(type) {
	case nil:
	case string:
		meta = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			meta = fmt.Sprintf("%v", v)
		} else {
			meta = string(b)
		}
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		AgentType: agentType,
		Message:   message,
		Response:  response,
		Metadata:  meta,
		CreatedAt: l.now().UTC(),
	}

	return l.db.WithContext(ctx).Create(entry).Error
}

func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := l.db.WithContext(ctx)

	if f.AgentType != "" {
		q = q.Where("agent_type = ?", f.AgentType)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at <= ?", f.Until.UTC())
	}

	q = q.Order("created_at DESC")

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	entries := []Entry{}
	err := q.Find(&entries).Error
	return entries, err
}

type Filter struct {
	AgentType string
	Since     time.Time
	Until     time.Time
	Limit     int
}
