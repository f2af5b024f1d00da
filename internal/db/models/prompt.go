package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PromptStatus string

const (
	PromptStatusQueued    PromptStatus = "IN_QUEUE"
	PromptStatusRunning   PromptStatus = "IN_PROGRESS"
	PromptStatusCompleted PromptStatus = "COMPLETED"
	PromptStatusFailed    PromptStatus = "FAILED"
)

// Prompt is one submitted prompt and, once it ran, its per node UI outputs.
type Prompt struct {
	bun.BaseModel `bun:"table:prompts"`

	ID           uuid.UUID       `bun:"id,pk,type:uuid"`
	Number       int64           `bun:"number,notnull"`
	ClientID     string          `bun:"client_id"`
	Status       PromptStatus    `bun:"status,notnull"`
	Prompt       json.RawMessage `bun:"prompt,type:jsonb,notnull"`
	ExtraPNGInfo json.RawMessage `bun:"extra_pnginfo,type:jsonb,nullzero"`
	Outputs      json.RawMessage `bun:"outputs,type:jsonb,nullzero"`
	Error        string          `bun:"error,nullzero"`
	Digest       string          `bun:"digest,nullzero"`
	CompletedAt  bun.NullTime    `bun:"completed_at,nullzero"`
	UpdatedAt    time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	CreatedAt    time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
