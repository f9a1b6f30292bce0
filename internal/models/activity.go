package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity is one append-only audit record: who did what to which resource.
type Activity struct {
	ID           int64          `json:"id"`
	ActorID      uuid.UUID      `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceKind string         `json:"resource_kind"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
