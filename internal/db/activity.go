package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanamarket/tana/internal/models"
)

// ActivityStore appends audit records. Rows are never updated or deleted.
type ActivityStore struct {
	pool *pgxpool.Pool
}

func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

func (s *ActivityStore) Record(ctx context.Context, activity models.Activity) error {
	var detailsJSON []byte
	if activity.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(activity.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_log (actor_id, action, resource_kind, resource_id, details)
		VALUES ($1, $2, $3, $4, $5)
	`, activity.ActorID, activity.Action, activity.ResourceKind, activity.ResourceID, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}
