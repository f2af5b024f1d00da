package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/cesilk/comfy-nodes/internal/db/models"
)

type IPromptRepository interface {
	Repository[models.Prompt]
	WithTx(tx *bun.Tx) IPromptRepository
	WithDB(db *bun.DB) IPromptRepository
	List(ctx context.Context, limit int) ([]models.Prompt, error)
	NextNumber(ctx context.Context) (int64, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, outputs json.RawMessage) error
	MarkFailed(ctx context.Context, id string, outputs json.RawMessage, message string) error
}

type PromptRepository struct {
	db bun.IDB
}

func NewPromptRepository(db *bun.DB) IPromptRepository {
	return &PromptRepository{db: db}
}

func (r *PromptRepository) Create(ctx context.Context, prompt *models.Prompt) (*models.Prompt, error) {
	if prompt == nil {
		return nil, fmt.Errorf("prompt model is nil")
	}

	if _, err := r.db.NewInsert().Model(prompt).Exec(ctx); err != nil {
		return nil, err
	}

	return prompt, nil
}

func (r *PromptRepository) GetByID(ctx context.Context, id string) (*models.Prompt, error) {
	var prompt models.Prompt
	if err := r.db.NewSelect().Model(&prompt).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}

	return &prompt, nil
}

func (r *PromptRepository) UpdateByID(ctx context.Context, id string, prompt *models.Prompt) (*models.Prompt, error) {
	if prompt == nil {
		return nil, fmt.Errorf("prompt model is nil")
	}

	prompt.UpdatedAt = time.Now()
	if _, err := r.db.NewUpdate().Model(prompt).ExcludeColumn("id", "created_at").Where("id = ?", id).Exec(ctx); err != nil {
		return nil, err
	}

	return prompt, nil
}

func (r *PromptRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model(&models.Prompt{}).Where("id = ?", id).Exec(ctx)
	return err
}

// List returns the most recent prompts first.
func (r *PromptRepository) List(ctx context.Context, limit int) ([]models.Prompt, error) {
	var prompts []models.Prompt
	q := r.db.NewSelect().Model(&prompts).Order("number DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return prompts, nil
}

func (r *PromptRepository) NextNumber(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	if err := r.db.NewSelect().Model((*models.Prompt)(nil)).ColumnExpr("MAX(number)").Scan(ctx, &last); err != nil {
		return 0, err
	}

	return last.Int64 + 1, nil
}

func (r *PromptRepository) MarkRunning(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.PromptStatusRunning, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q
	})
}

func (r *PromptRepository) MarkCompleted(ctx context.Context, id string, outputs json.RawMessage) error {
	return r.setStatus(ctx, id, models.PromptStatusCompleted, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("outputs = ?", string(outputs)).Set("completed_at = ?", time.Now())
	})
}

func (r *PromptRepository) MarkFailed(ctx context.Context, id string, outputs json.RawMessage, message string) error {
	return r.setStatus(ctx, id, models.PromptStatusFailed, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		if len(outputs) > 0 {
			q = q.Set("outputs = ?", string(outputs))
		}
		return q.Set("error = ?", message).Set("completed_at = ?", time.Now())
	})
}

func (r *PromptRepository) setStatus(ctx context.Context, id string, status models.PromptStatus, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := r.db.NewUpdate().
		Model((*models.Prompt)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id)

	res, err := apply(q).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PromptRepository) WithTx(tx *bun.Tx) IPromptRepository {
	return &PromptRepository{db: tx}
}

func (r *PromptRepository) WithDB(db *bun.DB) IPromptRepository {
	return &PromptRepository{db: db}
}
