package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/cesilk/comfy-nodes/internal/db/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateTable().
			Model((*models.Prompt)(nil)).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}

		_, err := db.NewCreateIndex().
			Model((*models.Prompt)(nil)).
			Index("prompts_number_idx").
			IfNotExists().
			Column("number").
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*models.Prompt)(nil)).
			IfExists().
			Exec(ctx)
		return err
	})
}
