package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"converseiq-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID          string  `bun:"id,pk"`
	FieldKey    string  `bun:"field_key"`
	DisplayText string  `bun:"display_text"`
	Order       int     `bun:"order"`
	InputType   string  `bun:"input_type"`
	HelpText    *string `bun:"help_text"`
	IsActive    bool    `bun:"is_active"`
}

// SeedQuestions upserts the catalog keyed by field key. Existing rows keep their ids
// and are re-activated.
func SeedQuestions(ctx context.Context, db *bun.DB, questions []domain.Question) error {
	for _, q := range questions {
		if !q.InputType.Valid() {
			return fmt.Errorf("seed question %s: unknown input type %q", q.FieldKey, q.InputType)
		}
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, q := range questions {
			id := q.ID
			if id == "" {
				id = uuid.NewString()
			}
			row := questionRow{
				ID:          id,
				FieldKey:    q.FieldKey,
				DisplayText: q.DisplayText,
				Order:       q.Order,
				InputType:   string(q.InputType),
				HelpText:    q.HelpText,
				IsActive:    true,
			}
			_, err := tx.NewInsert().Model(&row).
				On("CONFLICT (field_key) DO UPDATE").
				Set("display_text = EXCLUDED.display_text").
				Set(`"order" = EXCLUDED."order"`).
				Set("input_type = EXCLUDED.input_type").
				Set("help_text = EXCLUDED.help_text").
				Set("is_active = TRUE").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("seed question %s: %w", q.FieldKey, err)
			}
		}
		return nil
	})
}
