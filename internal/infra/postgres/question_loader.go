package postgres

import (
	"context"
	"fmt"

	"converseiq-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader reads the active catalog from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadActiveQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
SELECT id, field_key, display_text, "order", input_type, help_text, is_active
FROM questions
WHERE is_active
ORDER BY "order" ASC`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q         domain.Question
			inputType string
		)
		if err := rows.Scan(&q.ID, &q.FieldKey, &q.DisplayText, &q.Order, &inputType, &q.HelpText, &q.IsActive); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.InputType = domain.InputType(inputType)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}
