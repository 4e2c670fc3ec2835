package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Results are kept as JSONB so
// history survives later edits or deletes of the lecture.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a response store over pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveResponse(ctx context.Context, r Response) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dbTimeout)
	defer cancel()

	answers, err := json.Marshal(r.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	submittedAt := r.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_responses (external_id, student_id, lecture_id, score, total, answers, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.StudentID, r.LectureID, r.Score, r.Total, answers, submittedAt,
	)
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, studentID string, limit int) ([]Response, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT external_id, student_id, lecture_id, score, total, answers, submitted_at
		 FROM quiz_responses
		 WHERE student_id = $1
		 ORDER BY submitted_at DESC, id DESC
		 LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	out := make([]Response, 0)
	for rows.Next() {
		var r Response
		var answers []byte
		if err := rows.Scan(&r.ID, &r.StudentID, &r.LectureID, &r.Score, &r.Total, &answers, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if len(answers) > 0 {
			if err := json.Unmarshal(answers, &r.Results); err != nil {
				return nil, fmt.Errorf("decode results: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}
