package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-study/internal/content"
)

const dbTimeout = 5 * time.Second

// Schema creates the replication tables. Migrate runs it; it is safe to
// run more than once.
const Schema = `
CREATE TABLE IF NOT EXISTS study_topics (
	subject       TEXT        NOT NULL,
	name          TEXT        NOT NULL,
	material_type TEXT        NOT NULL,
	last_accessed TEXT        NOT NULL DEFAULT '',
	attempts      INTEGER     NOT NULL DEFAULT 0,
	payload       JSONB       NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (subject, name, material_type)
);

CREATE TABLE IF NOT EXISTS study_profile (
	id         SMALLINT    PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	total_xp   BIGINT      NOT NULL DEFAULT 0,
	streak     INTEGER     NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS study_xp_log (
	id         BIGSERIAL   PRIMARY KEY,
	amount     INTEGER     NOT NULL,
	reason     TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresSink writes replicated state to PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a sink over pool.
func NewPostgresSink(pool *pgxpool.Pool) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresSink{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate replication schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) UpsertTopic(ctx context.Context, t content.Topic) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal topic: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO study_topics (subject, name, material_type, last_accessed, attempts, payload, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (subject, name, material_type) DO UPDATE
		 SET last_accessed = EXCLUDED.last_accessed,
		     attempts = EXCLUDED.attempts,
		     payload = EXCLUDED.payload,
		     updated_at = now()`,
		t.ParentSubject,
		t.Name,
		string(t.MaterialType),
		t.LastAccessed,
		len(t.Attempts),
		payload,
	)
	if err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

func (s *PostgresSink) UpdateProfile(ctx context.Context, totalXP int64, streak int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO study_profile (id, total_xp, streak, updated_at)
		 VALUES (1, $1, $2, now())
		 ON CONFLICT (id) DO UPDATE
		 SET total_xp = EXCLUDED.total_xp,
		     streak = EXCLUDED.streak,
		     updated_at = now()`,
		totalXP,
		streak,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *PostgresSink) AppendXPLog(ctx context.Context, amount int, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO study_xp_log (amount, reason) VALUES ($1, $2)`,
		amount,
		reason,
	); err != nil {
		return fmt.Errorf("append xp log: %w", err)
	}
	return nil
}

// Topic reads back a replicated topic.
func (s *PostgresSink) Topic(ctx context.Context, subject, name string, mt content.MaterialType) (content.Topic, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM study_topics
		 WHERE subject = $1 AND name = $2 AND material_type = $3`,
		subject,
		name,
		string(mt),
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return content.Topic{}, false, nil
	}
	if err != nil {
		return content.Topic{}, false, fmt.Errorf("query topic: %w", err)
	}

	var t content.Topic
	if err := json.Unmarshal(payload, &t); err != nil {
		return content.Topic{}, false, fmt.Errorf("unmarshal topic: %w", err)
	}
	return t, true, nil
}

// Profile reads the replicated profile. A missing row is the zero profile.
func (s *PostgresSink) Profile(ctx context.Context) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p Profile
	err := s.pool.QueryRow(ctx, `SELECT total_xp, streak FROM study_profile WHERE id = 1`).Scan(&p.TotalXP, &p.Streak)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

// XPLog returns the most recent log entries, newest first.
func (s *PostgresSink) XPLog(ctx context.Context, limit int) ([]XPEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT amount, reason, created_at FROM study_xp_log ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query xp log: %w", err)
	}
	defer rows.Close()

	var out []XPEntry
	for rows.Next() {
		var e XPEntry
		if err := rows.Scan(&e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan xp log: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate xp log: %w", err)
	}
	return out, nil
}
