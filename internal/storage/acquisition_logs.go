package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/lueurxax/news-quiz/internal/core/domain"
)

var acquisitionLogColumns = []string{
	"id", "layer", "acquired", "processed", "rejected", "api_calls", "elapsed_ms",
	"language_distribution", "topic_distribution", "created_at",
}

// AcquisitionLogFilter narrows ListAcquisitionLogs.
type AcquisitionLogFilter struct {
	Layer string
	Since time.Time
	Limit uint64
}

// SaveAcquisitionLogs appends cycle and layer records in a single statement.
func (db *DB) SaveAcquisitionLogs(ctx context.Context, logs []domain.AcquisitionLog) error {
	if len(logs) == 0 {
		return nil
	}

	builder, err := insertAcquisitionLogs(logs)
	if err != nil {
		return err
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build acquisition log insert: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert acquisition logs: %w", err)
	}

	return nil
}

func insertAcquisitionLogs(logs []domain.AcquisitionLog) (sq.InsertBuilder, error) {
	q := psql.Insert(tableAcquisitionLogs).Columns(acquisitionLogColumns...)

	for _, l := range logs {
		id, err := uuid.Parse(l.ID)
		if err != nil {
			id = uuid.New()
		}

		langs, err := json.Marshal(nonNilCounts(l.LanguageDistribution))
		if err != nil {
			return q, fmt.Errorf("encode language distribution: %w", err)
		}

		topics, err := json.Marshal(nonNilCounts(l.TopicDistribution))
		if err != nil {
			return q, fmt.Errorf("encode topic distribution: %w", err)
		}

		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		q = q.Values(id, l.Layer, l.Acquired, l.Processed, l.Rejected, l.APICalls,
			l.Elapsed.Milliseconds(), langs, topics, createdAt)
	}

	return q, nil
}

// ListAcquisitionLogs returns records newest first.
func (db *DB) ListAcquisitionLogs(ctx context.Context, f AcquisitionLogFilter) ([]domain.AcquisitionLog, error) {
	query, args, err := listAcquisitionLogsQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build acquisition log query: %w", err)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list acquisition logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AcquisitionLog

	for rows.Next() {
		var (
			l         domain.AcquisitionLog
			id        uuid.UUID
			elapsedMS int64
			langs     []byte
			topics    []byte
		)

		if err := rows.Scan(&id, &l.Layer, &l.Acquired, &l.Processed, &l.Rejected, &l.APICalls,
			&elapsedMS, &langs, &topics, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan acquisition log: %w", err)
		}

		l.ID = id.String()
		l.Elapsed = time.Duration(elapsedMS) * time.Millisecond

		if err := json.Unmarshal(langs, &l.LanguageDistribution); err != nil {
			return nil, fmt.Errorf("decode language distribution: %w", err)
		}

		if err := json.Unmarshal(topics, &l.TopicDistribution); err != nil {
			return nil, fmt.Errorf("decode topic distribution: %w", err)
		}

		out = append(out, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acquisition logs: %w", err)
	}

	return out, nil
}

func listAcquisitionLogsQuery(f AcquisitionLogFilter) sq.SelectBuilder {
	q := psql.Select(acquisitionLogColumns...).
		From(tableAcquisitionLogs).
		OrderBy(colCreatedAt + " DESC")

	if f.Layer != "" {
		q = q.Where(sq.Eq{colLayer: f.Layer})
	}

	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{colCreatedAt: f.Since})
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	return q
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}

	return m
}
