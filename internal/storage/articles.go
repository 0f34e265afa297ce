package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/news-quiz/internal/core/domain"
	apperrors "github.com/lueurxax/news-quiz/internal/core/errors"
)

const insertArticleSQL = `
INSERT INTO articles (url, title, text, language, image_url, status, acquisition_source,
	category, geography, content_quality_score, duplicate_check_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (url) DO NOTHING
RETURNING id`

const selectArticleSQL = `
SELECT id, url, title, text, language, image_url, status, acquisition_source,
	category, geography, content_quality_score, duplicate_check_hash,
	quiz, tags, failure_reason, created_at, processed_at
FROM articles
WHERE id = $1`

// CreateArticles inserts pending articles in one transaction and returns the
// IDs of the rows actually created. URLs that already exist are skipped.
func (db *DB) CreateArticles(ctx context.Context, articles []domain.Article) ([]int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin article transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ids := make([]int64, 0, len(articles))

	for _, a := range articles {
		status := a.Status
		if status == "" {
			status = domain.StatusPending
		}

		var id int64

		err := tx.QueryRow(ctx, insertArticleSQL,
			a.URL,
			SanitizeUTF8(a.Title),
			SanitizeUTF8(a.Text),
			a.Language,
			a.ImageURL,
			string(status),
			string(a.AcquisitionSource),
			a.Category,
			a.Geography,
			a.ContentQualityScore,
			a.DuplicateCheckHash,
		).Scan(&id)

		if errors.Is(err, pgx.ErrNoRows) {
			db.Logger.Debug().Str("url", a.URL).Msg("article url already stored")
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("insert article %s: %w", a.URL, err)
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit articles: %w", err)
	}

	return ids, nil
}

// URLExists reports whether an article with the URL is stored.
func (db *DB) URLExists(ctx context.Context, url string) (bool, error) {
	var exists bool

	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check article url: %w", err)
	}

	return exists, nil
}

// GetArticle loads an article by ID. It returns ErrNotFound for unknown IDs.
func (db *DB) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	var (
		a           domain.Article
		status      string
		source      string
		quiz        []byte
		processedAt *time.Time
	)

	err := db.Pool.QueryRow(ctx, selectArticleSQL, id).Scan(
		&a.ID, &a.URL, &a.Title, &a.Text, &a.Language, &a.ImageURL, &status, &source,
		&a.Category, &a.Geography, &a.ContentQualityScore, &a.DuplicateCheckHash,
		&quiz, &a.Tags, &a.FailureReason, &a.CreatedAt, &processedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Article{}, fmt.Errorf("article %d: %w", id, apperrors.ErrNotFound)
	}

	if err != nil {
		return domain.Article{}, fmt.Errorf("get article %d: %w", id, err)
	}

	a.Status = domain.ProcessingStatus(status)
	a.AcquisitionSource = domain.AcquisitionSource(source)

	if processedAt != nil {
		a.ProcessedAt = *processedAt
	}

	if len(quiz) > 0 {
		if err := json.Unmarshal(quiz, &a.Quiz); err != nil {
			return domain.Article{}, fmt.Errorf("decode quiz of article %d: %w", id, err)
		}
	}

	return a, nil
}

// UpdateText replaces the body of a pending article after a download.
func (db *DB) UpdateText(ctx context.Context, id int64, title, text string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE articles SET title = COALESCE(NULLIF($2, ''), title), text = $3 WHERE id = $1 AND status = 'pending'`,
		id, SanitizeUTF8(title), SanitizeUTF8(text))
	if err != nil {
		return fmt.Errorf("update article text: %w", err)
	}

	return nil
}

// MarkComplete stores the analysis result of a pending article. It returns
// ErrStatusConflict when the article is no longer pending.
func (db *DB) MarkComplete(ctx context.Context, id int64, result domain.AnalysisResult, quality float64) error {
	quiz, err := json.Marshal(result.Quiz)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}

	tags := result.Tags
	if tags == nil {
		tags = []string{}
	}

	tag, err := db.Pool.Exec(ctx, `
UPDATE articles
SET status = 'complete', quiz = $2, tags = $3, content_quality_score = $4,
	analysis_model = $5, processed_at = now()
WHERE id = $1 AND status = 'pending'`,
		id, quiz, tags, quality, result.Model)
	if err != nil {
		return fmt.Errorf("mark article complete: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, apperrors.ErrStatusConflict)
	}

	return nil
}

// MarkFailed moves a pending article to failed. It returns ErrStatusConflict
// when the article is no longer pending.
func (db *DB) MarkFailed(ctx context.Context, id int64, reason string, quality float64) error {
	if len(reason) > maxStoredFailureReason {
		reason = reason[:maxStoredFailureReason]
	}

	tag, err := db.Pool.Exec(ctx, `
UPDATE articles
SET status = 'failed', failure_reason = $2, content_quality_score = $3, processed_at = now()
WHERE id = $1 AND status = 'pending'`,
		id, SanitizeUTF8(reason), quality)
	if err != nil {
		return fmt.Errorf("mark article failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, apperrors.ErrStatusConflict)
	}

	return nil
}

// ListStalePending returns IDs of pending articles created before cutoff,
// oldest first.
func (db *DB) ListStalePending(ctx context.Context, cutoff time.Time, limit uint64) ([]int64, error) {
	query, args, err := stalePendingQuery(cutoff, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale pending query: %w", err)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale pending articles: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan stale pending articles: %w", err)
	}

	return ids, nil
}

func stalePendingQuery(cutoff time.Time, limit uint64) sq.SelectBuilder {
	q := psql.Select(colID).
		From(tableArticles).
		Where(sq.Eq{colStatus: string(domain.StatusPending)}).
		Where(sq.Lt{colCreatedAt: cutoff}).
		OrderBy(colCreatedAt + " ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	return q
}
