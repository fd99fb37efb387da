package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"shortlink/internal/model"
)

const (
	uniqueViolation = "23505"

	constraintOriginalURL = "short_links_original_url_key"
	constraintShortCode   = "short_links_short_code_key"

	selectColumns = `SELECT id, short_code, original_url, click_count, created_at FROM short_links`
)

// Repo is the PostgreSQL store. Uniqueness of original_url and short_code is
// enforced by the table constraints, not by Repo.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func scanLink(row interface{ Scan(...any) error }) (*model.ShortLink, error) {
	var m model.ShortLink
	if err := row.Scan(&m.ID, &m.ShortCode, &m.OriginalURL, &m.ClickCount, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repo) FindByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	m, err := scanLink(r.DB.QueryRowContext(ctx, selectColumns+` WHERE short_code = $1`, code))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find by code: %w", err)
	}
	return m, err
}

func (r *Repo) FindByURL(ctx context.Context, original string) (*model.ShortLink, error) {
	m, err := scanLink(r.DB.QueryRowContext(ctx, selectColumns+` WHERE original_url = $1`, original))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find by url: %w", err)
	}
	return m, err
}

// Insert creates a row for (original, code). A clash on either unique column
// is reported as ErrDuplicateURL or ErrDuplicateCode.
func (r *Repo) Insert(ctx context.Context, original, code string) (*model.ShortLink, error) {
	q := `INSERT INTO short_links (short_code, original_url) VALUES ($1, $2) RETURNING id, click_count, created_at`
	m := &model.ShortLink{ShortCode: code, OriginalURL: original}
	err := r.DB.QueryRowContext(ctx, q, code, original).Scan(&m.ID, &m.ClickCount, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case constraintOriginalURL:
				return nil, ErrDuplicateURL
			case constraintShortCode:
				return nil, ErrDuplicateCode
			}
		}
		return nil, fmt.Errorf("insert: %w", err)
	}
	return m, nil
}

// Update writes the mutable fields of m back. Concurrent updates of the same
// row are last-write-wins.
func (r *Repo) Update(ctx context.Context, m *model.ShortLink) (*model.ShortLink, error) {
	q := `UPDATE short_links SET click_count = $2 WHERE id = $1 RETURNING id, short_code, original_url, click_count, created_at`
	updated, err := scanLink(r.DB.QueryRowContext(ctx, q, m.ID, m.ClickCount))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update: %w", err)
	}
	return updated, err
}

// IncrementClickBy adds delta to the row's counter inside the database and
// returns the updated row.
func (r *Repo) IncrementClickBy(ctx context.Context, code string, delta int64) (*model.ShortLink, error) {
	q := `
		UPDATE short_links
		SET click_count = click_count + $2
		WHERE short_code = $1
		RETURNING id, short_code, original_url, click_count, created_at
	`
	updated, err := scanLink(r.DB.QueryRowContext(ctx, q, code, delta))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("increment clicks: %w", err)
	}
	return updated, err
}

func (r *Repo) Ping(ctx context.Context) error {
	var one int
	if err := r.DB.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return err
	}
	if one != 1 {
		return fmt.Errorf("unexpected ping result %d", one)
	}
	return nil
}
