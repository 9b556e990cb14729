package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Clark-Hu/movies-api/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities.
type MoviesRepository struct {
	db dbtx
}

const movieColumns = `id, title, genre, release_date`

// MovieCreateParams bundles the fields required to create a movie. The id is
// always assigned by the store.
type MovieCreateParams struct {
	Title       string
	Genre       string
	ReleaseDate *time.Time
}

// UpdateResult describes the outcome of a full-record replace.
type UpdateResult int

const (
	// UpdateFailed means the store rejected the write; the returned error
	// carries the cause.
	UpdateFailed UpdateResult = iota
	// UpdateApplied means the record was overwritten.
	UpdateApplied
	// UpdateNotFound means the write found no record and none exists.
	UpdateNotFound
	// UpdateConflict means the write collided with a concurrent change and
	// the record still exists.
	UpdateConflict
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateApplied:
		return "applied"
	case UpdateNotFound:
		return "not_found"
	case UpdateConflict:
		return "conflict"
	default:
		return "failed"
	}
}

// List returns every movie in id order.
func (r *MoviesRepository) List(ctx context.Context) ([]domain.Movie, error) {
	rows, err := r.db.Query(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetByID fetches a movie by its identifier.
func (r *MoviesRepository) GetByID(ctx context.Context, id int64) (domain.Movie, error) {
	row := r.db.QueryRow(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = $1`, id)
	movie, err := scanMovie(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Movie{}, ErrNotFound
		}
		return domain.Movie{}, err
	}
	return movie, nil
}

// Exists reports whether a movie with the given id is stored.
func (r *MoviesRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM movies WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// CreateBatch inserts all movies in a single transaction and returns them with
// their assigned ids, in input order. Either every row is stored or none is.
func (r *MoviesRepository) CreateBatch(ctx context.Context, params []MovieCreateParams) ([]domain.Movie, error) {
	if len(params) == 0 {
		return []domain.Movie{}, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `INSERT INTO movies (title, genre, release_date) VALUES ($1,$2,$3) RETURNING ` + movieColumns

	batch := &pgx.Batch{}
	for _, p := range params {
		batch.Queue(query, p.Title, p.Genre, p.ReleaseDate)
	}

	results := tx.SendBatch(ctx, batch)
	created := make([]domain.Movie, 0, len(params))
	for i := range params {
		movie, err := scanMovie(results.QueryRow())
		if err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("insert movie %d of batch: %w", i, err)
		}
		created = append(created, movie)
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit batch insert: %w", err)
	}
	return created, nil
}

// Replace overwrites every column of the stored record with movie. Existence
// is only checked after the write affected no row or hit a concurrency
// failure, to tell a vanished record apart from a genuine conflict.
func (r *MoviesRepository) Replace(ctx context.Context, movie domain.Movie) (UpdateResult, error) {
	const query = `UPDATE movies SET title = $2, genre = $3, release_date = $4 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, movie.ID, movie.Title, movie.Genre, movie.ReleaseDate)
	switch {
	case err == nil && tag.RowsAffected() > 0:
		return UpdateApplied, nil
	case err != nil && !isConcurrencyFailure(err):
		return UpdateFailed, fmt.Errorf("update movie %d: %w", movie.ID, err)
	}

	exists, existsErr := r.Exists(ctx, movie.ID)
	if existsErr != nil {
		return UpdateFailed, fmt.Errorf("check movie %d after conflict: %w", movie.ID, existsErr)
	}
	if !exists {
		return UpdateNotFound, ErrNotFound
	}
	if err != nil {
		return UpdateConflict, fmt.Errorf("update movie %d: %w: %w", movie.ID, ErrConflict, err)
	}
	return UpdateConflict, fmt.Errorf("update movie %d: %w", movie.ID, ErrConflict)
}

// Delete removes a movie by id.
func (r *MoviesRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete movie %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var movie domain.Movie
	if err := row.Scan(&movie.ID, &movie.Title, &movie.Genre, &movie.ReleaseDate); err != nil {
		return domain.Movie{}, err
	}
	return movie, nil
}

// isConcurrencyFailure matches serialization_failure and deadlock_detected.
func isConcurrencyFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
