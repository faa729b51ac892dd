package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"carsensor-mirror/models"
)

type runRow struct {
	ID           string         `db:"id"`
	Kind         string         `db:"kind"`
	Status       string         `db:"status"`
	Found        int            `db:"found"`
	Added        int            `db:"added"`
	Updated      int            `db:"updated"`
	Unchanged    int            `db:"unchanged"`
	Errored      int            `db:"errored"`
	ErrorMessage sql.NullString `db:"error_message"`
	StartedAt    time.Time      `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
}

func (r *runRow) toModel() *models.ScrapingRun {
	run := &models.ScrapingRun{
		ID:     r.ID,
		Kind:   models.RunKind(r.Kind),
		Status: models.RunStatus(r.Status),
		RunCounts: models.RunCounts{
			Found:     r.Found,
			Added:     r.Added,
			Updated:   r.Updated,
			Unchanged: r.Unchanged,
			Errored:   r.Errored,
		},
		StartedAt: r.StartedAt,
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		run.ErrorMessage = &msg
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		run.CompletedAt = &t
	}
	return run
}

const selectRun = `SELECT id, kind, status, found, added, updated, unchanged, errored,
	error_message, started_at, completed_at FROM scraping_runs`

// CreateRun inserts a run in the running state.
func (s *SQLStore) CreateRun(ctx context.Context, run *models.ScrapingRun) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO scraping_runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`),
		run.ID, string(run.Kind), string(models.RunRunning), dbTime(run.StartedAt))
	return persistErr("create run", run.ID, err)
}

// CompleteRun finalizes a running entry with its counts.
func (s *SQLStore) CompleteRun(ctx context.Context, id string, counts models.RunCounts, errorPayload *string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE scraping_runs
		SET status = ?, found = ?, added = ?, updated = ?, unchanged = ?, errored = ?,
		    error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`),
		string(models.RunCompleted), counts.Found, counts.Added, counts.Updated, counts.Unchanged, counts.Errored,
		nullString(errorPayload), dbTime(at), id, string(models.RunRunning))
	if err != nil {
		return persistErr("complete run", id, err)
	}
	return s.requireTransition(res)
}

// FailRun finalizes a running entry with the failure message.
func (s *SQLStore) FailRun(ctx context.Context, id string, message string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE scraping_runs SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`),
		string(models.RunFailed), message, dbTime(at), id, string(models.RunRunning))
	if err != nil {
		return persistErr("fail run", id, err)
	}
	return s.requireTransition(res)
}

func (s *SQLStore) requireTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrRunFinalized
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (*models.ScrapingRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectRun+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get run", id, err)
	}
	return row.toModel(), nil
}

// RecentRuns lists the newest runs first.
func (s *SQLStore) RecentRuns(ctx context.Context, limit int) ([]*models.ScrapingRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(selectRun+` ORDER BY started_at DESC, id DESC LIMIT ?`), limit); err != nil {
		return nil, persistErr("recent runs", "", err)
	}
	out := make([]*models.ScrapingRun, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}
