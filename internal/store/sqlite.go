package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	container_number TEXT    NOT NULL UNIQUE,
	container_type   TEXT    NOT NULL,
	created_at       TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS container_statuses (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	container_id INTEGER NOT NULL REFERENCES containers(id) ON DELETE CASCADE,
	status       TEXT    NOT NULL,
	location     TEXT    NOT NULL,
	date         TEXT    NOT NULL,
	notes        TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_container_statuses_container
	ON container_statuses(container_id, id);
`

// latestStatusJoin selects each container with its newest status row, if any.
const latestStatusJoin = `
SELECT c.id, c.container_number, c.container_type, c.created_at,
       s.status, s.location, s.date, s.notes
FROM containers c
LEFT JOIN container_statuses s ON s.id = (
	SELECT MAX(id) FROM container_statuses WHERE container_id = c.id
)`

// SQLStore persists containers in a SQLite database.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// List returns every container ordered by id.
func (s *SQLStore) List(ctx context.Context) ([]Container, error) {
	rows, err := s.db.QueryContext(ctx, latestStatusJoin+` ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	defer rows.Close()

	result := []Container{}
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	return result, nil
}

// Get looks up a container by id.
func (s *SQLStore) Get(ctx context.Context, id int64) (Container, error) {
	row := s.db.QueryRowContext(ctx, latestStatusJoin+` WHERE c.id = ?`, id)
	c, err := scanContainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Container{}, ErrNotFound
	}
	return c, err
}

// FindByNumber looks up a container by its number, case-insensitively.
func (s *SQLStore) FindByNumber(ctx context.Context, number string) (Container, error) {
	nc, err := normalizeNew(NewContainer{Number: number, Type: "-"})
	if err != nil {
		return Container{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, latestStatusJoin+` WHERE c.container_number = ?`, nc.Number)
	c, err := scanContainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Container{}, ErrNotFound
	}
	return c, err
}

// Search returns up to limit containers whose number starts with prefix.
func (s *SQLStore) Search(ctx context.Context, prefix string, limit int) ([]Container, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		latestStatusJoin+` WHERE substr(c.container_number, 1, ?) = ? ORDER BY c.container_number LIMIT ?`,
		len(prefix), prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("searching containers: %w", err)
	}
	defer rows.Close()

	result := []Container{}
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching containers: %w", err)
	}
	return result, nil
}

// Create registers a new container and its optional initial status.
func (s *SQLStore) Create(ctx context.Context, nc NewContainer) (Container, error) {
	nc, err := normalizeNew(nc)
	if err != nil {
		return Container{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Container{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO containers (container_number, container_type, created_at) VALUES (?, ?, ?)`,
		nc.Number, nc.Type, formatTime(now))
	if err != nil {
		if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) {
			return Container{}, ErrDuplicateNumber
		}
		return Container{}, fmt.Errorf("inserting container: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Container{}, fmt.Errorf("reading container id: %w", err)
	}

	if nc.Initial != nil {
		if err := insertStatus(ctx, tx, id, *nc.Initial); err != nil {
			return Container{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Container{}, fmt.Errorf("committing container: %w", err)
	}

	c := Container{ID: id, Number: nc.Number, Type: nc.Type, CreatedAt: now}
	if nc.Initial != nil {
		st := *nc.Initial
		c.Status = &st
	}
	return c, nil
}

// AddStatus appends a status entry to a container's history.
func (s *SQLStore) AddStatus(ctx context.Context, id int64, st Status) error {
	st, err := normalizeStatus(st)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ok, err := exists(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := insertStatus(ctx, tx, id, st); err != nil {
		return err
	}
	return tx.Commit()
}

// AddStatusMany appends st to each id in order inside one transaction.
// Missing ids are recorded as failures and do not abort the batch.
func (s *SQLStore) AddStatusMany(ctx context.Context, ids []int64, st Status) (UpdateResult, error) {
	empty := UpdateResult{Updated: []int64{}, Failed: []Failure{}}
	st, err := normalizeStatus(st)
	if err != nil {
		return empty, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return empty, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res := UpdateResult{Updated: []int64{}, Failed: []Failure{}}
	for _, id := range ids {
		ok, err := exists(ctx, tx, id)
		if err != nil {
			return empty, err
		}
		if !ok {
			res.Failed = append(res.Failed, Failure{ID: id, Reason: ReasonNotFound})
			continue
		}
		if err := insertStatus(ctx, tx, id, st); err != nil {
			return empty, err
		}
		res.Updated = append(res.Updated, id)
	}

	if err := tx.Commit(); err != nil {
		return empty, fmt.Errorf("committing bulk status update: %w", err)
	}
	return res, nil
}

// Delete removes a container and its history.
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	deleted, err := deleteOne(ctx, tx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return tx.Commit()
}

// DeleteMany removes each id in order inside one transaction. Missing ids
// are recorded as failures and do not abort the batch.
func (s *SQLStore) DeleteMany(ctx context.Context, ids []int64) (DeleteResult, error) {
	res := DeleteResult{Deleted: []int64{}, Failed: []Failure{}}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		deleted, err := deleteOne(ctx, tx, id)
		if err != nil {
			return DeleteResult{Deleted: []int64{}, Failed: []Failure{}}, err
		}
		if deleted {
			res.Deleted = append(res.Deleted, id)
		} else {
			res.Failed = append(res.Failed, Failure{ID: id, Reason: ReasonNotFound})
		}
	}

	if err := tx.Commit(); err != nil {
		return DeleteResult{Deleted: []int64{}, Failed: []Failure{}}, fmt.Errorf("committing bulk delete: %w", err)
	}
	return res, nil
}

// Ping verifies the database answers queries.
func (s *SQLStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func deleteOne(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	// Statuses are removed explicitly so deletion does not depend on the
	// foreign_keys pragma being honoured.
	if _, err := tx.ExecContext(ctx, `DELETE FROM container_statuses WHERE container_id = ?`, id); err != nil {
		return false, fmt.Errorf("deleting statuses of %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting container %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting container %d: %w", id, err)
	}
	return n > 0, nil
}

func exists(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM containers WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking container %d: %w", id, err)
	}
	return n > 0, nil
}

func insertStatus(ctx context.Context, tx *sql.Tx, id int64, st Status) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO container_statuses (container_id, status, location, date, notes) VALUES (?, ?, ?, ?, ?)`,
		id, st.Status, st.Location, formatTime(st.Date), st.Notes)
	if err != nil {
		return fmt.Errorf("inserting status for %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContainer(r rowScanner) (Container, error) {
	var (
		c                             Container
		created                       string
		status, location, date, notes sql.NullString
	)
	if err := r.Scan(&c.ID, &c.Number, &c.Type, &created, &status, &location, &date, &notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Container{}, err
		}
		return Container{}, fmt.Errorf("scanning container: %w", err)
	}

	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return Container{}, err
	}
	if status.Valid {
		st := Status{Status: status.String, Location: location.String, Notes: notes.String}
		if st.Date, err = parseTime(date.String); err != nil {
			return Container{}, err
		}
		c.Status = &st
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}
