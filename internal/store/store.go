// Package store persists shipping containers and their status history.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SpanFreight/tracking/internal/config"
)

var (
	// ErrNotFound is returned when a container id does not exist.
	ErrNotFound = errors.New("container not found")
	// ErrDuplicateNumber is returned when a container number is already taken.
	ErrDuplicateNumber = errors.New("container number already exists")
	// ErrInvalid is returned for input that fails validation.
	ErrInvalid = errors.New("invalid container data")
)

// Known container statuses.
const (
	StatusLoaded     = "loaded"
	StatusDischarged = "discharged"
	StatusEmptied    = "emptied"
	StatusInYard     = "in_yard"
)

// ReasonNotFound is the failure reason recorded for ids that do not exist.
const ReasonNotFound = "not found"

// Status is one entry in a container's status history.
type Status struct {
	Status   string    `json:"status"`
	Location string    `json:"location"`
	Date     time.Time `json:"date"`
	Notes    string    `json:"notes,omitempty"`
}

// Container is a tracked shipping container. Status holds the most recent
// history entry, or nil when none was recorded.
type Container struct {
	ID        int64     `json:"id"`
	Number    string    `json:"container_number"`
	Type      string    `json:"container_type"`
	CreatedAt time.Time `json:"created_at"`
	Status    *Status   `json:"status,omitempty"`
}

// NewContainer is the input to Store.Create.
type NewContainer struct {
	Number string
	Type   string
	// Initial is an optional first status entry.
	Initial *Status
}

// Failure records why a single id of a batch could not be processed.
type Failure struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// DeleteResult is the per-id outcome of DeleteMany.
type DeleteResult struct {
	Deleted []int64   `json:"deleted"`
	Failed  []Failure `json:"failed"`
}

// UpdateResult is the per-id outcome of AddStatusMany.
type UpdateResult struct {
	Updated []int64   `json:"updated"`
	Failed  []Failure `json:"failed"`
}

// Store is the container persistence layer.
type Store interface {
	// List returns every container ordered by id.
	List(ctx context.Context) ([]Container, error)
	Get(ctx context.Context, id int64) (Container, error)
	FindByNumber(ctx context.Context, number string) (Container, error)
	// Search returns up to limit containers whose number starts with
	// prefix, case-insensitively, ordered by number.
	Search(ctx context.Context, prefix string, limit int) ([]Container, error)
	Create(ctx context.Context, nc NewContainer) (Container, error)
	AddStatus(ctx context.Context, id int64, st Status) error
	// AddStatusMany appends the same entry to each id. Like DeleteMany it
	// applies the whole batch or nothing, and missing ids are failures.
	AddStatusMany(ctx context.Context, ids []int64, st Status) (UpdateResult, error)
	Delete(ctx context.Context, id int64) error
	// DeleteMany deletes each id independently, in the given order. Ids
	// that do not exist are reported in DeleteResult.Failed; the returned
	// error is reserved for failures of the store itself, and when it is
	// non-nil nothing was deleted.
	DeleteMany(ctx context.Context, ids []int64) (DeleteResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// ValidStatus reports whether s is a known status value.
func ValidStatus(s string) bool {
	switch s {
	case StatusLoaded, StatusDischarged, StatusEmptied, StatusInYard:
		return true
	}
	return false
}

func normalizeNew(nc NewContainer) (NewContainer, error) {
	nc.Number = strings.ToUpper(strings.TrimSpace(nc.Number))
	nc.Type = strings.TrimSpace(nc.Type)
	if nc.Number == "" {
		return nc, fmt.Errorf("%w: container number is required", ErrInvalid)
	}
	if len(nc.Number) > 20 {
		return nc, fmt.Errorf("%w: container number longer than 20 characters", ErrInvalid)
	}
	if nc.Type == "" {
		return nc, fmt.Errorf("%w: container type is required", ErrInvalid)
	}
	if nc.Initial != nil {
		st, err := normalizeStatus(*nc.Initial)
		if err != nil {
			return nc, err
		}
		nc.Initial = &st
	}
	return nc, nil
}

func normalizeStatus(st Status) (Status, error) {
	st.Status = strings.ToLower(strings.TrimSpace(st.Status))
	st.Location = strings.TrimSpace(st.Location)
	if !ValidStatus(st.Status) {
		return st, fmt.Errorf("%w: unknown status %q", ErrInvalid, st.Status)
	}
	if st.Location == "" {
		return st, fmt.Errorf("%w: status location is required", ErrInvalid)
	}
	if st.Date.IsZero() {
		st.Date = time.Now().UTC()
	}
	return st, nil
}
