package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SpanFreight/tracking/internal/config"
)

type storeFactory func(t *testing.T) Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "tracking.db"))
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func mustCreate(t *testing.T, s Store, number string) Container {
	t.Helper()
	c, err := s.Create(context.Background(), NewContainer{Number: number, Type: "40HC"})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", number, err)
	}
	return c
}

func TestCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created, err := s.Create(ctx, NewContainer{
			Number: " msku1234567 ",
			Type:   "20GP",
			Initial: &Status{
				Status:   "Loaded",
				Location: "Durban",
				Date:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			},
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created.Number != "MSKU1234567" {
			t.Errorf("expected normalized number, got %q", created.Number)
		}

		got, err := s.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Type != "20GP" {
			t.Errorf("expected type 20GP, got %s", got.Type)
		}
		if got.Status == nil || got.Status.Status != StatusLoaded || got.Status.Location != "Durban" {
			t.Errorf("unexpected current status %+v", got.Status)
		}
	})
}

func TestCreateDuplicateNumber(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		mustCreate(t, s, "ABCU0000001")
		_, err := s.Create(context.Background(), NewContainer{Number: "abcu0000001", Type: "20GP"})
		if !errors.Is(err, ErrDuplicateNumber) {
			t.Errorf("expected ErrDuplicateNumber, got %v", err)
		}
	})
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		nc   NewContainer
	}{
		{"missing number", NewContainer{Type: "20GP"}},
		{"missing type", NewContainer{Number: "ABCU1"}},
		{"number too long", NewContainer{Number: "ABCDEFGHIJKLMNOPQRSTUV", Type: "20GP"}},
		{"bad status", NewContainer{Number: "ABCU1", Type: "20GP", Initial: &Status{Status: "lost", Location: "x"}}},
		{"status without location", NewContainer{Number: "ABCU1", Type: "20GP", Initial: &Status{Status: "loaded"}}},
	}

	forEachStore(t, func(t *testing.T, s Store) {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := s.Create(context.Background(), tt.nc)
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("expected ErrInvalid, got %v", err)
				}
			})
		}
	})
}

func TestListOrderedByID(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		a := mustCreate(t, s, "AAAU1")
		b := mustCreate(t, s, "BBBU2")
		c := mustCreate(t, s, "CCCU3")

		list, err := s.List(context.Background())
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		var ids []int64
		for _, item := range list {
			ids = append(ids, item.ID)
		}
		want := []int64{a.ID, b.ID, c.ID}
		if !reflect.DeepEqual(ids, want) {
			t.Errorf("expected ids %v, got %v", want, ids)
		}
	})
}

func TestAddStatusUpdatesCurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := mustCreate(t, s, "MSCU7654321")

		if err := s.AddStatus(ctx, c.ID, Status{Status: StatusLoaded, Location: "Cape Town"}); err != nil {
			t.Fatalf("AddStatus failed: %v", err)
		}
		if err := s.AddStatus(ctx, c.ID, Status{Status: StatusDischarged, Location: "Walvis Bay"}); err != nil {
			t.Fatalf("AddStatus failed: %v", err)
		}

		got, err := s.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status == nil || got.Status.Status != StatusDischarged {
			t.Errorf("expected discharged as current status, got %+v", got.Status)
		}

		if err := s.AddStatus(ctx, 9999, Status{Status: StatusLoaded, Location: "x"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown container, got %v", err)
		}
	})
}

func TestFindByNumber(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		c := mustCreate(t, s, "TGHU1111111")

		got, err := s.FindByNumber(context.Background(), "tghu1111111")
		if err != nil {
			t.Fatalf("FindByNumber failed: %v", err)
		}
		if got.ID != c.ID {
			t.Errorf("expected id %d, got %d", c.ID, got.ID)
		}

		if _, err := s.FindByNumber(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := mustCreate(t, s, "DELU1")

		if err := s.Delete(ctx, c.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, c.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		// The number is free again
		mustCreate(t, s, "DELU1")
	})
}

func TestDeleteManyReportsPerID(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := mustCreate(t, s, "AAAU1")
		b := mustCreate(t, s, "BBBU2")
		keep := mustCreate(t, s, "KEEP3")
		if err := s.AddStatus(ctx, a.ID, Status{Status: StatusInYard, Location: "Depot"}); err != nil {
			t.Fatalf("AddStatus failed: %v", err)
		}

		res, err := s.DeleteMany(ctx, []int64{b.ID, 4242, a.ID})
		if err != nil {
			t.Fatalf("DeleteMany failed: %v", err)
		}

		if !reflect.DeepEqual(res.Deleted, []int64{b.ID, a.ID}) {
			t.Errorf("expected deleted %v, got %v", []int64{b.ID, a.ID}, res.Deleted)
		}
		wantFailed := []Failure{{ID: 4242, Reason: ReasonNotFound}}
		if !reflect.DeepEqual(res.Failed, wantFailed) {
			t.Errorf("expected failed %v, got %v", wantFailed, res.Failed)
		}

		list, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != keep.ID {
			t.Errorf("expected only %d to remain, got %+v", keep.ID, list)
		}
	})
}

func TestDeleteManyEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		res, err := s.DeleteMany(context.Background(), nil)
		if err != nil {
			t.Fatalf("DeleteMany failed: %v", err)
		}
		if len(res.Deleted) != 0 || len(res.Failed) != 0 {
			t.Errorf("expected empty result, got %+v", res)
		}
		if res.Deleted == nil || res.Failed == nil {
			t.Error("result slices should be non-nil so they encode as []")
		}
	})
}

func TestDeleteManyCancelledBeforeStart(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		a := mustCreate(t, s, "AAAU1")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := s.DeleteMany(ctx, []int64{a.ID})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(res.Deleted) != 0 {
			t.Errorf("expected nothing reported deleted, got %v", res.Deleted)
		}
		if _, err := s.Get(context.Background(), a.ID); err != nil {
			t.Errorf("container must survive a cancelled batch: %v", err)
		}
	})
}

// cancelAfterFirstCheck reports cancellation from its second Err call on.
type cancelAfterFirstCheck struct {
	context.Context
	calls atomic.Int32
}

func (c *cancelAfterFirstCheck) Err() error {
	if c.calls.Add(1) > 1 {
		return context.Canceled
	}
	return nil
}

func TestMemoryDeleteManyCompletesOnceStarted(t *testing.T) {
	s := NewMemoryStore()
	a := mustCreate(t, s, "AAAU1")
	b := mustCreate(t, s, "BBBU2")

	ctx := &cancelAfterFirstCheck{Context: context.Background()}
	res, err := s.DeleteMany(ctx, []int64{a.ID, b.ID})
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if !reflect.DeepEqual(res.Deleted, []int64{a.ID, b.ID}) {
		t.Errorf("expected both deleted, got %v", res.Deleted)
	}
	list, _ := s.List(context.Background())
	if len(list) != 0 {
		t.Errorf("expected empty store, got %+v", list)
	}
}

func TestAddStatusMany(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := mustCreate(t, s, "AAAU1")
		b := mustCreate(t, s, "BBBU2")
		untouched := mustCreate(t, s, "CCCU3")

		res, err := s.AddStatusMany(ctx, []int64{b.ID, 4242, a.ID}, Status{Status: "Discharged", Location: "Walvis Bay"})
		if err != nil {
			t.Fatalf("AddStatusMany failed: %v", err)
		}
		if !reflect.DeepEqual(res.Updated, []int64{b.ID, a.ID}) {
			t.Errorf("expected updated %v, got %v", []int64{b.ID, a.ID}, res.Updated)
		}
		wantFailed := []Failure{{ID: 4242, Reason: ReasonNotFound}}
		if !reflect.DeepEqual(res.Failed, wantFailed) {
			t.Errorf("expected failed %v, got %v", wantFailed, res.Failed)
		}

		for _, id := range []int64{a.ID, b.ID} {
			got, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Status == nil || got.Status.Status != StatusDischarged || got.Status.Location != "Walvis Bay" {
				t.Errorf("container %d: unexpected status %+v", id, got.Status)
			}
		}
		got, _ := s.Get(ctx, untouched.ID)
		if got.Status != nil {
			t.Errorf("container %d should have no status, got %+v", untouched.ID, got.Status)
		}
	})
}

func TestAddStatusManyInvalidStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		a := mustCreate(t, s, "AAAU1")

		res, err := s.AddStatusMany(context.Background(), []int64{a.ID}, Status{Status: "lost", Location: "x"})
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
		if len(res.Updated) != 0 {
			t.Errorf("expected nothing updated, got %v", res.Updated)
		}
		got, _ := s.Get(context.Background(), a.ID)
		if got.Status != nil {
			t.Errorf("expected no status, got %+v", got.Status)
		}
	})
}

func TestSearch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustCreate(t, s, "MSCU3")
		mustCreate(t, s, "MSCU1")
		mustCreate(t, s, "MSKU2")
		mustCreate(t, s, "TGHU1")

		tests := []struct {
			prefix string
			limit  int
			want   []string
		}{
			{"msc", 10, []string{"MSCU1", "MSCU3"}},
			{" MS ", 10, []string{"MSCU1", "MSCU3", "MSKU2"}},
			{"MS", 2, []string{"MSCU1", "MSCU3"}},
			{"%", 10, nil},
			{"ZZZ", 10, nil},
		}
		for _, tt := range tests {
			got, err := s.Search(ctx, tt.prefix, tt.limit)
			if err != nil {
				t.Fatalf("Search(%q) failed: %v", tt.prefix, err)
			}
			var numbers []string
			for _, c := range got {
				numbers = append(numbers, c.Number)
			}
			if !reflect.DeepEqual(numbers, tt.want) {
				t.Errorf("Search(%q, %d) = %v, want %v", tt.prefix, tt.limit, numbers, tt.want)
			}
		}
	})
}

func TestPing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	c := mustCreate(t, s, "PERU1")
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopening failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Number != "PERU1" {
		t.Errorf("expected PERU1, got %s", got.Number)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StorageConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}

	if _, err := Open(config.StorageConfig{Driver: "bolt"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
