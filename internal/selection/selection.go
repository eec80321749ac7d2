// Package selection tracks which rows of a container list are checked and
// derives the state of the bulk-action bar from it.
//
// A Model is the single owner of the selection set. Renderers never flip
// checkboxes themselves; they call Toggle, SetSelected or SelectAll and
// redraw from the Snapshot delivered to their subscription.
package selection

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Item is one selectable row.
type Item struct {
	ID       int64
	Label    string
	Selected bool
}

// Snapshot is the derived state pushed to subscribers after every recompute.
type Snapshot struct {
	Count       int
	BarVisible  bool
	AllSelected bool
}

// Rejected describes a raw row value that could not become an Item.
type Rejected struct {
	Value  string
	Reason string
}

// Model is the selection view-model. It is safe for concurrent use;
// subscribers are called without the lock held, in subscription order.
type Model struct {
	mu     sync.Mutex
	items  []Item
	index  map[int64]int
	subs   map[int]func(Snapshot)
	order  []int
	nextID int
	last   Snapshot
}

// New creates a model over items, in the given order, and runs the initial
// recompute so the bar state matches whatever was pre-selected. Items with
// a duplicate id are dropped; the first occurrence wins.
func New(items []Item) *Model {
	m := &Model{subs: make(map[int]func(Snapshot))}
	m.load(items)
	return m
}

// FromValues builds a model from raw row values such as checkbox value
// attributes. Values that do not parse as a positive integer, and repeated
// ids, are skipped and logged rather than carried as bogus ids.
func FromValues(values []string) (*Model, []Rejected) {
	items, rejected := ParseValues(values)
	return New(items), rejected
}

// ParseValues converts raw row values into unselected items.
func ParseValues(values []string) ([]Item, []Rejected) {
	items := make([]Item, 0, len(values))
	var rejected []Rejected
	seen := make(map[int64]bool, len(values))

	for _, raw := range values {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		switch {
		case err != nil:
			rejected = append(rejected, Rejected{Value: raw, Reason: "not an integer"})
		case id <= 0:
			rejected = append(rejected, Rejected{Value: raw, Reason: "not a positive id"})
		case seen[id]:
			rejected = append(rejected, Rejected{Value: raw, Reason: "duplicate id"})
		default:
			seen[id] = true
			items = append(items, Item{ID: id, Label: strconv.FormatInt(id, 10)})
			continue
		}
		slog.Warn("skipping malformed container id", "value", raw, "reason", rejected[len(rejected)-1].Reason)
	}
	return items, rejected
}

// Reset replaces every row, as a reload of the list would, and notifies
// subscribers.
func (m *Model) Reset(items []Item) {
	m.mu.Lock()
	m.load(items)
	snap, subs := m.last, m.subscribersLocked()
	m.mu.Unlock()

	notify(subs, snap)
}

func (m *Model) load(items []Item) {
	m.items = make([]Item, 0, len(items))
	m.index = make(map[int64]int, len(items))
	for _, it := range items {
		if _, dup := m.index[it.ID]; dup {
			slog.Warn("dropping duplicate row", "id", it.ID)
			continue
		}
		m.index[it.ID] = len(m.items)
		m.items = append(m.items, it)
	}
	m.last = m.recomputeLocked()
}

// Toggle flips one row and recomputes. Unknown ids are ignored and reported
// as false.
func (m *Model) Toggle(id int64) bool {
	m.mu.Lock()
	i, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.items[i].Selected = !m.items[i].Selected
	m.mu.Unlock()

	m.ItemToggled()
	return true
}

// SetSelected sets one row's flag and recomputes.
func (m *Model) SetSelected(id int64, selected bool) bool {
	m.mu.Lock()
	i, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.items[i].Selected = selected
	m.mu.Unlock()

	m.ItemToggled()
	return true
}

// ItemToggled recomputes the derived state from the current row flags and
// notifies subscribers. It is idempotent.
func (m *Model) ItemToggled() Snapshot {
	m.mu.Lock()
	m.last = m.recomputeLocked()
	snap, subs := m.last, m.subscribersLocked()
	m.mu.Unlock()

	notify(subs, snap)
	return snap
}

// SelectAll writes checked into every row, even rows that already match,
// then recomputes.
func (m *Model) SelectAll(checked bool) Snapshot {
	m.mu.Lock()
	for i := range m.items {
		m.items[i].Selected = checked
	}
	m.mu.Unlock()

	return m.ItemToggled()
}

// Count returns the number of selected rows.
func (m *Model) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Count
}

// BarVisible reports whether the bulk-action bar should be shown.
func (m *Model) BarVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.BarVisible
}

// AllSelected reports whether every row is selected. An empty list is never
// all-selected.
func (m *Model) AllSelected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.AllSelected
}

// Snapshot returns the last computed state.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// SelectedIDs returns the ids of selected rows in row order.
func (m *Model) SelectedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, m.last.Count)
	for _, it := range m.items {
		if it.Selected {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// IsSelected reports whether id is selected.
func (m *Model) IsSelected(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	return ok && m.items[i].Selected
}

// Items returns a copy of the rows.
func (m *Model) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.items))
	copy(out, m.items)
	return out
}

// Len returns the number of rows.
func (m *Model) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Subscribe registers fn for state changes and immediately calls it with
// the current snapshot. The returned function unsubscribes.
func (m *Model) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.order = append(m.order, id)
	snap := m.last
	m.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			for i, sid := range m.order {
				if sid == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (m *Model) recomputeLocked() Snapshot {
	count := 0
	for _, it := range m.items {
		if it.Selected {
			count++
		}
	}
	return Snapshot{
		Count:       count,
		BarVisible:  count > 0,
		AllSelected: count > 0 && count == len(m.items),
	}
}

func (m *Model) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(m.order))
	for _, id := range m.order {
		subs = append(subs, m.subs[id])
	}
	return subs
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
