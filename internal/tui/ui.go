package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

type alertMsg struct{ text string }

type triggerMsg struct {
	label   string
	enabled bool
}

type reloadMsg struct{}

// uiQueue implements bulkdelete.UI. The orchestrator may call it from a
// command goroutine, so calls are queued and the model drains them on its
// own goroutine.
type uiQueue struct {
	mu     sync.Mutex
	events []tea.Msg
}

func (q *uiQueue) push(msg tea.Msg) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, msg)
}

func (q *uiQueue) drain() []tea.Msg {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

func (q *uiQueue) Alert(msg string) { q.push(alertMsg{text: msg}) }

// Confirm is never reached: the model asks in its own confirm mode and then
// calls PerformDelete directly.
func (q *uiQueue) Confirm(string) bool { return false }

func (q *uiQueue) SetTrigger(label string, enabled bool) {
	q.push(triggerMsg{label: label, enabled: enabled})
}

func (q *uiQueue) Reload() { q.push(reloadMsg{}) }
