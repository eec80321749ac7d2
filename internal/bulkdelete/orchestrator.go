// Package bulkdelete confirms and performs the deletion of every selected
// container in one request, then reconciles the trigger and view with the
// server's answer.
package bulkdelete

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/SpanFreight/tracking/internal/client"
	"github.com/SpanFreight/tracking/internal/selection"
)

// Labels and messages shown to the user.
const (
	TriggerLabel  = "Delete Selected"
	DeletingLabel = "Deleting..."

	NothingSelectedMessage = "Please select at least one container to delete."
	NothingDeletedMessage  = "No containers were deleted."
	ErrorMessage           = "An error occurred while deleting containers."
)

// Deleter sends a bulk delete request. *client.Client satisfies it.
type Deleter interface {
	BulkDelete(ctx context.Context, ids []int64) (client.BulkDeleteResult, error)
}

// UI is the rendering side the orchestrator drives.
type UI interface {
	// Alert shows a blocking message.
	Alert(msg string)
	// Confirm asks a yes/no question.
	Confirm(msg string) bool
	// SetTrigger updates the delete control.
	SetTrigger(label string, enabled bool)
	// Reload refreshes the whole list from the server, discarding selection.
	Reload()
}

// Outcome is the terminal state of one delete attempt.
type Outcome int

const (
	OutcomeNothingSelected Outcome = iota
	OutcomeCancelled
	OutcomeBusy
	OutcomeDeleted
	OutcomeNothingDeleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNothingSelected:
		return "nothing_selected"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeBusy:
		return "busy"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeNothingDeleted:
		return "nothing_deleted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Orchestrator runs the confirm-then-delete flow over a selection model.
type Orchestrator struct {
	sel      *selection.Model
	deleter  Deleter
	ui       UI
	inFlight atomic.Bool
}

// New creates an orchestrator.
func New(sel *selection.Model, d Deleter, ui UI) *Orchestrator {
	return &Orchestrator{sel: sel, deleter: d, ui: ui}
}

// InFlight reports whether a delete request is outstanding.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// CollectSelectedIDs returns the selected ids in row order.
func (o *Orchestrator) CollectSelectedIDs() []int64 {
	return o.sel.SelectedIDs()
}

// Prepare collects the selection and builds the confirmation prompt. With
// nothing selected it alerts the user and returns ok == false; the trigger
// is left alone.
func (o *Orchestrator) Prepare() (ids []int64, prompt string, ok bool) {
	ids = o.CollectSelectedIDs()
	if len(ids) == 0 {
		o.ui.Alert(NothingSelectedMessage)
		return nil, "", false
	}
	return ids, ConfirmMessage(len(ids)), true
}

// ConfirmAndDelete is the handler for the delete trigger.
func (o *Orchestrator) ConfirmAndDelete(ctx context.Context) Outcome {
	if o.inFlight.Load() {
		return OutcomeBusy
	}
	ids, prompt, ok := o.Prepare()
	if !ok {
		return OutcomeNothingSelected
	}
	if !o.ui.Confirm(prompt) {
		slog.Debug("bulk delete cancelled", "count", len(ids))
		return OutcomeCancelled
	}
	return o.PerformDelete(ctx, ids)
}

// PerformDelete disables the trigger, sends exactly one request for ids and
// reconciles the UI. Every path except a successful delete re-enables the
// trigger; a successful delete reloads the view instead. A second call while
// a request is outstanding returns OutcomeBusy without touching anything.
func (o *Orchestrator) PerformDelete(ctx context.Context, ids []int64) Outcome {
	if !o.inFlight.CompareAndSwap(false, true) {
		return OutcomeBusy
	}
	defer o.inFlight.Store(false)

	o.ui.SetTrigger(DeletingLabel, false)

	res, err := o.deleter.BulkDelete(ctx, ids)
	if err != nil {
		slog.Error("bulk delete failed", "count", len(ids), "error", err)
		o.ui.Alert(ErrorMessage)
		o.ui.SetTrigger(TriggerLabel, true)
		return OutcomeFailed
	}

	if res.SuccessCount > 0 {
		slog.Info("bulk delete finished", "submitted", len(ids), "deleted", res.SuccessCount, "failed", len(res.Failed))
		o.ui.Alert(SuccessMessage(res))
		o.ui.Reload()
		return OutcomeDeleted
	}

	slog.Warn("bulk delete removed nothing", "submitted", len(ids), "failed", len(res.Failed))
	o.ui.Alert(withFailures(NothingDeletedMessage, res.Failed))
	o.ui.SetTrigger(TriggerLabel, true)
	return OutcomeNothingDeleted
}

// ConfirmMessage is the prompt for deleting n containers.
func ConfirmMessage(n int) string {
	return fmt.Sprintf("Are you sure you want to delete %s? This action cannot be undone.", containers(n))
}

// SuccessMessage names the number of deleted containers and, when the server
// reported them, the ids it could not delete.
func SuccessMessage(res client.BulkDeleteResult) string {
	return withFailures(fmt.Sprintf("Successfully deleted %s.", containers(res.SuccessCount)), res.Failed)
}

func withFailures(msg string, failed []client.Failure) string {
	if len(failed) == 0 {
		return msg
	}
	parts := make([]string, len(failed))
	for i, f := range failed {
		parts[i] = strconv.FormatInt(f.ID, 10)
		if f.Reason != "" {
			parts[i] += " (" + f.Reason + ")"
		}
	}
	return fmt.Sprintf("%s Could not delete %s: %s.", msg, containers(len(failed)), strings.Join(parts, ", "))
}

func containers(n int) string {
	if n == 1 {
		return "1 container"
	}
	return strconv.Itoa(n) + " containers"
}
