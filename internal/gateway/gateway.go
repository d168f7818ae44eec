package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/plan"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Send sends a message to a specific chat or channel
	Send(chatID string, text string) error
}

type target struct {
	name      string
	messenger Messenger
	chatID    string
}

// Broadcast delivers workflow notifications to every configured gateway.
// Delivery failures are logged as events and joined into the returned error.
type Broadcast struct {
	targets []target
	sink    observability.EventSink
}

func NewBroadcast(sink observability.EventSink) *Broadcast {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Broadcast{sink: sink}
}

func (b *Broadcast) Add(name string, m Messenger, chatID string) {
	b.targets = append(b.targets, target{name: name, messenger: m, chatID: chatID})
}

// Len reports how many gateways are configured.
func (b *Broadcast) Len() int {
	return len(b.targets)
}

func (b *Broadcast) Notify(text string) error {
	var errs []error
	for _, t := range b.targets {
		if err := t.messenger.Send(t.chatID, text); err != nil {
			b.sink.LogEvent(observability.EventNotificationFailure, map[string]any{
				"gateway": t.name,
				"error":   err.Error(),
			}, fmt.Sprintf("Failed to notify %s", t.name))
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}

// FormatOutcome renders an orchestrated run as a short plain-text report.
func FormatOutcome(request string, out *agent.Outcome) string {
	var sb strings.Builder
	if request != "" {
		fmt.Fprintf(&sb, "Request: %s\n", request)
	}
	if out == nil || out.Result == nil {
		sb.WriteString("No result.")
		return sb.String()
	}

	res := out.Result
	if res.Success {
		sb.WriteString("Workflow succeeded\n")
	} else {
		sb.WriteString("Workflow failed\n")
	}
	sb.WriteString(res.Summary)
	sb.WriteString("\n")

	counts := plan.Counts(res.Plan)
	fmt.Fprintf(&sb, "Steps: %d completed, %d failed, %d pending\n",
		counts[plan.StatusCompleted], counts[plan.StatusFailed], counts[plan.StatusPending])
	if out.Attempts > 0 {
		fmt.Fprintf(&sb, "Revisions: %d\n", out.Attempts)
	}
	for _, rev := range out.Revisions {
		fmt.Fprintf(&sb, "- %s\n", rev.Explanation)
	}
	if res.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", res.Error)
	}
	if out.TraceID != "" {
		fmt.Fprintf(&sb, "Trace: %s", out.TraceID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-3]) + "..."
}
