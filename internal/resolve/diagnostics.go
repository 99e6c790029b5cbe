package resolve

import (
	"fmt"
	"log/slog"
	"sort"
)

// Diagnostic reports a recoverable problem with one event. The event was
// excluded from resolution; a caller that fixes the cause (for example by
// fetching a missing event) can simply resolve again.
type Diagnostic struct {
	Code    ErrorCode `json:"code"`
	EventID string    `json:"event_id"`
	Message string    `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Code, d.EventID, d.Message)
}

type diagKey struct {
	code ErrorCode
	id   string
}

// diagnostics collects at most one Diagnostic per (code, event).
type diagnostics struct {
	logger *slog.Logger
	seen   map[diagKey]struct{}
	list   []Diagnostic
}

func newDiagnostics(logger *slog.Logger) *diagnostics {
	return &diagnostics{logger: logger, seen: map[diagKey]struct{}{}}
}

func (d *diagnostics) add(code ErrorCode, eventID, format string, args ...any) {
	k := diagKey{code, eventID}
	if _, ok := d.seen[k]; ok {
		return
	}
	d.seen[k] = struct{}{}
	diag := Diagnostic{Code: code, EventID: eventID, Message: fmt.Sprintf(format, args...)}
	d.list = append(d.list, diag)
	d.logger.Warn("state resolution diagnostic",
		"code", string(code),
		"event_id", eventID,
		"message", diag.Message,
	)
}

// sorted returns the diagnostics ordered by event id then code, so the
// report does not depend on traversal order.
func (d *diagnostics) sorted() []Diagnostic {
	out := append([]Diagnostic(nil), d.list...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].Code < out[j].Code
	})
	return out
}
