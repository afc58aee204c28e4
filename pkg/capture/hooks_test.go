package capture

import (
	"testing"

	"github.com/provtools/provtrace/pkg/errors"
	"github.com/provtools/provtrace/pkg/provgraph"
)

type recordingHooks struct {
	labels    []string
	saves     []string
	finalized bool

	// onStatement, when set, runs inside the statement notification.
	onStatement func(span provgraph.Span, label string, err error)
}

func (h *recordingHooks) OnStatement(span provgraph.Span, label string, err error) {
	h.labels = append(h.labels, label)
	if h.onStatement != nil {
		h.onStatement(span, label, err)
	}
}

func (h *recordingHooks) OnSave(path string) { h.saves = append(h.saves, path) }

func (h *recordingHooks) OnFinalize(nodes, edges int) { h.finalized = true }

func TestHooksReceiveLifecycleEvents(t *testing.T) {
	h := &recordingHooks{}
	SetHooks(h)
	defer ResetHooks()

	s := newConsole(t)
	if err := s.RunStatement("a = 1"); err != nil {
		t.Fatalf("RunStatement: %v", err)
	}
	if err := s.Finalize(false); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if len(h.labels) != 1 {
		t.Errorf("statement notifications = %v, want one", h.labels)
	}
	if len(h.saves) != 1 || h.saves[0] != s.DocumentPath() {
		t.Errorf("save notifications = %v, want %q", h.saves, s.DocumentPath())
	}
	if !h.finalized {
		t.Error("finalize notification missing")
	}
}

func TestHookCannotRunStatements(t *testing.T) {
	h := &recordingHooks{}
	SetHooks(h)
	defer ResetHooks()

	s := newConsole(t)
	var nested error
	h.onStatement = func(provgraph.Span, string, error) {
		nested = s.RunStatement("b = 2")
	}
	if err := s.RunStatement("a = 1"); err != nil {
		t.Fatalf("RunStatement: %v", err)
	}
	if !errors.Is(nested, errors.ErrCodeSessionActive) {
		t.Errorf("nested RunStatement = %v, want SESSION_ACTIVE", nested)
	}

	// The guard lifts once the notification returns.
	h.onStatement = nil
	if err := s.RunStatement("c = 3"); err != nil {
		t.Errorf("RunStatement after notification: %v", err)
	}
	if n := findData(s.Graph(), "c", 1); n == nil {
		t.Error("statement after notification should still be captured")
	}
}
