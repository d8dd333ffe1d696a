package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"checkrelay/src/contracts"
	"checkrelay/src/store"
)

// plainView renders the model with any styling escapes stripped.
func plainView(m Model) string {
	return ansi.Strip(m.View())
}

func seededStore(t *testing.T) store.Store {
	t.Helper()

	now := time.Now()
	st := store.NewMemoryStore()

	_, err := st.Replace(context.Background(), "travis-ci.com/42", []contracts.JobRecord{
		{JobID: 1, Name: "unit tests", State: "passed", StartedAt: now, FinishedAt: now,
			URL: "https://app.travis-ci.com/github/octo/widgets/jobs/1", CheckRunID: 77},
		{JobID: 2, Name: "lint", State: "started", StartedAt: now,
			URL: "https://app.travis-ci.com/github/octo/widgets/jobs/2"},
	})
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	_, err = st.Replace(context.Background(), "travis-ci.com/43", []contracts.JobRecord{
		{JobID: 3, Name: "integration", State: "created", StartedAt: now,
			URL: "https://app.travis-ci.com/github/octo/widgets/jobs/3"},
	})
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	return st
}

// loadedModel builds a model, performs one synchronous load, and sizes it.
func loadedModel(t *testing.T, st store.Store) Model {
	t.Helper()

	m := NewModel(st)

	msg := m.reload()()
	snaps, ok := msg.(snapshotsMsg)
	if !ok {
		t.Fatalf("expected snapshotsMsg, got %T", msg)
	}
	if snaps.err != nil {
		t.Fatalf("load failed: %v", snaps.err)
	}

	updated, _ := m.Update(snaps)
	m = updated.(Model)

	updated, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func TestDashboard_ListsBuilds(t *testing.T) {
	m := loadedModel(t, seededStore(t))
	view := plainView(m)

	if !strings.Contains(view, "travis-ci.com/42") {
		t.Errorf("expected view to list travis-ci.com/42, got:\n%s", view)
	}
	if !strings.Contains(view, "travis-ci.com/43") {
		t.Errorf("expected view to list travis-ci.com/43, got:\n%s", view)
	}
}

func TestDashboard_DetailShowsRunIDs(t *testing.T) {
	m := loadedModel(t, seededStore(t))
	view := plainView(m)

	// Snapshots list in key order, so build 42 is selected first.
	if !strings.Contains(view, "run #77") {
		t.Errorf("expected detail to show the adopted run id, got:\n%s", view)
	}
	if !strings.Contains(view, "unpublished") {
		t.Errorf("expected detail to mark the record without a run, got:\n%s", view)
	}
	if !strings.Contains(view, "in_progress") {
		t.Errorf("expected detail to show the derived status, got:\n%s", view)
	}
}

func TestDashboard_NavigationChangesSelection(t *testing.T) {
	m := loadedModel(t, seededStore(t))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)

	if m.list.Index() != 1 {
		t.Errorf("expected selection index 1 after down key, got %d", m.list.Index())
	}

	view := plainView(m)
	if !strings.Contains(view, "integration") {
		t.Errorf("expected detail for the second build, got:\n%s", view)
	}
}

func TestDashboard_ReloadPicksUpNewBuilds(t *testing.T) {
	st := seededStore(t)
	m := loadedModel(t, st)

	_, err := st.Replace(context.Background(), "travis-ci.com/99", []contracts.JobRecord{
		{JobID: 9, Name: "docs", State: "created", StartedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("failed to add build: %v", err)
	}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("expected reload command from r key")
	}

	updated, _ = m.Update(cmd())
	m = updated.(Model)

	if !strings.Contains(plainView(m), "travis-ci.com/99") {
		t.Errorf("expected reloaded view to list the new build, got:\n%s", plainView(m))
	}
}

func TestDashboard_QuitKeys(t *testing.T) {
	m := loadedModel(t, seededStore(t))

	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("expected quit command for %q", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("expected tea.QuitMsg for %q, got %T", key.String(), cmd())
		}
	}
}

func TestDashboard_EmptyStore(t *testing.T) {
	m := loadedModel(t, store.NewMemoryStore())

	if !strings.Contains(plainView(m), "No builds tracked") {
		t.Errorf("expected empty state message, got:\n%s", plainView(m))
	}
}

func TestDashboard_StoreError(t *testing.T) {
	m := loadedModel(t, seededStore(t))

	updated, _ := m.Update(snapshotsMsg{err: errors.New("connection refused")})
	m = updated.(Model)

	view := plainView(m)
	if !strings.Contains(view, "store error") {
		t.Errorf("expected error banner, got:\n%s", view)
	}
	// Previously loaded builds stay on screen.
	if !strings.Contains(view, "travis-ci.com/42") {
		t.Errorf("expected stale builds to remain visible, got:\n%s", view)
	}
}

func TestDashboard_TickSchedulesReload(t *testing.T) {
	m := loadedModel(t, seededStore(t))

	_, cmd := m.Update(tickMsg{})
	if cmd == nil {
		t.Fatal("expected batched reload and tick commands")
	}
}
