package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redlinehq/redline/backend/internal/history"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	reg, err := NewRegistry(RegistryConfig{
		RootDir: t.TempDir(),
		Clock:   func() time.Time { return time.Unix(1700000600, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.CloseAll() })
	return reg
}

func TestOpenReturnsSameHandle(t *testing.T) {
	reg := newTestRegistry(t)

	first, err := reg.Open("doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := reg.Open("doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected repeated open to return the existing handle")
	}
}

func TestOpenRejectsPathEscapingIDs(t *testing.T) {
	reg := newTestRegistry(t)

	for _, id := range []string{"", "  ", "..", "a/b", "../escape"} {
		if _, err := reg.Open(id); !errors.Is(err, ErrInvalidDocumentID) {
			t.Fatalf("expected invalid id error for %q, got %v", id, err)
		}
	}
}

func TestGetRequiresOpenDocument(t *testing.T) {
	reg := newTestRegistry(t)

	if _, err := reg.Get("doc-a"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestListReturnsSortedIDs(t *testing.T) {
	reg := newTestRegistry(t)

	for _, id := range []string{"doc-b", "doc-a", "doc-c"} {
		if _, err := reg.Open(id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ids := reg.List()
	if len(ids) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(ids))
	}
	if ids[0] != "doc-a" || ids[1] != "doc-b" || ids[2] != "doc-c" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
}

func TestActiveDocumentTracking(t *testing.T) {
	reg := newTestRegistry(t)

	if _, err := reg.Active(); !errors.Is(err, ErrNoActiveDocument) {
		t.Fatalf("expected no active document, got %v", err)
	}

	if _, err := reg.Open("doc-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.SetActive("doc-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active, err := reg.Active()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.ID() != "doc-a" {
		t.Fatalf("expected doc-a active, got %q", active.ID())
	}

	if err := reg.SetActive("doc-missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCloseRemovesDocument(t *testing.T) {
	reg := newTestRegistry(t)

	if _, err := reg.Open("doc-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.SetActive("doc-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.Close("doc-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.Get("doc-a"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected closed document to be gone, got %v", err)
	}
	if _, err := reg.Active(); !errors.Is(err, ErrNoActiveDocument) {
		t.Fatalf("expected active document cleared, got %v", err)
	}

	if err := reg.Close("doc-a"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected repeated close to fail, got %v", err)
	}
}

func TestScanConflictsPersistsFindings(t *testing.T) {
	reg := newTestRegistry(t)

	document, err := reg.Open("doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	appendEdit := func(author, uuid string, timestamp int64, data string) {
		t.Helper()
		input := history.PatchInput{
			Timestamp: timestamp,
			Author:    author,
			Kind:      "semantic_group",
			Data:      data,
			UUID:      &uuid,
		}
		if _, err := document.History().AppendPatch(ctx, input); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}

	appendEdit("alice", "p-1", 1000, `[{"kind":"replace_text","range":[0,5],"insertedText":"aaa"}]`)
	appendEdit("bob", "p-2", 2000, `[{"kind":"replace_text","range":[3,8],"insertedText":"bbb"}]`)

	detected, err := document.ScanConflicts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detected) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(detected))
	}

	// A second scan re-detects the same conflict without duplicating it.
	if _, err := document.ScanConflicts(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := document.Conflicts().CountUnresolved(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored conflict, got %d", count)
	}
}

func TestImportFromAnotherDocument(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	source, err := reg.Open("doc-source")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	target, err := reg.Open("doc-target")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saveUUID := "save-1"
	input := history.PatchInput{
		Timestamp: 1000,
		Author:    "alice",
		Kind:      "Save",
		Data:      `{"snapshot":"text"}`,
		UUID:      &saveUUID,
	}
	if _, err := source.History().AppendPatch(ctx, input); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	result, err := target.ImportFrom(ctx, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PatchesImported != 1 {
		t.Fatalf("expected 1 imported patch, got %d", result.PatchesImported)
	}

	if _, err := target.ImportFrom(ctx, target); !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("expected self-import rejection, got %v", err)
	}
}
