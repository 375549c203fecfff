package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestAppendPatchAssignsUUIDWhenMissing(t *testing.T) {
	service, _ := newTestService(t, []string{"uuid-1"})

	patch, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 1700000000000,
		Author:    "alice",
		Kind:      string(PatchKindSemanticGroup),
		Data:      `[]`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.ID == 0 {
		t.Fatalf("expected a local id to be assigned")
	}
	if patch.UUID == nil || *patch.UUID != "uuid-1" {
		t.Fatalf("expected generated uuid, got %#v", patch.UUID)
	}
}

func TestAppendPatchKeepsCallerUUID(t *testing.T) {
	service, _ := newTestService(t, nil)

	patch, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 1700000000000,
		Author:    "alice",
		Kind:      string(PatchKindSemanticGroup),
		Data:      `[]`,
		UUID:      strPtr("caller-uuid"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.UUID == nil || *patch.UUID != "caller-uuid" {
		t.Fatalf("expected caller uuid to survive, got %#v", patch.UUID)
	}
}

func TestAppendPatchRejectsDuplicateUUID(t *testing.T) {
	service, db := newTestService(t, nil)

	input := PatchInput{
		Timestamp: 1700000000000,
		Author:    "alice",
		Kind:      string(PatchKindSemanticGroup),
		Data:      `[]`,
		UUID:      strPtr("dup-uuid"),
	}
	if _, err := service.AppendPatch(context.Background(), input); err != nil {
		t.Fatalf("unexpected error on first append: %v", err)
	}

	_, err := service.AppendPatch(context.Background(), input)
	if !errors.Is(err, ErrDuplicateUUID) {
		t.Fatalf("expected duplicate uuid error, got %v", err)
	}

	var count int64
	if err := db.Model(&Patch{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count patches: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one stored patch, got %d", count)
	}
}

func TestAppendPatchValidatesInput(t *testing.T) {
	service, _ := newTestService(t, []string{"uuid-1", "uuid-2"})

	if _, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 0,
		Author:    "alice",
		Kind:      string(PatchKindSemanticGroup),
		Data:      `[]`,
	}); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected timestamp error, got %v", err)
	}

	if _, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 1700000000000,
		Author:    "  ",
		Kind:      string(PatchKindSemanticGroup),
		Data:      `[]`,
	}); !errors.Is(err, ErrInvalidAuthorID) {
		t.Fatalf("expected author error, got %v", err)
	}

	if _, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 1700000000000,
		Author:    "alice",
		Kind:      "",
		Data:      `[]`,
	}); !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("expected kind error, got %v", err)
	}
}

func TestAppendCheckpointPatchStoresSnapshot(t *testing.T) {
	service, db := newTestService(t, []string{"uuid-1"})

	patch, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 1700000000000,
		Author:    "alice",
		Kind:      string(PatchKindSave),
		Data:      `{"snapshot":"hello world"}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snapshot Snapshot
	if err := db.First(&snapshot).Error; err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	if snapshot.PatchID != patch.ID {
		t.Fatalf("expected snapshot pinned to patch %d, got %d", patch.ID, snapshot.PatchID)
	}
	if string(snapshot.State) != "hello world" {
		t.Fatalf("unexpected snapshot state %q", snapshot.State)
	}
	if snapshot.Timestamp != patch.Timestamp {
		t.Fatalf("expected snapshot timestamp to match patch, got %d", snapshot.Timestamp)
	}
}

func TestAppendCheckpointWithoutSnapshotTextStoresPatchOnly(t *testing.T) {
	service, db := newTestService(t, []string{"uuid-1"})

	if _, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 1700000000000,
		Author:    "alice",
		Kind:      string(PatchKindSave),
		Data:      `{"note":"no snapshot field"}`,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snapshots int64
	if err := db.Model(&Snapshot{}).Count(&snapshots).Error; err != nil {
		t.Fatalf("failed to count snapshots: %v", err)
	}
	if snapshots != 0 {
		t.Fatalf("expected no snapshot rows, got %d", snapshots)
	}
}

func TestListPatchesReturnsInsertionOrder(t *testing.T) {
	service, _ := newTestService(t, nil)

	// Timestamps deliberately out of order; list order follows local ids.
	for i, ts := range []int64{3000, 1000, 2000} {
		if _, err := service.AppendPatch(context.Background(), PatchInput{
			Timestamp: ts,
			Author:    "alice",
			Kind:      string(PatchKindSemanticGroup),
			Data:      `[]`,
			UUID:      strPtr(fmt.Sprintf("uuid-%d", i)),
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	patches, err := service.ListPatches(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patches) != 3 {
		t.Fatalf("expected 3 patches, got %d", len(patches))
	}
	for i := 1; i < len(patches); i++ {
		if patches[i].ID <= patches[i-1].ID {
			t.Fatalf("expected ascending local ids, got %d then %d", patches[i-1].ID, patches[i].ID)
		}
	}
}

func TestGetPatchNotFound(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.GetPatch(context.Background(), 42)
	if !errors.Is(err, ErrPatchNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestPatchSummariesDescribeKindAndAuthor(t *testing.T) {
	service, _ := newTestService(t, nil)

	if _, err := service.AppendPatch(context.Background(), PatchInput{
		Timestamp: 1700000000000,
		Author:    "alice",
		Kind:      string(PatchKindSave),
		Data:      `{"snapshot":"text"}`,
		UUID:      strPtr("abcdef1234567890"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summaries, err := service.PatchSummaries(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].Hash != "abcdef12" {
		t.Fatalf("expected shortened uuid hash, got %q", summaries[0].Hash)
	}
	if summaries[0].Description != "Checkpoint by alice" {
		t.Fatalf("unexpected description %q", summaries[0].Description)
	}
}
