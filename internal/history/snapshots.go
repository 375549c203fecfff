package history

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxSnapshotBytes bounds a single checkpoint payload.
const maxSnapshotBytes = 100 * 1024 * 1024

var (
	// ErrEmptySnapshot indicates a checkpoint payload with no content.
	ErrEmptySnapshot = errors.New("history: empty snapshot payload")
	// ErrSnapshotTooLarge indicates a checkpoint payload above the size bound.
	ErrSnapshotTooLarge = errors.New("history: snapshot payload exceeds maximum size")
)

func validateSnapshotBytes(state []byte) error {
	if len(state) == 0 {
		return ErrEmptySnapshot
	}
	if len(state) > maxSnapshotBytes {
		return fmt.Errorf("%w: %d bytes", ErrSnapshotTooLarge, len(state))
	}
	return nil
}

// SaveSnapshot pins a full-state checkpoint to an existing local patch id.
func (s *Service) SaveSnapshot(ctx context.Context, patchID int64, state []byte) (Snapshot, error) {
	if s.db == nil {
		s.logError(opSaveSnapshot, "missing_database", errMissingDatabase)
		return Snapshot{}, newServiceError(opSaveSnapshot, "missing_database", errMissingDatabase)
	}
	if err := validateSnapshotBytes(state); err != nil {
		s.logError(opSaveSnapshot, "invalid_payload", err, zap.Int64("patch_id", patchID))
		return Snapshot{}, newServiceError(opSaveSnapshot, "invalid_payload", err)
	}

	snapshot := Snapshot{PatchID: patchID, State: state}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var patch Patch
		err := tx.Where("id = ?", patchID).Take(&patch).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opSaveSnapshot, "patch_not_found", fmt.Errorf("%w: id %d", ErrPatchNotFound, patchID))
		}
		if err != nil {
			s.logError(opSaveSnapshot, "patch_lookup_failed", err, zap.Int64("patch_id", patchID))
			return newServiceError(opSaveSnapshot, "patch_lookup_failed", err)
		}

		snapshot.Timestamp = patch.Timestamp
		if err := tx.Create(&snapshot).Error; err != nil {
			s.logError(opSaveSnapshot, "insert_failed", err, zap.Int64("patch_id", patchID))
			return newServiceError(opSaveSnapshot, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Snapshot{}, txErr
	}

	return snapshot, nil
}

// NearestSnapshotAt returns the most recent snapshot whose patch id is at or
// before the requested id, or nil when no checkpoint precedes it.
func (s *Service) NearestSnapshotAt(ctx context.Context, patchID int64) (*Snapshot, error) {
	if s.db == nil {
		s.logError(opNearestSnapshot, "missing_database", errMissingDatabase)
		return nil, newServiceError(opNearestSnapshot, "missing_database", errMissingDatabase)
	}

	var snapshot Snapshot
	err := s.db.WithContext(ctx).
		Where("patch_id <= ?", patchID).
		Order("patch_id DESC, id DESC").
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opNearestSnapshot, "query_failed", err, zap.Int64("patch_id", patchID))
		return nil, newServiceError(opNearestSnapshot, "query_failed", err)
	}
	return &snapshot, nil
}

// RestoreTo surfaces the checkpoint text embedded in a "Save" patch payload.
// It does not replay edits; a patch without an embedded checkpoint yields nil.
func (s *Service) RestoreTo(ctx context.Context, patchID int64) (*string, error) {
	if s.db == nil {
		s.logError(opRestoreTo, "missing_database", errMissingDatabase)
		return nil, newServiceError(opRestoreTo, "missing_database", errMissingDatabase)
	}

	patch, err := s.GetPatch(ctx, patchID)
	if err != nil {
		return nil, newServiceError(opRestoreTo, "patch_lookup_failed", err)
	}

	if patch.Kind != string(PatchKindSave) {
		return nil, nil
	}
	checkpoint, ok := decodeSavePayload(patch.Data)
	if !ok {
		return nil, nil
	}
	return &checkpoint, nil
}
