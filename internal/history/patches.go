package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPatchNotFound indicates that no patch exists for the requested local id.
	ErrPatchNotFound = errors.New("history: patch not found")
	// ErrDuplicateUUID indicates that a patch with the supplied uuid is already stored.
	ErrDuplicateUUID = errors.New("history: duplicate patch uuid")
	// ErrInvalidPatch indicates that a patch input failed validation.
	ErrInvalidPatch = errors.New("history: invalid patch")
)

// savePayload is the payload shape of checkpoint patches.
type savePayload struct {
	Snapshot string `json:"snapshot"`
}

// AppendPatch stores one immutable patch and returns the stored row. A uuid is
// assigned when the caller did not supply one. Checkpoint patches that embed a
// snapshot string also produce a snapshots row pinned to the new local id, in
// the same transaction.
func (s *Service) AppendPatch(ctx context.Context, input PatchInput) (Patch, error) {
	if s.db == nil {
		s.logError(opAppendPatch, "missing_database", errMissingDatabase)
		return Patch{}, newServiceError(opAppendPatch, "missing_database", errMissingDatabase)
	}

	if _, err := NewMillisTimestamp(input.Timestamp); err != nil {
		s.logError(opAppendPatch, "invalid_timestamp", err)
		return Patch{}, newServiceError(opAppendPatch, "invalid_timestamp", err)
	}
	author, err := NewAuthorID(input.Author)
	if err != nil {
		s.logError(opAppendPatch, "invalid_author", err)
		return Patch{}, newServiceError(opAppendPatch, "invalid_author", err)
	}
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		s.logError(opAppendPatch, "invalid_kind", ErrInvalidPatch)
		return Patch{}, newServiceError(opAppendPatch, "invalid_kind", fmt.Errorf("%w: empty kind", ErrInvalidPatch))
	}

	patchUUID := input.UUID
	if patchUUID == nil || strings.TrimSpace(*patchUUID) == "" {
		generated, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opAppendPatch, "id_generation_failed", err)
			return Patch{}, newServiceError(opAppendPatch, "id_generation_failed", err)
		}
		patchUUID = &generated
	}

	record := Patch{
		Timestamp:  input.Timestamp,
		Author:     author.String(),
		Kind:       kind,
		Data:       input.Data,
		UUID:       patchUUID,
		ParentUUID: input.ParentUUID,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Patch{}).Where("uuid = ?", *patchUUID).Count(&count).Error; err != nil {
			s.logError(opAppendPatch, "uuid_lookup_failed", err, zap.String("uuid", *patchUUID))
			return newServiceError(opAppendPatch, "uuid_lookup_failed", err)
		}
		if count > 0 {
			s.logError(opAppendPatch, "duplicate_uuid", ErrDuplicateUUID, zap.String("uuid", *patchUUID))
			return newServiceError(opAppendPatch, "duplicate_uuid", ErrDuplicateUUID)
		}

		if err := tx.Create(&record).Error; err != nil {
			s.logError(opAppendPatch, "patch_insert_failed", err)
			return newServiceError(opAppendPatch, "patch_insert_failed", err)
		}

		if record.Kind == string(PatchKindSave) {
			checkpoint, ok := decodeSavePayload(record.Data)
			if !ok {
				s.loggerOrDefault().Warn("checkpoint payload missing snapshot text",
					zap.String("operation", opAppendPatch),
					zap.Int64("patch_id", record.ID))
				return nil
			}
			if err := validateSnapshotBytes([]byte(checkpoint)); err != nil {
				s.logError(opAppendPatch, "invalid_snapshot", err, zap.Int64("patch_id", record.ID))
				return newServiceError(opAppendPatch, "invalid_snapshot", err)
			}
			snapshot := Snapshot{
				Timestamp: record.Timestamp,
				PatchID:   record.ID,
				State:     []byte(checkpoint),
			}
			if err := tx.Create(&snapshot).Error; err != nil {
				s.logError(opAppendPatch, "snapshot_insert_failed", err, zap.Int64("patch_id", record.ID))
				return newServiceError(opAppendPatch, "snapshot_insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return Patch{}, txErr
	}

	return record, nil
}

func decodeSavePayload(raw string) (string, bool) {
	var payload savePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", false
	}
	if payload.Snapshot == "" {
		return "", false
	}
	return payload.Snapshot, true
}

// ListPatches returns every stored patch in insertion order.
func (s *Service) ListPatches(ctx context.Context) ([]Patch, error) {
	if s.db == nil {
		s.logError(opListPatches, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListPatches, "missing_database", errMissingDatabase)
	}

	var patches []Patch
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&patches).Error; err != nil {
		s.logError(opListPatches, "query_failed", err)
		return nil, newServiceError(opListPatches, "query_failed", err)
	}
	return patches, nil
}

// GetPatch returns the patch stored under the given local id.
func (s *Service) GetPatch(ctx context.Context, patchID int64) (Patch, error) {
	if s.db == nil {
		s.logError(opGetPatch, "missing_database", errMissingDatabase)
		return Patch{}, newServiceError(opGetPatch, "missing_database", errMissingDatabase)
	}

	var patch Patch
	err := s.db.WithContext(ctx).Where("id = ?", patchID).Take(&patch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Patch{}, newServiceError(opGetPatch, "not_found", fmt.Errorf("%w: id %d", ErrPatchNotFound, patchID))
	}
	if err != nil {
		s.logError(opGetPatch, "query_failed", err, zap.Int64("patch_id", patchID))
		return Patch{}, newServiceError(opGetPatch, "query_failed", err)
	}
	return patch, nil
}

// PatchSummaries returns display-ready projections of the full history,
// oldest first.
func (s *Service) PatchSummaries(ctx context.Context) ([]PatchInfo, error) {
	if s.db == nil {
		s.logError(opPatchSummaries, "missing_database", errMissingDatabase)
		return nil, newServiceError(opPatchSummaries, "missing_database", errMissingDatabase)
	}

	patches, err := s.ListPatches(ctx)
	if err != nil {
		return nil, newServiceError(opPatchSummaries, "list_failed", err)
	}

	summaries := make([]PatchInfo, 0, len(patches))
	for _, patch := range patches {
		summaries = append(summaries, summarizePatch(patch))
	}
	return summaries, nil
}

func summarizePatch(patch Patch) PatchInfo {
	hash := fmt.Sprintf("patch-%d", patch.ID)
	if patch.UUID != nil && *patch.UUID != "" {
		hash = *patch.UUID
		if len(hash) > 8 {
			hash = hash[:8]
		}
	}

	var description string
	switch patch.Kind {
	case string(PatchKindSave):
		description = fmt.Sprintf("Checkpoint by %s", patch.Author)
	case string(PatchKindSemanticGroup):
		description = fmt.Sprintf("Edits by %s", patch.Author)
	default:
		description = fmt.Sprintf("%s by %s", patch.Kind, patch.Author)
	}

	return PatchInfo{
		Hash:        hash,
		Description: description,
		Timestamp:   time.UnixMilli(patch.Timestamp).UTC().Format("2006-01-02 15:04:05"),
	}
}
