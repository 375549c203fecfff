package history

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportResult summarizes one cross-document merge.
type ImportResult struct {
	PatchesImported   int `json:"patchesImported"`
	PatchesSkipped    int `json:"patchesSkipped"`
	SnapshotsImported int `json:"snapshotsImported"`
	ReviewsMerged     int `json:"reviewsMerged"`
	CommentsImported  int `json:"commentsImported"`
	CommentsMatched   int `json:"commentsMatched"`
}

// ImportFrom merges another document's checkpoint history into this one.
// Checkpoint patches are deduplicated by uuid, their snapshots re-pointed at
// freshly assigned local ids, reviews upserted by (patch uuid, reviewer), and
// comment threads matched by (timestamp, author, content) with reply parents
// remapped to their new local ids. The whole merge runs in one transaction so
// a failure leaves the target untouched.
func (s *Service) ImportFrom(ctx context.Context, source *Service) (ImportResult, error) {
	if s.db == nil {
		s.logError(opImportFrom, "missing_database", errMissingDatabase)
		return ImportResult{}, newServiceError(opImportFrom, "missing_database", errMissingDatabase)
	}
	if source == nil || source.db == nil {
		s.logError(opImportFrom, "missing_source", errMissingSource)
		return ImportResult{}, newServiceError(opImportFrom, "missing_source", errMissingSource)
	}

	var sourcePatches []Patch
	if err := source.db.WithContext(ctx).
		Where("kind = ?", string(PatchKindSave)).
		Order("timestamp ASC, id ASC").
		Find(&sourcePatches).Error; err != nil {
		s.logError(opImportFrom, "source_patch_query_failed", err)
		return ImportResult{}, newServiceError(opImportFrom, "source_patch_query_failed", err)
	}

	var sourceSnapshots []Snapshot
	if err := source.db.WithContext(ctx).
		Order("id ASC").
		Find(&sourceSnapshots).Error; err != nil {
		s.logError(opImportFrom, "source_snapshot_query_failed", err)
		return ImportResult{}, newServiceError(opImportFrom, "source_snapshot_query_failed", err)
	}
	snapshotsByPatchID := make(map[int64][]Snapshot, len(sourceSnapshots))
	for _, snapshot := range sourceSnapshots {
		snapshotsByPatchID[snapshot.PatchID] = append(snapshotsByPatchID[snapshot.PatchID], snapshot)
	}

	var sourceReviews []PatchReview
	if err := source.db.WithContext(ctx).
		Order("reviewed_at ASC").
		Find(&sourceReviews).Error; err != nil {
		s.logError(opImportFrom, "source_review_query_failed", err)
		return ImportResult{}, newServiceError(opImportFrom, "source_review_query_failed", err)
	}

	var sourceComments []Comment
	if err := source.db.WithContext(ctx).
		Order("id ASC").
		Find(&sourceComments).Error; err != nil {
		s.logError(opImportFrom, "source_comment_query_failed", err)
		return ImportResult{}, newServiceError(opImportFrom, "source_comment_query_failed", err)
	}

	var result ImportResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sourcePatch := range sourcePatches {
			patchUUID := sourcePatch.UUID
			if patchUUID == nil || strings.TrimSpace(*patchUUID) == "" {
				generated, err := s.idProvider.NewID()
				if err != nil {
					s.logError(opImportFrom, "id_generation_failed", err)
					return newServiceError(opImportFrom, "id_generation_failed", err)
				}
				patchUUID = &generated
			}

			var existing int64
			if err := tx.Model(&Patch{}).Where("uuid = ?", *patchUUID).Count(&existing).Error; err != nil {
				s.logError(opImportFrom, "uuid_lookup_failed", err, zap.String("uuid", *patchUUID))
				return newServiceError(opImportFrom, "uuid_lookup_failed", err)
			}
			if existing > 0 {
				result.PatchesSkipped++
				continue
			}

			imported := Patch{
				Timestamp:  sourcePatch.Timestamp,
				Author:     sourcePatch.Author,
				Kind:       sourcePatch.Kind,
				Data:       sourcePatch.Data,
				UUID:       patchUUID,
				ParentUUID: sourcePatch.ParentUUID,
			}
			if err := tx.Create(&imported).Error; err != nil {
				s.logError(opImportFrom, "patch_insert_failed", err, zap.String("uuid", *patchUUID))
				return newServiceError(opImportFrom, "patch_insert_failed", err)
			}
			result.PatchesImported++

			for _, snapshot := range snapshotsByPatchID[sourcePatch.ID] {
				rePointed := Snapshot{
					Timestamp: snapshot.Timestamp,
					PatchID:   imported.ID,
					State:     snapshot.State,
				}
				if err := tx.Create(&rePointed).Error; err != nil {
					s.logError(opImportFrom, "snapshot_insert_failed", err, zap.Int64("patch_id", imported.ID))
					return newServiceError(opImportFrom, "snapshot_insert_failed", err)
				}
				result.SnapshotsImported++
			}
		}

		for _, review := range sourceReviews {
			merged := PatchReview{
				PatchUUID:    review.PatchUUID,
				ReviewerID:   review.ReviewerID,
				Decision:     review.Decision,
				ReviewerName: review.ReviewerName,
				ReviewedAt:   review.ReviewedAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "patch_uuid"}, {Name: "reviewer_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"decision", "reviewer_name", "reviewed_at"}),
			}).Create(&merged).Error; err != nil {
				s.logError(opImportFrom, "review_upsert_failed", err, zap.String("patch_uuid", review.PatchUUID))
				return newServiceError(opImportFrom, "review_upsert_failed", err)
			}
			result.ReviewsMerged++
		}

		// Old source id to new local id; built incrementally so a reply's
		// parent resolves even when the parent was inserted in this pass.
		idRemap := make(map[int64]int64, len(sourceComments))
		for _, sourceComment := range sourceComments {
			var match Comment
			err := tx.Where("timestamp = ? AND author = ? AND content = ?",
				sourceComment.Timestamp, sourceComment.Author, sourceComment.Content).
				Take(&match).Error
			if err == nil {
				idRemap[sourceComment.ID] = match.ID
				result.CommentsMatched++
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.logError(opImportFrom, "comment_lookup_failed", err, zap.Int64("comment_id", sourceComment.ID))
				return newServiceError(opImportFrom, "comment_lookup_failed", err)
			}

			var parentID *int64
			if sourceComment.ParentID != nil {
				if mapped, ok := idRemap[*sourceComment.ParentID]; ok {
					parentID = &mapped
				}
			}

			imported := Comment{
				Timestamp:    sourceComment.Timestamp,
				Author:       sourceComment.Author,
				AuthorColor:  sourceComment.AuthorColor,
				StartAnchor:  sourceComment.StartAnchor,
				EndAnchor:    sourceComment.EndAnchor,
				SelectedText: sourceComment.SelectedText,
				Content:      sourceComment.Content,
				Status:       sourceComment.Status,
				ParentID:     parentID,
			}
			if err := tx.Create(&imported).Error; err != nil {
				s.logError(opImportFrom, "comment_insert_failed", err, zap.Int64("comment_id", sourceComment.ID))
				return newServiceError(opImportFrom, "comment_insert_failed", err)
			}
			idRemap[sourceComment.ID] = imported.ID
			result.CommentsImported++
		}

		return nil
	})
	if txErr != nil {
		return ImportResult{}, txErr
	}

	s.loggerOrDefault().Info("history import completed",
		zap.String("operation", opImportFrom),
		zap.Int("patches_imported", result.PatchesImported),
		zap.Int("patches_skipped", result.PatchesSkipped),
		zap.Int("snapshots_imported", result.SnapshotsImported),
		zap.Int("reviews_merged", result.ReviewsMerged),
		zap.Int("comments_imported", result.CommentsImported))

	return result, nil
}
