package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidPatchUUID indicates an empty patch uuid where one is required.
var ErrInvalidPatchUUID = errors.New("history: invalid patch uuid")

// ParentState classifies the causal predecessor of a patch.
type ParentState string

const (
	// ParentStateNone means the patch declares no causal parent.
	ParentStateNone ParentState = "none"
	// ParentStateMissing means the patch declares a parent that is not stored locally.
	ParentStateMissing ParentState = "missing"
	// ParentStatePresent means the declared parent patch exists locally.
	ParentStatePresent ParentState = "present"
)

// ParentStatus describes a patch's causal parent and whether the querying
// reviewer already rejected it.
type ParentStatus struct {
	State          ParentState `json:"state"`
	ParentUUID     *string     `json:"parentUuid,omitempty"`
	ParentRejected bool        `json:"parentRejected"`
	RejectedByName *string     `json:"rejectedByName,omitempty"`
}

// RecordReview upserts one reviewer's decision on one patch. A later call for
// the same (patch uuid, reviewer) pair overwrites the earlier decision.
func (s *Service) RecordReview(ctx context.Context, patchUUID string, reviewerID ReviewerID, decision ReviewDecision, reviewerName *string) (PatchReview, error) {
	if s.db == nil {
		s.logError(opRecordReview, "missing_database", errMissingDatabase)
		return PatchReview{}, newServiceError(opRecordReview, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(patchUUID) == "" {
		s.logError(opRecordReview, "invalid_patch_uuid", ErrInvalidPatchUUID)
		return PatchReview{}, newServiceError(opRecordReview, "invalid_patch_uuid", ErrInvalidPatchUUID)
	}
	if reviewerID.String() == "" {
		s.logError(opRecordReview, "invalid_reviewer", ErrInvalidReviewerID)
		return PatchReview{}, newServiceError(opRecordReview, "invalid_reviewer", ErrInvalidReviewerID)
	}
	validated, err := NewReviewDecision(decision.String())
	if err != nil {
		s.logError(opRecordReview, "invalid_decision", err, zap.String("patch_uuid", patchUUID))
		return PatchReview{}, newServiceError(opRecordReview, "invalid_decision", err)
	}

	review := PatchReview{
		PatchUUID:    patchUUID,
		ReviewerID:   reviewerID.String(),
		Decision:     validated.String(),
		ReviewerName: reviewerName,
		ReviewedAt:   s.clock().UTC().UnixMilli(),
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patch_uuid"}, {Name: "reviewer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"decision", "reviewer_name", "reviewed_at"}),
		}).
		Create(&review).Error; err != nil {
		s.logError(opRecordReview, "upsert_failed", err,
			zap.String("patch_uuid", patchUUID),
			zap.String("reviewer_id", reviewerID.String()))
		return PatchReview{}, newServiceError(opRecordReview, "upsert_failed", err)
	}

	return review, nil
}

// ReviewsFor returns every recorded decision for a patch, newest first.
func (s *Service) ReviewsFor(ctx context.Context, patchUUID string) ([]PatchReview, error) {
	if s.db == nil {
		s.logError(opReviewsFor, "missing_database", errMissingDatabase)
		return nil, newServiceError(opReviewsFor, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(patchUUID) == "" {
		s.logError(opReviewsFor, "invalid_patch_uuid", ErrInvalidPatchUUID)
		return nil, newServiceError(opReviewsFor, "invalid_patch_uuid", ErrInvalidPatchUUID)
	}

	var reviews []PatchReview
	if err := s.db.WithContext(ctx).
		Where("patch_uuid = ?", patchUUID).
		Order("reviewed_at DESC").
		Find(&reviews).Error; err != nil {
		s.logError(opReviewsFor, "query_failed", err, zap.String("patch_uuid", patchUUID))
		return nil, newServiceError(opReviewsFor, "query_failed", err)
	}
	return reviews, nil
}

// NeedsReview returns patches still awaiting a decision from the given
// reviewer: authored by someone else, carrying a uuid, and without a review
// row from that reviewer. Oldest first.
func (s *Service) NeedsReview(ctx context.Context, reviewerID ReviewerID) ([]Patch, error) {
	if s.db == nil {
		s.logError(opNeedsReview, "missing_database", errMissingDatabase)
		return nil, newServiceError(opNeedsReview, "missing_database", errMissingDatabase)
	}
	if reviewerID.String() == "" {
		s.logError(opNeedsReview, "invalid_reviewer", ErrInvalidReviewerID)
		return nil, newServiceError(opNeedsReview, "invalid_reviewer", ErrInvalidReviewerID)
	}

	var patches []Patch
	if err := s.db.WithContext(ctx).
		Where("author != ?", reviewerID.String()).
		Where("uuid IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM patch_reviews WHERE patch_reviews.patch_uuid = patches.uuid AND patch_reviews.reviewer_id = ?)", reviewerID.String()).
		Order("timestamp ASC").
		Find(&patches).Error; err != nil {
		s.logError(opNeedsReview, "query_failed", err, zap.String("reviewer_id", reviewerID.String()))
		return nil, newServiceError(opNeedsReview, "query_failed", err)
	}
	return patches, nil
}

// ParentStatusFor reports the causal parent of a patch and whether the given
// reviewer rejected that parent. A declared parent that is not stored locally
// is reported as missing rather than absent.
func (s *Service) ParentStatusFor(ctx context.Context, patchUUID string, reviewerID ReviewerID) (ParentStatus, error) {
	if s.db == nil {
		s.logError(opParentStatus, "missing_database", errMissingDatabase)
		return ParentStatus{}, newServiceError(opParentStatus, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(patchUUID) == "" {
		s.logError(opParentStatus, "invalid_patch_uuid", ErrInvalidPatchUUID)
		return ParentStatus{}, newServiceError(opParentStatus, "invalid_patch_uuid", ErrInvalidPatchUUID)
	}

	var patch Patch
	err := s.db.WithContext(ctx).Where("uuid = ?", patchUUID).Take(&patch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ParentStatus{}, newServiceError(opParentStatus, "not_found", fmt.Errorf("%w: uuid %s", ErrPatchNotFound, patchUUID))
	}
	if err != nil {
		s.logError(opParentStatus, "patch_lookup_failed", err, zap.String("patch_uuid", patchUUID))
		return ParentStatus{}, newServiceError(opParentStatus, "patch_lookup_failed", err)
	}

	if patch.ParentUUID == nil || *patch.ParentUUID == "" {
		return ParentStatus{State: ParentStateNone}, nil
	}

	status := ParentStatus{ParentUUID: patch.ParentUUID}

	var parentCount int64
	if err := s.db.WithContext(ctx).Model(&Patch{}).Where("uuid = ?", *patch.ParentUUID).Count(&parentCount).Error; err != nil {
		s.logError(opParentStatus, "parent_lookup_failed", err, zap.String("parent_uuid", *patch.ParentUUID))
		return ParentStatus{}, newServiceError(opParentStatus, "parent_lookup_failed", err)
	}
	if parentCount == 0 {
		status.State = ParentStateMissing
	} else {
		status.State = ParentStatePresent
	}

	var parentReview PatchReview
	err = s.db.WithContext(ctx).
		Where("patch_uuid = ? AND reviewer_id = ? AND decision = ?", *patch.ParentUUID, reviewerID.String(), string(ReviewDecisionRejected)).
		Take(&parentReview).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status, nil
	}
	if err != nil {
		s.logError(opParentStatus, "parent_review_lookup_failed", err, zap.String("parent_uuid", *patch.ParentUUID))
		return ParentStatus{}, newServiceError(opParentStatus, "parent_review_lookup_failed", err)
	}

	status.ParentRejected = true
	status.RejectedByName = parentReview.ReviewerName
	return status, nil
}
