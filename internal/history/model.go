package history

import (
	"errors"
	"fmt"
	"strings"
)

// PatchKind tags the shape of a patch payload.
type PatchKind string

const (
	// PatchKindSave marks a full-checkpoint patch whose payload embeds the document text.
	PatchKindSave PatchKind = "Save"
	// PatchKindSemanticGroup marks a fine-grained edit patch carrying an ordered operation list.
	PatchKindSemanticGroup PatchKind = "semantic_group"
)

// ReviewDecision enumerates the accepted review outcomes.
type ReviewDecision string

const (
	// ReviewDecisionAccepted approves a patch.
	ReviewDecisionAccepted ReviewDecision = "accepted"
	// ReviewDecisionRejected declines a patch.
	ReviewDecisionRejected ReviewDecision = "rejected"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidAuthorID indicates that an author identifier is empty or exceeds storage bounds.
	ErrInvalidAuthorID = errors.New("history: invalid author id")
	// ErrInvalidReviewerID indicates that a reviewer identifier is empty or exceeds storage bounds.
	ErrInvalidReviewerID = errors.New("history: invalid reviewer id")
	// ErrInvalidDecision indicates that a review decision is not accepted or rejected.
	ErrInvalidDecision = errors.New("history: invalid review decision")
	// ErrInvalidTimestamp indicates that a millisecond timestamp is not positive.
	ErrInvalidTimestamp = errors.New("history: invalid timestamp")
)

// AuthorID represents a validated author identifier.
type AuthorID string

// NewAuthorID validates raw input and returns an AuthorID.
func NewAuthorID(rawInput string) (AuthorID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAuthorID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAuthorID, maxIdentifierLength)
	}
	return AuthorID(trimmed), nil
}

// String returns the underlying string identifier.
func (id AuthorID) String() string {
	return string(id)
}

// ReviewerID represents a validated reviewer identifier.
type ReviewerID string

// NewReviewerID validates raw input and returns a ReviewerID.
func NewReviewerID(rawInput string) (ReviewerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReviewerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidReviewerID, maxIdentifierLength)
	}
	return ReviewerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ReviewerID) String() string {
	return string(id)
}

// NewReviewDecision validates raw input and returns a ReviewDecision.
func NewReviewDecision(rawInput string) (ReviewDecision, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case string(ReviewDecisionAccepted):
		return ReviewDecisionAccepted, nil
	case string(ReviewDecisionRejected):
		return ReviewDecisionRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, rawInput)
	}
}

// String returns the decision as a string.
func (d ReviewDecision) String() string {
	return string(d)
}

// MillisTimestamp represents a validated wall-clock timestamp in milliseconds.
type MillisTimestamp int64

// NewMillisTimestamp validates the value and returns a MillisTimestamp.
func NewMillisTimestamp(value int64) (MillisTimestamp, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTimestamp, value)
	}
	return MillisTimestamp(value), nil
}

// Int64 exposes the raw millisecond value.
func (ts MillisTimestamp) Int64() int64 {
	return int64(ts)
}

// Patch is one immutable change record in a document's history.
type Patch struct {
	ID         int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Timestamp  int64   `gorm:"column:timestamp;not null;index:idx_patches_timestamp" json:"timestamp"`
	Author     string  `gorm:"column:author;size:190;not null;index:idx_patches_author" json:"author"`
	Kind       string  `gorm:"column:kind;size:64;not null;index:idx_patches_kind" json:"kind"`
	Data       string  `gorm:"column:data;type:text;not null" json:"data"`
	UUID       *string `gorm:"column:uuid;size:36;uniqueIndex:idx_patches_uuid" json:"uuid,omitempty"`
	ParentUUID *string `gorm:"column:parent_uuid;size:36" json:"parentUuid,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Patch) TableName() string {
	return "patches"
}

// Snapshot is a full-state checkpoint pinned to a local patch id.
type Snapshot struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Timestamp int64  `gorm:"column:timestamp;not null" json:"timestamp"`
	PatchID   int64  `gorm:"column:patch_id;not null;index:idx_snapshots_patch_id" json:"patchId"`
	State     []byte `gorm:"column:state;type:blob;not null" json:"state"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "snapshots"
}

// PatchReview records one reviewer's latest decision on one patch.
type PatchReview struct {
	PatchUUID    string  `gorm:"column:patch_uuid;primaryKey;size:36;not null;index:idx_patch_reviews_patch_uuid" json:"patchUuid"`
	ReviewerID   string  `gorm:"column:reviewer_id;primaryKey;size:190;not null;index:idx_patch_reviews_reviewer_id" json:"reviewerId"`
	Decision     string  `gorm:"column:decision;size:16;not null;check:decision IN ('accepted','rejected')" json:"decision"`
	ReviewerName *string `gorm:"column:reviewer_name;size:190" json:"reviewerName,omitempty"`
	ReviewedAt   int64   `gorm:"column:reviewed_at;not null" json:"reviewedAt"`
}

// TableName provides the explicit table binding for GORM.
func (PatchReview) TableName() string {
	return "patch_reviews"
}

// Comment is a threaded document annotation anchored by opaque CRDT relative positions.
type Comment struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Timestamp    int64   `gorm:"column:timestamp;not null" json:"timestamp"`
	Author       string  `gorm:"column:author;size:190;not null" json:"author"`
	AuthorColor  *string `gorm:"column:author_color;size:32" json:"authorColor,omitempty"`
	StartAnchor  string  `gorm:"column:start_anchor;type:text;not null" json:"startAnchor"`
	EndAnchor    string  `gorm:"column:end_anchor;type:text;not null" json:"endAnchor"`
	SelectedText string  `gorm:"column:selected_text;type:text;not null" json:"selectedText"`
	Content      string  `gorm:"column:content;type:text;not null" json:"content"`
	Status       string  `gorm:"column:status;size:16;not null;default:unresolved;index:idx_comments_status" json:"status"`
	ParentID     *int64  `gorm:"column:parent_id;index:idx_comments_parent" json:"parentId,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

const (
	// CommentStatusUnresolved is the initial comment state.
	CommentStatusUnresolved = "unresolved"
	// CommentStatusResolved marks a settled comment thread.
	CommentStatusResolved = "resolved"
	// CommentStatusDeleted marks a soft-deleted comment thread.
	CommentStatusDeleted = "deleted"
)

// PatchInput carries a caller-supplied patch before the store assigns identity.
type PatchInput struct {
	Timestamp  int64
	Author     string
	Kind       string
	Data       string
	UUID       *string
	ParentUUID *string
}

// PatchInfo is the compact projection used by history displays.
type PatchInfo struct {
	Hash        string `json:"hash"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// CommentInput carries a caller-supplied comment.
type CommentInput struct {
	Author       string
	AuthorColor  *string
	StartAnchor  string
	EndAnchor    string
	SelectedText string
	Content      string
	ParentID     *int64
}
