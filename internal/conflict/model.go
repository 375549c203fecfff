package conflict

import (
	"errors"
	"fmt"
)

// Type classifies how two concurrent edits collide.
type Type string

const (
	// TypeOverlappingEdit marks two edits whose spans intersect.
	TypeOverlappingEdit Type = "OverlappingEdit"
	// TypeDeleteModify marks a deletion colliding with a replacement.
	TypeDeleteModify Type = "DeleteModify"
	// TypeConcurrentInsert marks two insertions at the same position.
	TypeConcurrentInsert Type = "ConcurrentInsert"
	// TypeStructuralConflict marks a collision above the character level.
	TypeStructuralConflict Type = "StructuralConflict"
)

// Status tracks the lifecycle of a detected conflict.
type Status string

const (
	StatusUnresolved     Status = "Unresolved"
	StatusResolvedLocal  Status = "ResolvedLocal"
	StatusResolvedRemote Status = "ResolvedRemote"
	StatusResolvedMerged Status = "ResolvedMerged"
	StatusResolvedBoth   Status = "ResolvedBoth"
)

// ErrInvalidStatus indicates an unrecognized conflict status string.
var ErrInvalidStatus = errors.New("conflict: invalid status")

// NewStatus validates a raw status string.
func NewStatus(rawInput string) (Status, error) {
	switch Status(rawInput) {
	case StatusUnresolved, StatusResolvedLocal, StatusResolvedRemote, StatusResolvedMerged, StatusResolvedBoth:
		return Status(rawInput), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

// TextSpan is one side of a conflict: a character range, the text occupying
// it, and the edit's provenance.
type TextSpan struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

// Conflict is one detected collision between two collaborators' edits.
type Conflict struct {
	ID              string   `json:"id"`
	Type            Type     `json:"conflictType"`
	BaseVersion     TextSpan `json:"baseVersion"`
	LocalVersion    TextSpan `json:"localVersion"`
	RemoteVersion   TextSpan `json:"remoteVersion"`
	Status          Status   `json:"status"`
	ResolvedContent *string  `json:"resolvedContent,omitempty"`
	DetectedAt      int64    `json:"detectedAt"`
	ResolvedAt      *int64   `json:"resolvedAt,omitempty"`
}

// Record is the persisted shape of a Conflict, flattened into relational
// columns per side.
type Record struct {
	ID           string `gorm:"column:id;primaryKey;size:128"`
	ConflictType string `gorm:"column:conflict_type;size:32;not null"`

	BaseContent string `gorm:"column:base_content;type:text;not null"`
	BaseStart   int    `gorm:"column:base_start;not null"`
	BaseEnd     int    `gorm:"column:base_end;not null"`

	LocalContent   string `gorm:"column:local_content;type:text;not null"`
	LocalAuthor    string `gorm:"column:local_author;size:190;not null"`
	LocalStart     int    `gorm:"column:local_start;not null"`
	LocalEnd       int    `gorm:"column:local_end;not null"`
	LocalTimestamp int64  `gorm:"column:local_ts;not null"`

	RemoteContent   string `gorm:"column:remote_content;type:text;not null"`
	RemoteAuthor    string `gorm:"column:remote_author;size:190;not null"`
	RemoteStart     int    `gorm:"column:remote_start;not null"`
	RemoteEnd       int    `gorm:"column:remote_end;not null"`
	RemoteTimestamp int64  `gorm:"column:remote_ts;not null"`

	Status          string  `gorm:"column:status;size:32;not null;default:Unresolved;index:idx_conflicts_status"`
	ResolvedContent *string `gorm:"column:resolved_content;type:text"`
	DetectedAt      int64   `gorm:"column:detected_at;not null"`
	ResolvedAt      *int64  `gorm:"column:resolved_at"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "conflicts"
}

const baseAuthor = "base"

func toRecord(conflict Conflict) Record {
	return Record{
		ID:           conflict.ID,
		ConflictType: string(conflict.Type),

		BaseContent: conflict.BaseVersion.Content,
		BaseStart:   conflict.BaseVersion.Start,
		BaseEnd:     conflict.BaseVersion.End,

		LocalContent:   conflict.LocalVersion.Content,
		LocalAuthor:    conflict.LocalVersion.Author,
		LocalStart:     conflict.LocalVersion.Start,
		LocalEnd:       conflict.LocalVersion.End,
		LocalTimestamp: conflict.LocalVersion.Timestamp,

		RemoteContent:   conflict.RemoteVersion.Content,
		RemoteAuthor:    conflict.RemoteVersion.Author,
		RemoteStart:     conflict.RemoteVersion.Start,
		RemoteEnd:       conflict.RemoteVersion.End,
		RemoteTimestamp: conflict.RemoteVersion.Timestamp,

		Status:          string(conflict.Status),
		ResolvedContent: conflict.ResolvedContent,
		DetectedAt:      conflict.DetectedAt,
		ResolvedAt:      conflict.ResolvedAt,
	}
}

func fromRecord(record Record) Conflict {
	return Conflict{
		ID:   record.ID,
		Type: Type(record.ConflictType),
		BaseVersion: TextSpan{
			Start:   record.BaseStart,
			End:     record.BaseEnd,
			Content: record.BaseContent,
			Author:  baseAuthor,
		},
		LocalVersion: TextSpan{
			Start:     record.LocalStart,
			End:       record.LocalEnd,
			Content:   record.LocalContent,
			Author:    record.LocalAuthor,
			Timestamp: record.LocalTimestamp,
		},
		RemoteVersion: TextSpan{
			Start:     record.RemoteStart,
			End:       record.RemoteEnd,
			Content:   record.RemoteContent,
			Author:    record.RemoteAuthor,
			Timestamp: record.RemoteTimestamp,
		},
		Status:          Status(record.Status),
		ResolvedContent: record.ResolvedContent,
		DetectedAt:      record.DetectedAt,
		ResolvedAt:      record.ResolvedAt,
	}
}
