package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrCommentNotFound indicates that no comment exists for the requested id.
	ErrCommentNotFound = errors.New("history: comment not found")
	// ErrInvalidComment indicates that a comment input failed validation.
	ErrInvalidComment = errors.New("history: invalid comment")
)

// AddComment stores a new top-level annotation thread.
func (s *Service) AddComment(ctx context.Context, input CommentInput) (Comment, error) {
	if s.db == nil {
		s.logError(opAddComment, "missing_database", errMissingDatabase)
		return Comment{}, newServiceError(opAddComment, "missing_database", errMissingDatabase)
	}
	author, err := NewAuthorID(input.Author)
	if err != nil {
		s.logError(opAddComment, "invalid_author", err)
		return Comment{}, newServiceError(opAddComment, "invalid_author", err)
	}
	if strings.TrimSpace(input.Content) == "" {
		s.logError(opAddComment, "invalid_content", ErrInvalidComment)
		return Comment{}, newServiceError(opAddComment, "invalid_content", fmt.Errorf("%w: empty content", ErrInvalidComment))
	}

	comment := Comment{
		Timestamp:    s.clock().UTC().UnixMilli(),
		Author:       author.String(),
		AuthorColor:  input.AuthorColor,
		StartAnchor:  input.StartAnchor,
		EndAnchor:    input.EndAnchor,
		SelectedText: input.SelectedText,
		Content:      input.Content,
		Status:       CommentStatusUnresolved,
		ParentID:     input.ParentID,
	}

	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opAddComment, "insert_failed", err)
		return Comment{}, newServiceError(opAddComment, "insert_failed", err)
	}
	return comment, nil
}

// ListComments returns comment threads oldest first. An empty statusFilter
// returns every comment, soft-deleted ones included so the caller can render
// tombstones.
func (s *Service) ListComments(ctx context.Context, statusFilter string) ([]Comment, error) {
	if s.db == nil {
		s.logError(opListComments, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListComments, "missing_database", errMissingDatabase)
	}

	query := s.db.WithContext(ctx).Order("timestamp ASC, id ASC")
	if statusFilter != "" {
		if err := validateCommentStatus(statusFilter); err != nil {
			s.logError(opListComments, "invalid_status", err, zap.String("status", statusFilter))
			return nil, newServiceError(opListComments, "invalid_status", err)
		}
		query = query.Where("status = ?", statusFilter)
	}

	var comments []Comment
	if err := query.Find(&comments).Error; err != nil {
		s.logError(opListComments, "query_failed", err)
		return nil, newServiceError(opListComments, "query_failed", err)
	}
	return comments, nil
}

func validateCommentStatus(status string) error {
	switch status {
	case CommentStatusUnresolved, CommentStatusResolved, CommentStatusDeleted:
		return nil
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidComment, status)
	}
}

// ReplyToComment attaches a reply beneath an existing thread. Replies inherit
// the parent's anchors and selected text so the thread stays pinned together.
func (s *Service) ReplyToComment(ctx context.Context, parentID int64, author string, authorColor *string, content string) (Comment, error) {
	if s.db == nil {
		s.logError(opReplyToComment, "missing_database", errMissingDatabase)
		return Comment{}, newServiceError(opReplyToComment, "missing_database", errMissingDatabase)
	}

	var parent Comment
	err := s.db.WithContext(ctx).Where("id = ?", parentID).Take(&parent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, newServiceError(opReplyToComment, "parent_not_found", fmt.Errorf("%w: id %d", ErrCommentNotFound, parentID))
	}
	if err != nil {
		s.logError(opReplyToComment, "parent_lookup_failed", err, zap.Int64("parent_id", parentID))
		return Comment{}, newServiceError(opReplyToComment, "parent_lookup_failed", err)
	}

	return s.AddComment(ctx, CommentInput{
		Author:       author,
		AuthorColor:  authorColor,
		StartAnchor:  parent.StartAnchor,
		EndAnchor:    parent.EndAnchor,
		SelectedText: parent.SelectedText,
		Content:      content,
		ParentID:     &parent.ID,
	})
}

// SetCommentStatus transitions a comment between unresolved, resolved, and
// deleted states. Soft deletion and restoration cascade to the thread's
// replies so a hidden thread disappears as a unit.
func (s *Service) SetCommentStatus(ctx context.Context, commentID int64, status string) error {
	if s.db == nil {
		s.logError(opUpdateComment, "missing_database", errMissingDatabase)
		return newServiceError(opUpdateComment, "missing_database", errMissingDatabase)
	}
	if err := validateCommentStatus(status); err != nil {
		s.logError(opUpdateComment, "invalid_status", err, zap.String("status", status))
		return newServiceError(opUpdateComment, "invalid_status", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Comment{}).
			Where("id = ?", commentID).
			Update("status", status)
		if result.Error != nil {
			s.logError(opUpdateComment, "update_failed", result.Error, zap.Int64("comment_id", commentID))
			return newServiceError(opUpdateComment, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUpdateComment, "not_found", fmt.Errorf("%w: id %d", ErrCommentNotFound, commentID))
		}

		if status == CommentStatusDeleted || status == CommentStatusUnresolved {
			if err := tx.Model(&Comment{}).
				Where("parent_id = ?", commentID).
				Update("status", status).Error; err != nil {
				s.logError(opUpdateComment, "reply_update_failed", err, zap.Int64("comment_id", commentID))
				return newServiceError(opUpdateComment, "reply_update_failed", err)
			}
		}
		return nil
	})
}

// DeleteComment removes a comment row and its direct replies permanently.
func (s *Service) DeleteComment(ctx context.Context, commentID int64) error {
	if s.db == nil {
		s.logError(opDeleteComment, "missing_database", errMissingDatabase)
		return newServiceError(opDeleteComment, "missing_database", errMissingDatabase)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", commentID).Delete(&Comment{})
		if result.Error != nil {
			s.logError(opDeleteComment, "delete_failed", result.Error, zap.Int64("comment_id", commentID))
			return newServiceError(opDeleteComment, "delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opDeleteComment, "not_found", fmt.Errorf("%w: id %d", ErrCommentNotFound, commentID))
		}
		if err := tx.Where("parent_id = ?", commentID).Delete(&Comment{}).Error; err != nil {
			s.logError(opDeleteComment, "reply_delete_failed", err, zap.Int64("comment_id", commentID))
			return newServiceError(opDeleteComment, "reply_delete_failed", err)
		}
		return nil
	})
}
