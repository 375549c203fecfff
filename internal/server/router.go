package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/redlinehq/redline/backend/internal/auth"
	"github.com/redlinehq/redline/backend/internal/conflict"
	"github.com/redlinehq/redline/backend/internal/history"
	"github.com/redlinehq/redline/backend/internal/registry"
)

const (
	collaboratorIDContextKey   = "redline_collaborator_id"
	collaboratorNameContextKey = "redline_collaborator_name"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingRegistry      = errors.New("document registry dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, collaboratorID, displayName string) (string, int64, error)
	ValidateToken(token string) (auth.Session, error)
}

type Dependencies struct {
	TokenManager SessionTokenManager
	Registry     *registry.Registry
	Logger       *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		registry: deps.Registry,
		logger:   logger,
	}

	router.POST("/auth/session", handler.handleIssueSession)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/documents", handler.handleListDocuments)
	protected.GET("/active-document", handler.handleActiveDocument)
	protected.POST("/documents/:id/open", handler.handleOpenDocument)
	protected.POST("/documents/:id/activate", handler.handleActivateDocument)
	protected.DELETE("/documents/:id", handler.handleCloseDocument)
	protected.POST("/documents/:id/import", handler.handleImportDocument)

	protected.POST("/documents/:id/patches", handler.handleAppendPatch)
	protected.GET("/documents/:id/patches", handler.handleListPatches)
	protected.GET("/documents/:id/history", handler.handlePatchSummaries)
	protected.GET("/documents/:id/patches/:patchId", handler.handleGetPatch)
	protected.POST("/documents/:id/patches/:patchId/snapshot", handler.handleSaveSnapshot)
	protected.GET("/documents/:id/patches/:patchId/restore", handler.handleRestore)
	protected.GET("/documents/:id/snapshots/nearest", handler.handleNearestSnapshot)

	protected.POST("/documents/:id/detect-conflicts", handler.handleScanConflicts)
	protected.GET("/documents/:id/conflicts", handler.handleListConflicts)
	protected.GET("/documents/:id/conflicts/count", handler.handleCountConflicts)
	protected.POST("/documents/:id/conflicts/:conflictId/resolve", handler.handleResolveConflict)

	protected.POST("/documents/:id/reviews", handler.handleRecordReview)
	protected.GET("/documents/:id/reviews", handler.handleReviewsFor)
	protected.GET("/documents/:id/reviews/pending", handler.handleNeedsReview)
	protected.GET("/documents/:id/reviews/parent-status", handler.handleParentStatus)

	protected.POST("/documents/:id/comments", handler.handleAddComment)
	protected.GET("/documents/:id/comments", handler.handleListComments)
	protected.POST("/documents/:id/comments/:commentId/reply", handler.handleReplyToComment)
	protected.POST("/documents/:id/comments/:commentId/status", handler.handleSetCommentStatus)
	protected.DELETE("/documents/:id/comments/:commentId", handler.handleDeleteComment)

	return router, nil
}

type httpHandler struct {
	tokens   SessionTokenManager
	registry *registry.Registry
	logger   *zap.Logger
}

type sessionRequestPayload struct {
	CollaboratorID string `json:"collaborator_id"`
	DisplayName    string `json:"display_name"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleIssueSession(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.CollaboratorID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), request.CollaboratorID, request.DisplayName)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	session, err := h.tokens.ValidateToken(token)
	if err != nil {
		// Expired tokens are routine; anything else deserves scrutiny.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(collaboratorIDContextKey, session.CollaboratorID)
	c.Set(collaboratorNameContextKey, session.DisplayName)
	c.Next()
}

func (h *httpHandler) document(c *gin.Context) (*registry.Document, bool) {
	document, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_open"})
		return nil, false
	}
	return document, true
}

func (h *httpHandler) handleOpenDocument(c *gin.Context) {
	document, err := h.registry.Open(c.Param("id"))
	if err != nil {
		if errors.Is(err, registry.ErrInvalidDocumentID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
			return
		}
		h.logger.Error("failed to open document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": document.ID()})
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": h.registry.List()})
}

func (h *httpHandler) handleActivateDocument(c *gin.Context) {
	if err := h.registry.SetActive(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_open"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleActiveDocument(c *gin.Context) {
	document, err := h.registry.Active()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_active_document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": document.ID()})
}

func (h *httpHandler) handleCloseDocument(c *gin.Context) {
	if err := h.registry.Close(c.Param("id")); err != nil {
		if errors.Is(err, registry.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document_not_open"})
			return
		}
		h.logger.Error("failed to close document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "close_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type importRequestPayload struct {
	SourceDocumentID string `json:"source_document_id"`
}

func (h *httpHandler) handleImportDocument(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	var request importRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.SourceDocumentID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	source, err := h.registry.Get(request.SourceDocumentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "source_not_open"})
		return
	}

	result, err := document.ImportFrom(c.Request.Context(), source)
	if err != nil {
		h.logger.Error("document import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type appendPatchPayload struct {
	Timestamp  int64   `json:"timestamp"`
	Kind       string  `json:"kind"`
	Data       string  `json:"data"`
	UUID       *string `json:"uuid"`
	ParentUUID *string `json:"parent_uuid"`
}

func (h *httpHandler) handleAppendPatch(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	var request appendPatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	patch, err := document.History().AppendPatch(c.Request.Context(), history.PatchInput{
		Timestamp:  request.Timestamp,
		Author:     c.GetString(collaboratorIDContextKey),
		Kind:       request.Kind,
		Data:       request.Data,
		UUID:       request.UUID,
		ParentUUID: request.ParentUUID,
	})
	if err != nil {
		if errors.Is(err, history.ErrDuplicateUUID) {
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate_uuid"})
			return
		}
		if errors.Is(err, history.ErrInvalidPatch) || errors.Is(err, history.ErrInvalidTimestamp) ||
			errors.Is(err, history.ErrInvalidAuthorID) || errors.Is(err, history.ErrEmptySnapshot) ||
			errors.Is(err, history.ErrSnapshotTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_patch"})
			return
		}
		h.logger.Error("failed to append patch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": patch.ID, "uuid": patch.UUID})
}

func (h *httpHandler) handleListPatches(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	patches, err := document.History().ListPatches(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list patches", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patches": patches})
}

func (h *httpHandler) handlePatchSummaries(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	summaries, err := document.History().PatchSummaries(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to summarize patches", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summaries_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return value, true
}

func (h *httpHandler) handleGetPatch(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	patchID, ok := parseID(c, "patchId")
	if !ok {
		return
	}
	patch, err := document.History().GetPatch(c.Request.Context(), patchID)
	if err != nil {
		if errors.Is(err, history.ErrPatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patch_not_found"})
			return
		}
		h.logger.Error("failed to load patch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed"})
		return
	}
	c.JSON(http.StatusOK, patch)
}

type snapshotRequestPayload struct {
	State string `json:"state"`
}

func (h *httpHandler) handleSaveSnapshot(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	patchID, ok := parseID(c, "patchId")
	if !ok {
		return
	}
	var request snapshotRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	snapshot, err := document.History().SaveSnapshot(c.Request.Context(), patchID, []byte(request.State))
	if err != nil {
		if errors.Is(err, history.ErrEmptySnapshot) || errors.Is(err, history.ErrSnapshotTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_snapshot"})
			return
		}
		if errors.Is(err, history.ErrPatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patch_not_found"})
			return
		}
		h.logger.Error("failed to save snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": snapshot.ID, "patch_id": snapshot.PatchID})
}

func (h *httpHandler) handleNearestSnapshot(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	patchID, err := strconv.ParseInt(c.Query("patch_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}
	snapshot, err := document.History().NearestSnapshotAt(c.Request.Context(), patchID)
	if err != nil {
		h.logger.Error("failed to load snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusOK, gin.H{"snapshot": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": gin.H{
		"id":        snapshot.ID,
		"patch_id":  snapshot.PatchID,
		"timestamp": snapshot.Timestamp,
		"state":     string(snapshot.State),
	}})
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	patchID, ok := parseID(c, "patchId")
	if !ok {
		return
	}
	content, err := document.History().RestoreTo(c.Request.Context(), patchID)
	if err != nil {
		if errors.Is(err, history.ErrPatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patch_not_found"})
			return
		}
		h.logger.Error("failed to restore checkpoint", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restore_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

func (h *httpHandler) handleScanConflicts(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	detected, err := document.ScanConflicts(c.Request.Context())
	if err != nil {
		h.logger.Error("conflict scan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": detected})
}

func (h *httpHandler) handleListConflicts(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	conflicts, err := document.Conflicts().ListUnresolved(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list conflicts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}

func (h *httpHandler) handleCountConflicts(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	count, err := document.Conflicts().CountUnresolved(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to count conflicts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type resolveRequestPayload struct {
	Status        string  `json:"status"`
	MergedContent *string `json:"merged_content"`
}

func (h *httpHandler) handleResolveConflict(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	var request resolveRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := document.Conflicts().Resolve(c.Request.Context(), c.Param("conflictId"), conflict.Status(request.Status), request.MergedContent)
	if err != nil {
		if errors.Is(err, conflict.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
			return
		}
		if errors.Is(err, conflict.ErrConflictNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conflict_not_found"})
			return
		}
		h.logger.Error("failed to resolve conflict", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type reviewRequestPayload struct {
	PatchUUID string `json:"patch_uuid"`
	Decision  string `json:"decision"`
}

func (h *httpHandler) handleRecordReview(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	var request reviewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reviewerID, err := history.NewReviewerID(c.GetString(collaboratorIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var reviewerName *string
	if name := c.GetString(collaboratorNameContextKey); name != "" {
		reviewerName = &name
	}

	review, err := document.History().RecordReview(c.Request.Context(), request.PatchUUID, reviewerID, history.ReviewDecision(request.Decision), reviewerName)
	if err != nil {
		if errors.Is(err, history.ErrInvalidDecision) || errors.Is(err, history.ErrInvalidPatchUUID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_review"})
			return
		}
		h.logger.Error("failed to record review", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "review_failed"})
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *httpHandler) handleReviewsFor(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	patchUUID := c.Query("patch_uuid")
	reviews, err := document.History().ReviewsFor(c.Request.Context(), patchUUID)
	if err != nil {
		if errors.Is(err, history.ErrInvalidPatchUUID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_patch_uuid"})
			return
		}
		h.logger.Error("failed to list reviews", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (h *httpHandler) handleNeedsReview(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	reviewerID, err := history.NewReviewerID(c.GetString(collaboratorIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	patches, err := document.History().NeedsReview(c.Request.Context(), reviewerID)
	if err != nil {
		h.logger.Error("failed to list pending reviews", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patches": patches})
}

func (h *httpHandler) handleParentStatus(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	reviewerID, err := history.NewReviewerID(c.GetString(collaboratorIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	status, err := document.History().ParentStatusFor(c.Request.Context(), c.Query("patch_uuid"), reviewerID)
	if err != nil {
		if errors.Is(err, history.ErrPatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "patch_not_found"})
			return
		}
		if errors.Is(err, history.ErrInvalidPatchUUID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_patch_uuid"})
			return
		}
		h.logger.Error("failed to resolve parent status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_failed"})
		return
	}
	c.JSON(http.StatusOK, status)
}

type commentRequestPayload struct {
	AuthorColor  *string `json:"author_color"`
	StartAnchor  string  `json:"start_anchor"`
	EndAnchor    string  `json:"end_anchor"`
	SelectedText string  `json:"selected_text"`
	Content      string  `json:"content"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	comment, err := document.History().AddComment(c.Request.Context(), history.CommentInput{
		Author:       c.GetString(collaboratorIDContextKey),
		AuthorColor:  request.AuthorColor,
		StartAnchor:  request.StartAnchor,
		EndAnchor:    request.EndAnchor,
		SelectedText: request.SelectedText,
		Content:      request.Content,
	})
	if err != nil {
		if errors.Is(err, history.ErrInvalidComment) || errors.Is(err, history.ErrInvalidAuthorID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment"})
			return
		}
		h.logger.Error("failed to add comment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comment_failed"})
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	comments, err := document.History().ListComments(c.Request.Context(), c.Query("status"))
	if err != nil {
		if errors.Is(err, history.ErrInvalidComment) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
			return
		}
		h.logger.Error("failed to list comments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type replyRequestPayload struct {
	AuthorColor *string `json:"author_color"`
	Content     string  `json:"content"`
}

func (h *httpHandler) handleReplyToComment(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	commentID, ok := parseID(c, "commentId")
	if !ok {
		return
	}
	var request replyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reply, err := document.History().ReplyToComment(c.Request.Context(), commentID, c.GetString(collaboratorIDContextKey), request.AuthorColor, request.Content)
	if err != nil {
		if errors.Is(err, history.ErrCommentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment_not_found"})
			return
		}
		if errors.Is(err, history.ErrInvalidComment) || errors.Is(err, history.ErrInvalidAuthorID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment"})
			return
		}
		h.logger.Error("failed to add reply", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply_failed"})
		return
	}
	c.JSON(http.StatusOK, reply)
}

type commentStatusPayload struct {
	Status string `json:"status"`
}

func (h *httpHandler) handleSetCommentStatus(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	commentID, ok := parseID(c, "commentId")
	if !ok {
		return
	}
	var request commentStatusPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := document.History().SetCommentStatus(c.Request.Context(), commentID, request.Status); err != nil {
		if errors.Is(err, history.ErrCommentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment_not_found"})
			return
		}
		if errors.Is(err, history.ErrInvalidComment) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
			return
		}
		h.logger.Error("failed to update comment status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	document, ok := h.document(c)
	if !ok {
		return
	}
	commentID, ok := parseID(c, "commentId")
	if !ok {
		return
	}
	if err := document.History().DeleteComment(c.Request.Context(), commentID); err != nil {
		if errors.Is(err, history.ErrCommentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment_not_found"})
			return
		}
		h.logger.Error("failed to delete comment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
