package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/redlinehq/redline/backend/internal/conflict"
	"github.com/redlinehq/redline/backend/internal/database"
	"github.com/redlinehq/redline/backend/internal/history"
)

var (
	errMissingRootDir = errors.New("document root directory is required")
	// ErrDocumentNotFound indicates that no open document matches the requested id.
	ErrDocumentNotFound = errors.New("registry: document not open")
	// ErrInvalidDocumentID indicates an empty or path-escaping document id.
	ErrInvalidDocumentID = errors.New("registry: invalid document id")
	// ErrNoActiveDocument indicates that no document has been marked active.
	ErrNoActiveDocument = errors.New("registry: no active document")
)

// Document is one open history store with its services. Operations that span
// multiple statements take the document's own lock, so work on one document
// never blocks another.
type Document struct {
	id        string
	path      string
	mu        sync.Mutex
	db        *gorm.DB
	history   *history.Service
	conflicts *conflict.Store
	detector  *conflict.Detector
}

// ID returns the registry key of this document.
func (d *Document) ID() string {
	return d.id
}

// Path returns the filesystem location of the backing store.
func (d *Document) Path() string {
	return d.path
}

// History returns the patch, snapshot, review, and comment service.
func (d *Document) History() *history.Service {
	return d.history
}

// Conflicts returns the conflict persistence layer.
func (d *Document) Conflicts() *conflict.Store {
	return d.conflicts
}

// ScanConflicts runs detection over the full patch history and persists every
// finding idempotently, returning the conflicts found in this pass.
func (d *Document) ScanConflicts(ctx context.Context) ([]conflict.Conflict, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	patches, err := d.history.ListPatches(ctx)
	if err != nil {
		return nil, err
	}
	detected := d.detector.Detect(patches)
	if err := d.conflicts.SaveAll(ctx, detected); err != nil {
		return nil, err
	}
	return detected, nil
}

// ImportFrom merges another open document's history into this one. Both
// documents are locked for the duration, ordered by id to avoid deadlock.
func (d *Document) ImportFrom(ctx context.Context, source *Document) (history.ImportResult, error) {
	if source == nil {
		return history.ImportResult{}, fmt.Errorf("%w: nil source", ErrDocumentNotFound)
	}
	if source.id == d.id {
		return history.ImportResult{}, fmt.Errorf("%w: cannot import a document into itself", ErrInvalidDocumentID)
	}

	first, second := d, source
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	return d.history.ImportFrom(ctx, source.history)
}

func (d *Document) close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type RegistryConfig struct {
	RootDir      string
	WindowMillis int64
	Clock        func() time.Time
	IDProvider   history.IDProvider
	Logger       *zap.Logger
}

// Registry tracks every open document store. The registry lock guards only
// the map; per-document work runs under each document's own lock.
type Registry struct {
	mu        sync.RWMutex
	documents map[string]*Document
	activeID  string

	rootDir      string
	windowMillis int64
	clock        func() time.Time
	idProvider   history.IDProvider
	logger       *zap.Logger
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return nil, errMissingRootDir
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = history.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.WindowMillis
	if window <= 0 {
		window = conflict.DefaultWindowMillis
	}

	return &Registry{
		documents:    make(map[string]*Document),
		rootDir:      cfg.RootDir,
		windowMillis: window,
		clock:        clock,
		idProvider:   idProvider,
		logger:       logger,
	}, nil
}

func validateDocumentID(documentID string) error {
	trimmed := strings.TrimSpace(documentID)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if trimmed != filepath.Base(trimmed) || trimmed == "." || trimmed == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidDocumentID, documentID)
	}
	return nil
}

// Open returns the document registered under the id, opening its backing
// store on first use.
func (r *Registry) Open(documentID string) (*Document, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.documents[documentID]; ok {
		return existing, nil
	}

	path := filepath.Join(r.rootDir, documentID+".db")
	db, err := database.OpenDocument(path, r.logger)
	if err != nil {
		return nil, err
	}

	historyService, err := history.NewService(history.ServiceConfig{
		Database:   db,
		Clock:      r.clock,
		IDProvider: r.idProvider,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, err
	}
	conflictStore, err := conflict.NewStore(conflict.StoreConfig{
		Database: db,
		Clock:    r.clock,
		Logger:   r.logger,
	})
	if err != nil {
		return nil, err
	}
	detector := conflict.NewDetector(conflict.DetectorConfig{
		WindowMillis: r.windowMillis,
		Clock:        r.clock,
		Logger:       r.logger,
	})

	document := &Document{
		id:        documentID,
		path:      path,
		db:        db,
		history:   historyService,
		conflicts: conflictStore,
		detector:  detector,
	}
	r.documents[documentID] = document

	r.logger.Info("document opened",
		zap.String("document_id", documentID),
		zap.String("path", path))

	return document, nil
}

// Get returns an already open document.
func (r *Registry) Get(documentID string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	document, ok := r.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return document, nil
}

// List returns the ids of every open document, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.documents))
	for id := range r.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetActive marks an open document as the current one.
func (r *Registry) SetActive(documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[documentID]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	r.activeID = documentID
	return nil
}

// Active returns the currently active document.
func (r *Registry) Active() (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.activeID == "" {
		return nil, ErrNoActiveDocument
	}
	document, ok := r.documents[r.activeID]
	if !ok {
		return nil, ErrNoActiveDocument
	}
	return document, nil
}

// Close removes a document from the registry and releases its store.
func (r *Registry) Close(documentID string) error {
	r.mu.Lock()
	document, ok := r.documents[documentID]
	if ok {
		delete(r.documents, documentID)
		if r.activeID == documentID {
			r.activeID = ""
		}
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	document.mu.Lock()
	defer document.mu.Unlock()
	if err := document.close(); err != nil {
		r.logger.Warn("document close failed",
			zap.String("document_id", documentID),
			zap.Error(err))
		return err
	}

	r.logger.Info("document closed", zap.String("document_id", documentID))
	return nil
}

// CloseAll releases every open document, keeping the first error.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, id := range r.List() {
		if err := r.Close(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
