package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/redlinehq/redline/backend/internal/history"
)

// DefaultWindowMillis is the concurrency window applied when none is configured.
const DefaultWindowMillis = 5000

type editKind int

const (
	editInsert editKind = iota
	editDelete
	editReplace
)

// editInfo is one decoded edit operation with its provenance.
type editInfo struct {
	start     int
	end       int
	content   string
	author    string
	timestamp int64
	kind      editKind
}

type DetectorConfig struct {
	WindowMillis int64
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Detector finds concurrent edits from different authors whose spans collide.
type Detector struct {
	windowMillis int64
	clock        func() time.Time
	logger       *zap.Logger
}

func NewDetector(cfg DetectorConfig) *Detector {
	window := cfg.WindowMillis
	if window <= 0 {
		window = DefaultWindowMillis
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{windowMillis: window, clock: clock, logger: logger}
}

// Detect scans patches in timestamp order and returns every collision between
// edits from different authors made within the concurrency window. Malformed
// or unrecognized operations are skipped; the skip count is logged so silent
// loss stays observable.
func (d *Detector) Detect(patches []history.Patch) []Conflict {
	conflicts := make([]Conflict, 0)
	skippedOperations := 0

	for _, group := range d.groupByTimeWindow(patches) {
		authors := make(map[string]struct{}, len(group))
		for _, patch := range group {
			authors[patch.Author] = struct{}{}
		}
		if len(authors) < 2 {
			continue
		}

		edits := make([]editInfo, 0, len(group))
		for _, patch := range group {
			decoded, skipped := decodeEditOperations(patch)
			edits = append(edits, decoded...)
			skippedOperations += skipped
		}

		for i := 0; i < len(edits); i++ {
			for j := i + 1; j < len(edits); j++ {
				if edits[i].author == edits[j].author {
					continue
				}
				if !editsCollide(edits[i], edits[j]) {
					continue
				}
				conflicts = append(conflicts, d.buildConflict(edits[i], edits[j]))
			}
		}
	}

	if skippedOperations > 0 {
		d.logger.Warn("skipped undecodable edit operations during conflict scan",
			zap.Int("skipped_operations", skippedOperations),
			zap.Int("patches", len(patches)))
	}

	return conflicts
}

// groupByTimeWindow chains patches into groups: a patch joins the current
// group when it lands within the window of the PREVIOUS admitted patch, so a
// long run of closely spaced edits stays together even when its endpoints are
// further apart than the window.
func (d *Detector) groupByTimeWindow(patches []history.Patch) [][]history.Patch {
	if len(patches) == 0 {
		return nil
	}

	groups := make([][]history.Patch, 0)
	current := []history.Patch{patches[0]}
	anchor := patches[0].Timestamp

	for _, patch := range patches[1:] {
		if patch.Timestamp-anchor <= d.windowMillis {
			current = append(current, patch)
			anchor = patch.Timestamp
			continue
		}
		groups = append(groups, current)
		current = []history.Patch{patch}
		anchor = patch.Timestamp
	}
	groups = append(groups, current)

	return groups
}

type rawOperation struct {
	Kind         string  `json:"kind"`
	At           *int    `json:"at"`
	Range        []int   `json:"range"`
	InsertedText *string `json:"insertedText"`
	DeletedText  *string `json:"deletedText"`
}

// decodeEditOperations flattens a fine-grained edit patch into edit
// operations. Only payloads shaped as an operation list contribute; checkpoint
// payloads and junk decode to nothing. The second return value counts
// operations that were present but undecodable.
func decodeEditOperations(patch history.Patch) ([]editInfo, int) {
	var operations []json.RawMessage
	if err := json.Unmarshal([]byte(patch.Data), &operations); err != nil {
		return nil, 0
	}

	edits := make([]editInfo, 0, len(operations))
	skipped := 0
	for _, rawOp := range operations {
		var op rawOperation
		if err := json.Unmarshal(rawOp, &op); err != nil {
			skipped++
			continue
		}

		switch op.Kind {
		case "insert_text":
			if op.At == nil || op.InsertedText == nil {
				skipped++
				continue
			}
			edits = append(edits, editInfo{
				start:     *op.At,
				end:       *op.At,
				content:   *op.InsertedText,
				author:    patch.Author,
				timestamp: patch.Timestamp,
				kind:      editInsert,
			})
		case "delete_text":
			if len(op.Range) != 2 {
				skipped++
				continue
			}
			deleted := ""
			if op.DeletedText != nil {
				deleted = *op.DeletedText
			}
			edits = append(edits, editInfo{
				start:     op.Range[0],
				end:       op.Range[1],
				content:   deleted,
				author:    patch.Author,
				timestamp: patch.Timestamp,
				kind:      editDelete,
			})
		case "replace_text":
			if len(op.Range) != 2 {
				skipped++
				continue
			}
			inserted := ""
			if op.InsertedText != nil {
				inserted = *op.InsertedText
			}
			edits = append(edits, editInfo{
				start:     op.Range[0],
				end:       op.Range[1],
				content:   inserted,
				author:    patch.Author,
				timestamp: patch.Timestamp,
				kind:      editReplace,
			})
		default:
			skipped++
		}
	}

	return edits, skipped
}

// editsCollide reports whether two edits from different authors clash. Two
// insertions clash only at the same position; every other pairing clashes when
// the half-open ranges overlap.
func editsCollide(a, b editInfo) bool {
	if a.kind == editInsert && b.kind == editInsert {
		return a.start == b.start
	}
	return a.start < b.end && b.start < a.end
}

func classify(local, remote editInfo) Type {
	switch {
	case local.kind == editInsert && remote.kind == editInsert:
		return TypeConcurrentInsert
	case (local.kind == editDelete && remote.kind == editReplace) ||
		(local.kind == editReplace && remote.kind == editDelete):
		return TypeDeleteModify
	default:
		return TypeOverlappingEdit
	}
}

func (d *Detector) buildConflict(local, remote editInfo) Conflict {
	baseStart := local.start
	if remote.start < baseStart {
		baseStart = remote.start
	}
	baseEnd := local.end
	if remote.end > baseEnd {
		baseEnd = remote.end
	}

	return Conflict{
		// Stable for a (local ts, remote ts, local start) triple so
		// re-detection over the same history dedupes on insert.
		ID:   fmt.Sprintf("%d-%d-%d", local.timestamp, remote.timestamp, local.start),
		Type: classify(local, remote),
		BaseVersion: TextSpan{
			Start:   baseStart,
			End:     baseEnd,
			Content: "",
			Author:  baseAuthor,
		},
		LocalVersion: TextSpan{
			Start:     local.start,
			End:       local.end,
			Content:   local.content,
			Author:    local.author,
			Timestamp: local.timestamp,
		},
		RemoteVersion: TextSpan{
			Start:     remote.start,
			End:       remote.end,
			Content:   remote.content,
			Author:    remote.author,
			Timestamp: remote.timestamp,
		},
		Status:     StatusUnresolved,
		DetectedAt: d.clock().UTC().UnixMilli(),
	}
}
