package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tutorgate/internal/models"
	"tutorgate/internal/vector"
)

const (
	MinTextLen       = 12
	MaxTextLen       = 160
	MinImportance    = 4
	MaxSavePerTurn   = 5
	baselineLimit    = 50
	vectorDedupTopK  = 1
	DefaultNamespace = "mem"
)

// Namespace is the vector namespace holding userID's memories.
func Namespace(prefix, userID string) string {
	if prefix == "" {
		prefix = DefaultNamespace
	}
	return prefix + ":" + userID
}

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the namespace-scoped vector store.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, entries []vector.Entry) error
	Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vector.Match, error)
	Delete(ctx context.Context, namespace string, ids []string) error
}

// ItemStore is the structured log of saved memories.
type ItemStore interface {
	RecentMemoryTexts(ctx context.Context, userID string, limit int) ([]string, error)
	InsertMemoryItems(ctx context.Context, items []models.MemoryItem) error
}

// CandidateExtractor is satisfied by *Extractor.
type CandidateExtractor interface {
	ExtractCandidates(ctx context.Context, userText, assistantText string) []models.MemoryCandidate
}

type WriteRequest struct {
	UserID        string
	SessionID     string
	UserText      string
	AssistantText string
}

type WriteResult struct {
	Saved            int `json:"saved"`
	SkippedDuplicate int `json:"skipped_duplicate"`
}

// StageError records which pipeline stage failed. Write reports these but
// its WriteResult stays valid.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("memory %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Writer runs extraction, filtering, dedup and the dual-store commit.
type Writer struct {
	extractor CandidateExtractor
	embedder  Embedder
	index     VectorIndex
	items     ItemStore
	prefix    string
	log       logrus.FieldLogger

	newVectorID func() string
}

func NewWriter(extractor CandidateExtractor, embedder Embedder, index VectorIndex, items ItemStore, prefix string, log logrus.FieldLogger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{
		extractor:   extractor,
		embedder:    embedder,
		index:       index,
		items:       items,
		prefix:      prefix,
		log:         log,
		newVectorID: uuid.NewString,
	}
}

// Write never fails the caller: the returned error is informational and may
// join several StageErrors.
func (w *Writer) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	start := time.Now()
	var res WriteResult
	var errs []error

	cands := w.extractor.ExtractCandidates(ctx, req.UserText, req.AssistantText)
	if len(cands) == 0 {
		return res, nil
	}

	baseline, err := w.items.RecentMemoryTexts(ctx, req.UserID, baselineLimit)
	if err != nil {
		errs = append(errs, &StageError{Stage: "baseline", Err: err})
		baseline = nil
	}

	ns := Namespace(w.prefix, req.UserID)
	var (
		entries []vector.Entry
		rows    []models.MemoryItem
	)
	for _, c := range cands {
		if len(entries) >= MaxSavePerTurn {
			break
		}
		if c.Importance < MinImportance {
			continue
		}
		if n := utf8.RuneCountInString(Normalize(c.Text)); n < MinTextLen || n > MaxTextLen {
			continue
		}
		if IsTextDuplicate(c.Text, baseline, DefaultRatioThreshold) {
			res.SkippedDuplicate++
			continue
		}

		emb, err := w.embedder.Embed(ctx, c.Text)
		if err != nil {
			errs = append(errs, &StageError{Stage: "embed", Err: err})
			continue
		}
		matches, err := w.index.Query(ctx, ns, emb, vectorDedupTopK)
		if err != nil {
			errs = append(errs, &StageError{Stage: "vector_query", Err: err})
			continue
		}
		if IsVectorDuplicate(matches, DefaultScoreThreshold) {
			res.SkippedDuplicate++
			continue
		}

		vid := w.newVectorID()
		entries = append(entries, vector.Entry{
			ID:        vid,
			Embedding: emb,
			Content:   c.Text,
			Metadata: map[string]string{
				"text":       c.Text,
				"kind":       c.Kind,
				"importance": strconv.Itoa(c.Importance),
				"session_id": req.SessionID,
			},
		})
		rows = append(rows, models.MemoryItem{
			UserID:     req.UserID,
			SessionID:  req.SessionID,
			Kind:       c.Kind,
			Text:       c.Text,
			Source:     models.MemorySourceChat,
			VectorID:   vid,
			Importance: c.Importance,
		})
		baseline = append(baseline, c.Text)
	}

	if len(entries) > 0 {
		if err := w.commit(ctx, ns, entries, rows); err != nil {
			errs = append(errs, err)
		} else {
			res.Saved = len(entries)
		}
	}

	w.log.WithFields(logrus.Fields{
		"user_id":           req.UserID,
		"session_id":        req.SessionID,
		"candidates":        len(cands),
		"saved":             res.Saved,
		"skipped_duplicate": res.SkippedDuplicate,
		"elapsed_ms":        time.Since(start).Milliseconds(),
	}).Info("memory_write_done")
	return res, errors.Join(errs...)
}

// commit upserts vectors first; a failed row insert removes them again.
func (w *Writer) commit(ctx context.Context, ns string, entries []vector.Entry, rows []models.MemoryItem) error {
	if err := w.index.Upsert(ctx, ns, entries); err != nil {
		return &StageError{Stage: "vector_upsert", Err: err}
	}
	if err := w.items.InsertMemoryItems(ctx, rows); err != nil {
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		if derr := w.index.Delete(context.WithoutCancel(ctx), ns, ids); derr != nil {
			w.log.WithError(derr).WithField("vector_ids", ids).Error("memory_compensate_failed")
		}
		return &StageError{Stage: "row_insert", Err: err}
	}
	return nil
}
