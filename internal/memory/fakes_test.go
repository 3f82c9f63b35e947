package memory

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"tutorgate/internal/models"
	"tutorgate/internal/vector"
)

var errNoRows = sql.ErrNoRows

type staticExtractor struct {
	cands []models.MemoryCandidate
}

func (s staticExtractor) ExtractCandidates(context.Context, string, string) []models.MemoryCandidate {
	return s.cands
}

// hashEmbedder gives every distinct text its own pseudo-random direction.
// Entries in alias map a text onto another text's vector.
type hashEmbedder struct {
	alias map[string]string
	fail  map[string]bool
}

func (h hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if h.fail[text] {
		return nil, errors.New("embed failed")
	}
	if a, ok := h.alias[text]; ok {
		text = a
	}
	out := make([]float32, 16)
	for i := range out {
		f := fnv.New32a()
		f.Write([]byte(strconv.Itoa(i) + text))
		out[i] = float32(f.Sum32()%2000)/1000 - 1
	}
	return out, nil
}

type fakeIndex struct {
	mu        sync.Mutex
	matches   []vector.Match
	queryErr  error
	upsertErr error
	deleteErr error
	queries   int
	upserts   [][]vector.Entry
	upsertNS  []string
	deletes   [][]string
	deleteNS  []string
	droppedNS []string
}

func (f *fakeIndex) Upsert(_ context.Context, ns string, entries []vector.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, entries)
	f.upsertNS = append(f.upsertNS, ns)
	return f.upsertErr
}

func (f *fakeIndex) Query(context.Context, string, []float32, int) ([]vector.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return f.matches, f.queryErr
}

func (f *fakeIndex) Delete(_ context.Context, ns string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ids)
	f.deleteNS = append(f.deleteNS, ns)
	return f.deleteErr
}

func (f *fakeIndex) DropNamespace(_ context.Context, ns string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.droppedNS = append(f.droppedNS, ns)
	return f.deleteErr
}

type fakeItems struct {
	recent      []string
	recentErr   error
	insertErr   error
	recentCalls int
	inserts     [][]models.MemoryItem

	rows         map[string]models.MemoryItem
	deleteCalls  []string
	deletedUsers []string
}

func (f *fakeItems) RecentMemoryTexts(context.Context, string, int) ([]string, error) {
	f.recentCalls++
	return append([]string(nil), f.recent...), f.recentErr
}

func (f *fakeItems) InsertMemoryItems(_ context.Context, items []models.MemoryItem) error {
	f.inserts = append(f.inserts, items)
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, it := range items {
		f.recent = append([]string{it.Text}, f.recent...)
	}
	return nil
}

func (f *fakeItems) GetMemoryItem(_ context.Context, id string) (*models.MemoryItem, error) {
	it, ok := f.rows[id]
	if !ok {
		return nil, errNoRows
	}
	return &it, nil
}

func (f *fakeItems) DeleteMemoryItem(_ context.Context, id string) error {
	f.deleteCalls = append(f.deleteCalls, id)
	if _, ok := f.rows[id]; !ok {
		return errNoRows
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeItems) ListMemoryItems(_ context.Context, userID string, _ int) ([]models.MemoryItem, error) {
	var out []models.MemoryItem
	for _, it := range f.rows {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeItems) DeleteUser(_ context.Context, userID string) error {
	f.deletedUsers = append(f.deletedUsers, userID)
	return nil
}
