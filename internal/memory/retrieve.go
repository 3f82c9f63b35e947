package memory

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Retriever fetches the memories most similar to the current user text.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	prefix   string
	log      logrus.FieldLogger
}

func NewRetriever(embedder Embedder, index VectorIndex, prefix string, log logrus.FieldLogger) *Retriever {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Retriever{embedder: embedder, index: index, prefix: prefix, log: log}
}

// Retrieve returns up to topK memory texts in index order. Failures are logged
// and yield an empty list.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, topK int) []string {
	if userID == "" || topK <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	start := time.Now()
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.WithError(err).WithField("user_id", userID).Warn("memory_retrieve_embed_failed")
		return nil
	}
	matches, err := r.index.Query(ctx, Namespace(r.prefix, userID), emb, topK)
	if err != nil {
		r.log.WithError(err).WithField("user_id", userID).Warn("memory_retrieve_query_failed")
		return nil
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if t := m.Metadata["text"]; t != "" {
			texts = append(texts, t)
		}
	}
	r.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"count":      len(texts),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("memory_retrieved")
	return texts
}
