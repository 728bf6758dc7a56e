// Package memory indexes past conversation turns for semantic recall.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

const defaultCollection = "memories"

// Hit is one search result.
type Hit struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Similarity float32   `json:"similarity"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
	Bot        string    `json:"bot,omitempty"`
}

// Index is a chromem-go collection of remembered turns.
type Index struct {
	collection *chromem.Collection
	now        func() time.Time
}

// NewIndex builds an in-memory index using embed, or a persistent one when
// persistPath is set.
func NewIndex(embed chromem.EmbeddingFunc, persistPath string) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if persistPath != "" {
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("open memory db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	collection, err := db.GetOrCreateCollection(defaultCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create memory collection: %w", err)
	}
	return &Index{collection: collection, now: time.Now}, nil
}

// Remember stores the user/assistant text of one finished turn.
func (i *Index) Remember(ctx context.Context, botID string, msgs []ports.Message) error {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != ports.RoleUser && m.Role != ports.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(content)
	}
	if b.Len() == 0 {
		return nil
	}
	return i.collection.AddDocument(ctx, chromem.Document{
		ID:      uuid.NewString(),
		Content: b.String(),
		Metadata: map[string]string{
			"bot":        botID,
			"created_at": i.now().UTC().Format(time.RFC3339),
		},
	})
}

// Search returns up to limit memories most similar to query.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}
	limit = min(limit, i.collection.Count())
	if limit == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	results, err := i.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hit := Hit{ID: r.ID, Content: r.Content, Similarity: r.Similarity, Bot: r.Metadata["bot"]}
		if ts, err := time.Parse(time.RFC3339, r.Metadata["created_at"]); err == nil {
			hit.CreatedAt = ts
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of stored memories.
func (i *Index) Count() int {
	return i.collection.Count()
}
