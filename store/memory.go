package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-prices/models"
)

// MemoryStore keeps price documents in memory with the same merge semantics
// as MongoStore. It backs dry runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]interface{}
	now  func() time.Time
}

// NewMemoryStore returns an empty store stamped with the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]interface{}),
		now:  time.Now,
	}
}

// Put replaces a document wholesale.
func (s *MemoryStore) Put(documentID string, fields map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		doc[k] = v
	}
	s.docs[documentID] = doc
}

// Get returns a copy of a document.
func (s *MemoryStore) Get(documentID string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// UpsertPrices merges the tier prices and a timestamp into the document.
func (s *MemoryStore) UpsertPrices(ctx context.Context, documentID string, prices models.Prices) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("document id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok {
		doc = make(map[string]interface{})
		s.docs[documentID] = doc
	}
	doc[FieldOneHundred] = prices.OneHundred
	doc[FieldOneFifty] = prices.OneFifty
	doc[FieldTwoHundred] = prices.TwoHundred
	doc[FieldLastUpdated] = s.now()
	return nil
}
