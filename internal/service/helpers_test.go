package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu         sync.Mutex
	orders     []*models.OrderCreatedEvent
	stockLevel []*models.StockLevelEvent
	restocked  []*models.ProductRestockedEvent
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, e)
	return nil
}

func (p *recordingPublisher) PublishStockLevelChanged(_ context.Context, e *models.StockLevelEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stockLevel = append(p.stockLevel, e)
	return nil
}

func (p *recordingPublisher) PublishProductRestocked(_ context.Context, e *models.ProductRestockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restocked = append(p.restocked, e)
	return nil
}

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}}
}

func (b *memoryBlobs) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if b.failOn != "" && strings.HasSuffix(key, b.failOn) {
		return "", errors.New("disk full")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return "http://blobs.test/" + key, nil
}

func (b *memoryBlobs) Backend() string { return "local" }

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) ReserveIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ""
	return true, nil
}

func (m *memoryIdempotency) CompleteIdempotencyKey(_ context.Context, key, result string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = result
	return nil
}

func (m *memoryIdempotency) GetIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		return "", false, nil
	}
	return v, v == "", nil
}

func (m *memoryIdempotency) DeleteIdempotencyKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedProduct(t *testing.T, store docstore.Store, p models.Product) string {
	t.Helper()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	id, err := store.Add(context.Background(), models.CollectionProducts, p)
	require.NoError(t, err)
	return id
}

func seedUser(t *testing.T, store docstore.Store, u models.User) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), models.CollectionUsers, u.ID, u))
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

// flakyStore fails product updates after the first okUpdates succeed.
type flakyStore struct {
	docstore.Store
	mu        sync.Mutex
	okUpdates int
}

func (s *flakyStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if collection == models.CollectionProducts {
		s.mu.Lock()
		if s.okUpdates <= 0 {
			s.mu.Unlock()
			return errors.New("connection reset")
		}
		s.okUpdates--
		s.mu.Unlock()
	}
	return s.Store.Update(ctx, collection, id, partial)
}
