package embedder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"flipper/internal/model"
	"flipper/internal/pkg/redisqueue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu       sync.Mutex
	products map[string]*model.Product
	missing  []model.Product
	saved    map[string][]float64
}

func (m *mockStore) GetProduct(_ context.Context, id string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func (m *mockStore) MissingEmbeddings(_ context.Context, limit int) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.missing) > limit {
		return m.missing[:limit], nil
	}
	return m.missing, nil
}

func (m *mockStore) SetEmbedding(_ context.Context, productID string, embedding []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string][]float64)
	}
	m.saved[productID] = embedding
	return nil
}

type mockProvider struct {
	mu    sync.Mutex
	calls int
	vecs  map[string][]float64
	err   error
}

func (m *mockProvider) Embed(_ context.Context, imageURL string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vec, ok := m.vecs[imageURL]
	if !ok {
		return nil, errors.New("unknown image")
	}
	return vec, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]float64
}

func (m *mapCache) Get(_ context.Context, imageURL string) ([]float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec, ok := m.data[imageURL]
	return vec, ok, nil
}

func (m *mapCache) Put(_ context.Context, imageURL string, vec []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]float64)
	}
	m.data[imageURL] = vec
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJobsClient(t *testing.T) *redisqueue.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	jobs, err := redisqueue.NewClient(rdb)
	if err != nil {
		t.Fatalf("redisqueue.NewClient: %v", err)
	}
	return jobs
}

func newTestBackfiller(t *testing.T, store *mockStore, provider *mockProvider, cache Cache) *Backfiller {
	t.Helper()
	return New(store, provider, cache, newJobsClient(t), testLogger(),
		1, 16, time.Minute, 10, time.Minute, time.Minute)
}

func TestProcessProductAveragesImageEmbeddings(t *testing.T) {
	product := model.NewFixedPriceProduct("p1", "seller", "Lamp", 20)
	product.Images = []string{"img-a", "img-b"}

	store := &mockStore{products: map[string]*model.Product{"p1": product}}
	provider := &mockProvider{vecs: map[string][]float64{
		"img-a": {1, 2},
		"img-b": {3, 4},
	}}
	b := newTestBackfiller(t, store, provider, &mapCache{})

	if err := b.processProduct(context.Background(), "p1"); err != nil {
		t.Fatalf("processProduct: %v", err)
	}

	got := store.saved["p1"]
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("saved embedding = %v, want [2 3]", got)
	}
}

func TestProcessProductUsesCache(t *testing.T) {
	product := model.NewFixedPriceProduct("p1", "seller", "Lamp", 20)
	product.Images = []string{"img-a"}

	store := &mockStore{products: map[string]*model.Product{"p1": product}}
	provider := &mockProvider{err: errors.New("provider must not be called")}
	cache := &mapCache{data: map[string][]float64{"img-a": {5, 6}}}
	b := newTestBackfiller(t, store, provider, cache)

	if err := b.processProduct(context.Background(), "p1"); err != nil {
		t.Fatalf("processProduct: %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times despite cache hit", provider.calls)
	}
	if got := store.saved["p1"]; len(got) != 2 || got[0] != 5 {
		t.Fatalf("saved embedding = %v, want [5 6]", got)
	}
}

func TestProcessProductWritesCache(t *testing.T) {
	product := model.NewFixedPriceProduct("p1", "seller", "Lamp", 20)
	product.Images = []string{"img-a"}

	store := &mockStore{products: map[string]*model.Product{"p1": product}}
	provider := &mockProvider{vecs: map[string][]float64{"img-a": {1}}}
	cache := &mapCache{}
	b := newTestBackfiller(t, store, provider, cache)

	if err := b.processProduct(context.Background(), "p1"); err != nil {
		t.Fatalf("processProduct: %v", err)
	}
	if _, ok := cache.data["img-a"]; !ok {
		t.Fatal("resolved embedding not written to cache")
	}
}

func TestProcessProductSkipsAlreadyEmbedded(t *testing.T) {
	product := model.NewFixedPriceProduct("p1", "seller", "Lamp", 20)
	product.Images = []string{"img-a"}
	product.Embedding = []float64{1, 2}

	store := &mockStore{products: map[string]*model.Product{"p1": product}}
	provider := &mockProvider{}
	b := newTestBackfiller(t, store, provider, &mapCache{})

	if err := b.processProduct(context.Background(), "p1"); err != nil {
		t.Fatalf("processProduct: %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called for already-embedded product")
	}
	if len(store.saved) != 0 {
		t.Fatalf("embedding rewritten: %v", store.saved)
	}
}

func TestProcessProductAllImagesFail(t *testing.T) {
	product := model.NewFixedPriceProduct("p1", "seller", "Lamp", 20)
	product.Images = []string{"img-a"}

	store := &mockStore{products: map[string]*model.Product{"p1": product}}
	provider := &mockProvider{err: errors.New("provider down")}
	b := newTestBackfiller(t, store, provider, &mapCache{})

	if err := b.processProduct(context.Background(), "p1"); err == nil {
		t.Fatal("expected error when no image resolves")
	}
	if len(store.saved) != 0 {
		t.Fatalf("partial failure wrote an embedding: %v", store.saved)
	}
}

func TestDispatchOnceEnqueuesAndDeduplicates(t *testing.T) {
	p1 := model.NewFixedPriceProduct("p1", "seller", "Lamp", 20)
	p1.Images = []string{"img-a"}
	p2 := model.NewFixedPriceProduct("p2", "seller", "Bike", 100)
	p2.Images = []string{"img-b"}

	store := &mockStore{missing: []model.Product{*p1, *p2}}
	b := newTestBackfiller(t, store, &mockProvider{}, &mapCache{})
	ctx := context.Background()

	b.dispatchOnce(ctx)
	depth, err := b.jobs.Depth(ctx)
	if err != nil || depth != 2 {
		t.Fatalf("Depth = %d, %v; want 2", depth, err)
	}

	// 再次调度不能重复入队
	b.dispatchOnce(ctx)
	depth, _ = b.jobs.Depth(ctx)
	if depth != 2 {
		t.Fatalf("Depth after redispatch = %d, want 2", depth)
	}
}

func TestRunBackfillsEndToEnd(t *testing.T) {
	product := model.NewFixedPriceProduct("p1", "seller", "Lamp", 20)
	product.Images = []string{"img-a"}

	store := &mockStore{
		products: map[string]*model.Product{"p1": product},
		missing:  []model.Product{*product},
	}
	provider := &mockProvider{vecs: map[string][]float64{"img-a": {7, 8}}}
	b := newTestBackfiller(t, store, provider, &mapCache{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Run(ctx)
	defer b.Shutdown(time.Second)

	deadline := time.After(5 * time.Second)
	for {
		store.mu.Lock()
		_, done := store.saved["p1"]
		store.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("backfill did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
