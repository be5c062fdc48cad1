package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbuild/internal/model"
)

// makeCatalog 每个类别 perCategory 个配件，价格 100, 200, ...
func makeCatalog(perCategory int) []model.Component {
	var items []model.Component
	for _, cat := range Categories {
		for i := 1; i <= perCategory; i++ {
			items = append(items, model.Component{
				ID:       fmt.Sprintf("%s-%d", cat, i),
				Name:     fmt.Sprintf("%s %d", cat, i),
				Price:    float64(i * 100),
				Category: cat,
			})
		}
	}
	return items
}

func ids(items []model.Component) []string {
	out := make([]string, 0, len(items))
	for _, c := range items {
		out = append(out, c.ID)
	}
	return out
}

func TestFilterWithoutBudgetReturnsWholeSmallCatalog(t *testing.T) {
	items := makeCatalog(5)
	got := Filter(items, 0, Options{})
	assert.ElementsMatch(t, ids(items), ids(got))

	got = Filter(items, -100, Options{})
	assert.Len(t, got, len(items))
}

func TestFilterWithoutBudgetSamplesLargeCatalog(t *testing.T) {
	items := makeCatalog(30) // 240
	got := Filter(items, 0, Options{})
	require.Len(t, got, DefaultSampleCap)

	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.ID], "duplicate %s", c.ID)
		seen[c.ID] = true
	}

	// 每次调用重新抽样
	different := false
	for i := 0; i < 10 && !different; i++ {
		again := Filter(items, 0, Options{})
		different = !assert.ObjectsAreEqual(ids(got), ids(again))
	}
	assert.True(t, different)
}

func TestFilterBudgetConservation(t *testing.T) {
	items := makeCatalog(50)
	// 同一个 ID 出现在两个类别里
	items = append(items, model.Component{ID: "gpu-1", Name: "dup", Price: 100, Category: CategoryCase})

	for _, budget := range []float64{500, 3000, 12000, 1e6} {
		got := Filter(items, budget, Options{})

		perCat := map[string]int{}
		seen := map[string]bool{}
		for _, c := range got {
			perCat[NormalizeCategory(c.Category)]++
			assert.False(t, seen[c.ID], "duplicate id %s at budget %v", c.ID, budget)
			seen[c.ID] = true
		}
		for cat, n := range perCat {
			assert.LessOrEqual(t, n, DefaultPerCategory, "category %s", cat)
		}
		assert.Len(t, perCat, len(Categories))
	}
}

func TestFilterRanksByDistanceToTarget(t *testing.T) {
	items := []model.Component{
		{ID: "g1", Price: 500, Category: "GPU"},
		{ID: "g2", Price: 950, Category: "Placa de Vídeo"},
		{ID: "g3", Price: 1000, Category: "gpu"},
		{ID: "g4", Price: 2500, Category: "gpu"},
		{ID: "c1", Price: 180, Category: "gabinete"},
	}
	// gpu 目标价 3000 * 0.32 = 960
	got := Filter(items, 3000, Options{PerCategory: 2})
	assert.Equal(t, []string{"g2", "g3", "c1"}, ids(got))
}

func TestFilterUnknownCategoryUsesDefaultShare(t *testing.T) {
	items := []model.Component{
		{ID: "fan-cheap", Price: 20, Category: "fan"},
		{ID: "fan-mid", Price: 150, Category: "fan"},
		{ID: "fan-pricey", Price: 400, Category: "fan"},
	}
	// 目标价 3000 * 0.05 = 150
	got := Filter(items, 3000, Options{PerCategory: 1})
	assert.Equal(t, []string{"fan-mid"}, ids(got))
	assert.Equal(t, DefaultShare, Share("fan"))
}

func TestFilterSkipsAbsentCategories(t *testing.T) {
	items := []model.Component{{ID: "cpu-1", Price: 900, Category: "cpu"}}
	got := Filter(items, 5000, Options{})
	assert.Equal(t, []string{"cpu-1"}, ids(got))
	assert.Empty(t, Filter(nil, 5000, Options{}))
}

func TestProportionsSumAtMostOne(t *testing.T) {
	sum := 0.0
	for _, cat := range Categories {
		sum += Share(cat)
	}
	assert.LessOrEqual(t, sum, 1.0)
	assert.Greater(t, Share(CategoryGPU), Share(CategoryProcessor))
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, CategoryProcessor, NormalizeCategory("CPU"))
	assert.Equal(t, CategoryGPU, NormalizeCategory("Placa de Vídeo"))
	assert.Equal(t, CategoryPowerSupply, NormalizeCategory("Fonte"))
	assert.Equal(t, CategoryCase, NormalizeCategory("Gabinete"))
	assert.Equal(t, CategoryMotherboard, NormalizeCategory("Placa-Mãe"))
	assert.Equal(t, "fan", NormalizeCategory(" FAN "))
}

func TestInferBrand(t *testing.T) {
	cases := map[string]string{
		"ASUS Dual GeForce RTX 4060 8GB": "ASUS",
		"Processador AMD Ryzen 5 5600":    "AMD",
		"Intel Core i5-12400F":            "Intel",
		"RTX 4070 Super":                  "NVIDIA",
		"Memória Kingston 16GB DDR4":      "Kingston",
		"SSD WD Blue SN580 1TB":           "Western Digital",
		"Fonte Corsair CV650":             "Corsair",
		"Radeon RX 7600":                  "AMD",
		"Gabinete genérico":               "",
		"Xrx cabinet":                     "",
	}
	for name, want := range cases {
		assert.Equal(t, want, InferBrand(name), name)
	}
}

func TestSummariesOnlyCarryPromptFields(t *testing.T) {
	link := "https://example.com/p/1"
	s := Summaries([]model.Component{{ID: "1", Name: "CPU", Price: 899, Category: "CPU", Link: &link}})
	require.Len(t, s, 1)
	assert.Equal(t, Summary{ID: "1", Name: "CPU", Price: 899, Category: CategoryProcessor}, s[0])
}

type countingSource struct {
	calls atomic.Int32
	items []model.Component
	err   error
}

func (s *countingSource) All(ctx context.Context) ([]model.Component, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func TestCacheLoadsOnce(t *testing.T) {
	src := &countingSource{items: makeCatalog(5)}
	cache := NewCache(src, Options{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := cache.Load(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 40, snap.Len())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())

	cache.Invalidate()
	_, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: ErrSourceAuth}
	cache := NewCache(src, Options{}, nil)

	_, err := cache.Load(context.Background())
	assert.ErrorIs(t, err, ErrSourceAuth)

	src.err = nil
	src.items = makeCatalog(1)
	snap, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, snap.Len())
}

func TestSnapshotCleansItems(t *testing.T) {
	src := &countingSource{items: []model.Component{
		{ID: " cpu-1 ", Name: "AMD Ryzen 5 5600", Price: 899, Category: "CPU"},
		{ID: "cpu-1", Name: "duplicate", Price: 1, Category: "CPU"},
		{ID: "", Name: "no id", Price: 10, Category: "CPU"},
		{ID: "neg", Name: "negative", Price: -1, Category: "CPU"},
	}}
	snap, err := NewCache(src, Options{}, nil).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())

	c, ok := snap.Lookup("cpu-1")
	require.True(t, ok)
	assert.Equal(t, CategoryProcessor, c.Category)
	require.NotNil(t, c.Brand)
	assert.Equal(t, "AMD", *c.Brand)

	_, ok = snap.Lookup("missing")
	assert.False(t, ok)
}

const sampleYAML = `components:
  - id: cpu-1
    name: AMD Ryzen 5 5600
    price: 899.00
    category: CPU
  - id: gpu-1
    name: RTX 4060
    price: 1899.90
    category: Placa de Vídeo
    link: https://example.com/gpu-1
`

func TestYAMLSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	items, err := NewYAMLSource(path).All(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1899.90, items[1].Price)
	require.NotNil(t, items[1].Link)

	_, err = NewYAMLSource(filepath.Join(t.TempDir(), "missing.yaml")).All(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

type fakeLister struct{ err error }

func (f fakeLister) ListAll(ctx context.Context) ([]model.Component, error) {
	return nil, f.err
}

func TestDBSourceClassifiesErrors(t *testing.T) {
	_, err := NewDBSource(fakeLister{err: errors.New("Error 1045: Access denied for user 'x'")}).All(context.Background())
	assert.ErrorIs(t, err, ErrSourceAuth)

	_, err = NewDBSource(fakeLister{err: errors.New("connection refused")}).All(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

type memSeeder struct {
	existing int64
	saved    []model.Component
}

func (m *memSeeder) Count(ctx context.Context) (int64, error) { return m.existing, nil }
func (m *memSeeder) UpsertBatch(ctx context.Context, items []model.Component) error {
	m.saved = append(m.saved, items...)
	return nil
}

func TestSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	s := &memSeeder{}
	n, err := Seed(context.Background(), s, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, CategoryGPU, s.saved[1].Category)

	s = &memSeeder{existing: 10}
	n, err = Seed(context.Background(), s, path)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, s.saved)
}
