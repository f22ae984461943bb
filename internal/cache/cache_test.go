package cache

import (
	"strconv"
	"testing"
	"time"

	"expense-ledger/internal/config"
	"expense-ledger/internal/models"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory stand-in for memcached with the same miss and
// not-stored semantics.
type fakeClient struct {
	items map[string]*memcache.Item
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[string]*memcache.Item{}}
}

func (f *fakeClient) Get(key string) (*memcache.Item, error) {
	item, ok := f.items[key]
	if !ok {
		return nil, memcache.ErrCacheMiss
	}
	return item, nil
}

func (f *fakeClient) Set(item *memcache.Item) error {
	f.items[item.Key] = item
	return nil
}

func (f *fakeClient) Add(item *memcache.Item) error {
	if _, ok := f.items[item.Key]; ok {
		return memcache.ErrNotStored
	}
	f.items[item.Key] = item
	return nil
}

func (f *fakeClient) Increment(key string, delta uint64) (uint64, error) {
	item, ok := f.items[key]
	if !ok {
		return 0, memcache.ErrCacheMiss
	}
	n, err := strconv.ParseUint(string(item.Value), 10, 64)
	if err != nil {
		return 0, err
	}
	n += delta
	item.Value = []byte(strconv.FormatUint(n, 10))
	return n, nil
}

func newTestMemcache(t *testing.T, ttl time.Duration) (*Memcache, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	m := newMemcache(fc, ttl)
	m.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m, fc
}

func TestNew_WithoutHostsIsNop(t *testing.T) {
	c, err := New(config.Cache{StatsTTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, c)

	require.NoError(t, c.Set(1, 0, models.ExpenseStats{Total: 5}))
	_, _, ok, err := c.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(1))
}

func TestNew_UnreachableMemcache(t *testing.T) {
	_, err := New(config.Cache{MemcacheHosts: []string{"127.0.0.1:1"}, StatsTTL: time.Minute})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "stats-gen:42", genKey(42))
	assert.Equal(t, "stats:42:7", statsKey(42, 7))
}

func TestMemcache_RoundTrip(t *testing.T) {
	m, _ := newTestMemcache(t, time.Minute)

	_, gen, ok, err := m.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)

	want := models.ExpenseStats{
		Total:   30,
		Average: 15,
		Top:     []models.Expense{{ID: 2, Title: "b", Amount: 20, UserID: 1}, {ID: 1, Title: "a", Amount: 10, UserID: 1}},
	}
	require.NoError(t, m.Set(1, gen, want))

	got, gotGen, ok, err := m.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, gen, gotGen)
	assert.Equal(t, want.Total, got.Total)
	assert.Equal(t, want.Average, got.Average)
	require.Len(t, got.Top, 2)
	assert.Equal(t, "b", got.Top[0].Title)

	_, _, ok, err = m.Get(2)
	require.NoError(t, err)
	assert.False(t, ok, "other users have their own entries")
}

func TestMemcache_EmptyTopStaysEmptyList(t *testing.T) {
	m, fc := newTestMemcache(t, time.Minute)

	_, gen, _, err := m.Get(1)
	require.NoError(t, err)
	require.NoError(t, m.Set(1, gen, models.ExpenseStats{}))

	assert.JSONEq(t, `{"total_spending":0,"average_spending":0,"top_3_expenses":[]}`,
		string(fc.items[statsKey(1, gen)].Value))

	got, _, ok, err := m.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, got.Top)
	assert.Empty(t, got.Top)
}

func TestMemcache_InvalidateHidesEntryWrittenBeforeIt(t *testing.T) {
	m, _ := newTestMemcache(t, time.Minute)

	// a reader takes the generation, a writer invalidates, then the reader stores
	_, gen, _, err := m.Get(1)
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(1))
	require.NoError(t, m.Set(1, gen, models.ExpenseStats{Total: 10}))

	_, newGen, ok, err := m.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEqual(t, gen, newGen)
}

func TestMemcache_InvalidateWithoutGeneration(t *testing.T) {
	m, fc := newTestMemcache(t, time.Minute)

	require.NoError(t, m.Invalidate(1))
	assert.Empty(t, fc.items)
}

func TestMemcache_EvictedGenerationIsReseeded(t *testing.T) {
	m, fc := newTestMemcache(t, time.Minute)

	_, gen, _, err := m.Get(1)
	require.NoError(t, err)
	require.NoError(t, m.Set(1, gen, models.ExpenseStats{Total: 10}))

	delete(fc.items, genKey(1))
	m.now = func() time.Time { return time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC) }

	_, reseeded, ok, err := m.Get(1)
	require.NoError(t, err)
	assert.False(t, ok, "entries from before the eviction are unreachable")
	assert.NotEqual(t, gen, reseeded)
}

func TestMemcache_CorruptEntry(t *testing.T) {
	m, fc := newTestMemcache(t, time.Minute)

	_, gen, _, err := m.Get(1)
	require.NoError(t, err)
	fc.items[statsKey(1, gen)] = &memcache.Item{Key: statsKey(1, gen), Value: []byte("{broken")}

	_, _, ok, err := m.Get(1)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMemcache_SetUsesTTL(t *testing.T) {
	m, fc := newTestMemcache(t, 90*time.Second)

	require.NoError(t, m.Set(1, 5, models.ExpenseStats{}))
	assert.Equal(t, int32(90), fc.items[statsKey(1, 5)].Expiration)
}

func TestExpiration(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{0, 0},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{5 * time.Minute, 300},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expiration(tt.ttl), "ttl %s", tt.ttl)
	}
}
