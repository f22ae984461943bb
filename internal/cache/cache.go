// Package cache keeps computed expense statistics per user so repeated reads skip the
// full scan.
//
// Entries are keyed by a per-user generation. Writers bump the generation instead of
// deleting the entry, so a summary computed before a write is stored under a key no
// reader asks for any more.
package cache

import (
	"encoding/json"
	"strconv"
	"time"

	"expense-ledger/internal/config"
	"expense-ledger/internal/models"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
)

// StatsCache stores one ExpenseStats value per user and generation.
type StatsCache interface {
	// Get returns the cached stats for the user's current generation. The generation is
	// returned on a miss too and must be passed to Set once the stats are computed.
	Get(userID int64) (stats models.ExpenseStats, gen uint64, ok bool, err error)
	Set(userID int64, gen uint64, stats models.ExpenseStats) error
	// Invalidate moves the user to a new generation.
	Invalidate(userID int64) error
}

// New returns a memcached-backed cache, or a no-op cache when no hosts are configured.
func New(cfg config.Cache) (StatsCache, error) {
	if len(cfg.MemcacheHosts) == 0 {
		return Nop{}, nil
	}
	return NewMemcache(cfg.MemcacheHosts, cfg.StatsTTL)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(int64) (models.ExpenseStats, uint64, bool, error) {
	return models.ExpenseStats{}, 0, false, nil
}
func (Nop) Set(int64, uint64, models.ExpenseStats) error { return nil }
func (Nop) Invalidate(int64) error                       { return nil }

// client is the part of *memcache.Client the cache uses.
type client interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Add(item *memcache.Item) error
	Increment(key string, delta uint64) (uint64, error)
}

// Memcache stores statistics in memcached as JSON.
type Memcache struct {
	client client
	ttl    time.Duration
	now    func() time.Time
}

// NewMemcache connects to the given memcached hosts and pings them.
func NewMemcache(hosts []string, ttl time.Duration) (*Memcache, error) {
	mc := memcache.New(hosts...)
	if err := mc.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping memcached")
	}
	return newMemcache(mc, ttl), nil
}

func newMemcache(c client, ttl time.Duration) *Memcache {
	return &Memcache{client: c, ttl: ttl, now: time.Now}
}

func genKey(userID int64) string {
	return "stats-gen:" + strconv.FormatInt(userID, 10)
}

func statsKey(userID int64, gen uint64) string {
	return "stats:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatUint(gen, 10)
}

// expiration converts ttl to memcached seconds, rounding up so a positive ttl never
// becomes 0 ("never expire").
func expiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := (ttl + time.Second - 1) / time.Second
	return int32(secs)
}

// generation returns the user's current generation, seeding it when memcached has none.
// The seed is time based so an evicted counter never comes back at an old value.
func (m *Memcache) generation(userID int64) (uint64, error) {
	key := genKey(userID)
	for range 2 {
		item, err := m.client.Get(key)
		if err == nil {
			gen, err := strconv.ParseUint(string(item.Value), 10, 64)
			return gen, errors.Wrap(err, "parse stats generation")
		}
		if !errors.Is(err, memcache.ErrCacheMiss) {
			return 0, errors.Wrap(err, "get stats generation")
		}

		seed := uint64(m.now().UnixNano())
		err = m.client.Add(&memcache.Item{Key: key, Value: []byte(strconv.FormatUint(seed, 10))})
		if err == nil {
			return seed, nil
		}
		if !errors.Is(err, memcache.ErrNotStored) {
			return 0, errors.Wrap(err, "seed stats generation")
		}
		// someone else seeded it first; read theirs
	}
	return 0, errors.New("stats generation keeps disappearing")
}

func (m *Memcache) Get(userID int64) (models.ExpenseStats, uint64, bool, error) {
	gen, err := m.generation(userID)
	if err != nil {
		return models.ExpenseStats{}, 0, false, err
	}

	item, err := m.client.Get(statsKey(userID, gen))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.ExpenseStats{}, gen, false, nil
		}
		return models.ExpenseStats{}, gen, false, errors.Wrap(err, "get cached stats")
	}

	stats, err := decodeStats(item.Value)
	if err != nil {
		return models.ExpenseStats{}, gen, false, err
	}
	return stats, gen, true, nil
}

func (m *Memcache) Set(userID int64, gen uint64, stats models.ExpenseStats) error {
	raw, err := encodeStats(stats)
	if err != nil {
		return err
	}
	return errors.Wrap(m.client.Set(&memcache.Item{
		Key:        statsKey(userID, gen),
		Value:      raw,
		Expiration: expiration(m.ttl),
	}), "cache stats")
}

func (m *Memcache) Invalidate(userID int64) error {
	_, err := m.client.Increment(genKey(userID), 1)
	if errors.Is(err, memcache.ErrCacheMiss) {
		// Nothing was ever cached under a generation, so there is nothing to hide.
		return nil
	}
	return errors.Wrap(err, "bump stats generation")
}

func encodeStats(stats models.ExpenseStats) ([]byte, error) {
	if stats.Top == nil {
		stats.Top = []models.Expense{}
	}
	raw, err := json.Marshal(stats)
	return raw, errors.Wrap(err, "encode stats")
}

func decodeStats(raw []byte) (models.ExpenseStats, error) {
	var stats models.ExpenseStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return models.ExpenseStats{}, errors.Wrap(err, "decode cached stats")
	}
	if stats.Top == nil {
		stats.Top = []models.Expense{}
	}
	return stats, nil
}
