// Package locator resolves TMC location codes to geographic
// coordinates. Lookups go through an in-memory cache, an optional
// shared Redis cache, a local per-table JSON file, and finally the
// Overpass API, with negative caching so unknown codes are asked for
// at most once per session.
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Status of one resolved location code.
type Status string

const (
	Resolved Status = "Resolved"
	NotFound Status = "NotFound"
)

// Location is the resolution result for one LCD.
type Location struct {
	LCD     uint32  `json:"lcd"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Name    string  `json:"name,omitempty"`
	RoadRef string  `json:"road_ref,omitempty"`
	PrevLCD uint32  `json:"prev_lcd,omitempty"`
	NextLCD uint32  `json:"next_lcd,omitempty"`
	Status  Status  `json:"status"`
}

// Doer issues HTTP requests. net/http's Client satisfies it; tests
// inject their own.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configures a Locator. Zero values select the defaults.
type Options struct {
	// DataDir holds the local location tables under tmc/{cid}_{tabcd}.json.
	DataDir string
	// Endpoints are the Overpass interpreters to rotate across.
	Endpoints []string
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	HTTPClient Doer
	// Redis, when set, is a shared second-level cache.
	Redis    *redis.Client
	RedisTTL time.Duration
	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Debug bool
}

const (
	batchSize        = 50
	minQueryInterval = 1100 * time.Millisecond
	requestTimeout   = 20 * time.Second
	retryBackoff     = 2 * time.Second
	defaultRedisTTL  = 30 * 24 * time.Hour
)

var defaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.osm.ch/api/interpreter",
}

type locKey struct {
	CID   uint16
	TABCD uint16
	LCD   uint32
}

type tableKey struct {
	CID   uint16
	TABCD uint16
}

// Locator owns all caches, the pending set and the rate-limit clock.
// Safe for concurrent use.
type Locator struct {
	opts Options

	mu               sync.Mutex
	cache            map[locKey]Location
	pending          map[locKey]struct{}
	strategyMemo     map[tableKey]int
	localUnavailable map[tableKey]bool
	lastQuery        time.Time
	activeEndpoint   int
}

// New returns a Locator with empty caches.
func New(opts Options) *Locator {
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = defaultEndpoints
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}
	if opts.RedisTTL == 0 {
		opts.RedisTTL = defaultRedisTTL
	}
	return &Locator{
		opts:             opts,
		cache:            make(map[locKey]Location),
		pending:          make(map[locKey]struct{}),
		strategyMemo:     make(map[tableKey]int),
		localUnavailable: make(map[tableKey]bool),
	}
}

// Resolve maps the given location codes for one country/table pair.
// Codes already in flight from another call are skipped; they are
// simply absent from the returned map. A remote failure returns what
// was resolved so far together with the error; nothing is cached for
// the failed batch.
func (l *Locator) Resolve(ctx context.Context, lcds []uint32, cid, tabcd uint16) (map[uint32]Location, error) {
	out := make(map[uint32]Location)
	table := tableKey{cid, tabcd}

	l.mu.Lock()
	var misses []uint32
	seen := make(map[uint32]bool)
	for _, lcd := range lcds {
		if seen[lcd] {
			continue
		}
		seen[lcd] = true
		k := locKey{cid, tabcd, lcd}
		if loc, ok := l.cache[k]; ok {
			out[lcd] = loc
			continue
		}
		if _, inFlight := l.pending[k]; inFlight {
			continue
		}
		l.pending[k] = struct{}{}
		misses = append(misses, lcd)
	}
	l.mu.Unlock()

	// Release the pending markers along every exit path. The marked set
	// is pinned here because later stages filter the miss list in place.
	marked := append([]uint32(nil), misses...)
	defer func() {
		l.mu.Lock()
		for _, lcd := range marked {
			delete(l.pending, locKey{cid, tabcd, lcd})
		}
		l.mu.Unlock()
	}()

	if len(misses) == 0 {
		return out, nil
	}

	misses = l.resolveFromRedis(ctx, misses, cid, tabcd, out)
	if len(misses) == 0 {
		return out, nil
	}

	l.mu.Lock()
	localKnownBad := l.localUnavailable[table]
	l.mu.Unlock()
	if !localKnownBad {
		done, err := l.resolveFromLocalFile(ctx, misses, cid, tabcd, out)
		if err == nil && done {
			return out, nil
		}
		l.mu.Lock()
		l.localUnavailable[table] = true
		l.mu.Unlock()
	}

	for start := 0; start < len(misses); start += batchSize {
		end := start + batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]
		found, err := l.queryBatch(ctx, batch, cid, tabcd)
		if err != nil {
			return out, err
		}
		for _, lcd := range batch {
			loc, ok := found[lcd]
			if !ok {
				loc = Location{LCD: lcd, Status: NotFound}
			}
			l.store(ctx, cid, tabcd, loc)
			out[lcd] = loc
		}
	}
	return out, nil
}

// ClearCache empties every cache and the strategy memo.
func (l *Locator) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[locKey]Location)
	l.strategyMemo = make(map[tableKey]int)
	l.localUnavailable = make(map[tableKey]bool)
}

// CacheSize returns the number of cached locations, negatives included.
func (l *Locator) CacheSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

func (l *Locator) store(ctx context.Context, cid, tabcd uint16, loc Location) {
	l.mu.Lock()
	l.cache[locKey{cid, tabcd, loc.LCD}] = loc
	l.mu.Unlock()

	if l.opts.Redis == nil {
		return
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	rkey := redisKey(cid, tabcd, loc.LCD)
	if err := l.opts.Redis.Set(ctx, rkey, data, l.opts.RedisTTL).Err(); err != nil && l.opts.Debug {
		log.Printf("[DEBUG] locator: redis set %s: %v", rkey, err)
	}
}

// resolveFromRedis fills out from the shared cache and returns the
// remaining misses.
func (l *Locator) resolveFromRedis(ctx context.Context, misses []uint32, cid, tabcd uint16, out map[uint32]Location) []uint32 {
	if l.opts.Redis == nil {
		return misses
	}
	remaining := misses[:0]
	for _, lcd := range misses {
		data, err := l.opts.Redis.Get(ctx, redisKey(cid, tabcd, lcd)).Bytes()
		if err != nil {
			remaining = append(remaining, lcd)
			continue
		}
		var loc Location
		if err := json.Unmarshal(data, &loc); err != nil {
			remaining = append(remaining, lcd)
			continue
		}
		l.mu.Lock()
		l.cache[locKey{cid, tabcd, lcd}] = loc
		l.mu.Unlock()
		out[lcd] = loc
	}
	return remaining
}

// resolveFromLocalFile serves every miss from the per-table JSON file:
// entries become Resolved, absences NotFound. Returns done=false when
// the file is missing or unreadable.
func (l *Locator) resolveFromLocalFile(ctx context.Context, misses []uint32, cid, tabcd uint16, out map[uint32]Location) (bool, error) {
	path := filepath.Join(l.opts.DataDir, "tmc", fmt.Sprintf("%d_%d.json", cid, tabcd))
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var table map[string][]json.RawMessage
	if err := json.Unmarshal(data, &table); err != nil {
		return false, err
	}
	for _, lcd := range misses {
		loc := Location{LCD: lcd, Status: NotFound}
		if row, ok := table[fmt.Sprintf("%d", lcd)]; ok {
			if parsed, perr := parseLocalRow(lcd, row); perr == nil {
				loc = parsed
			}
		}
		l.store(ctx, cid, tabcd, loc)
		out[lcd] = loc
	}
	return true, nil
}

// parseLocalRow decodes a [lat, lon, name, prev, next] row. Zero prev
// and next mean no linkage.
func parseLocalRow(lcd uint32, row []json.RawMessage) (Location, error) {
	loc := Location{LCD: lcd, Status: Resolved}
	if len(row) < 2 {
		return loc, fmt.Errorf("row for %d too short", lcd)
	}
	if err := json.Unmarshal(row[0], &loc.Lat); err != nil {
		return loc, err
	}
	if err := json.Unmarshal(row[1], &loc.Lon); err != nil {
		return loc, err
	}
	if len(row) > 2 {
		_ = json.Unmarshal(row[2], &loc.Name)
	}
	if len(row) > 3 {
		_ = json.Unmarshal(row[3], &loc.PrevLCD)
	}
	if len(row) > 4 {
		_ = json.Unmarshal(row[4], &loc.NextLCD)
	}
	return loc, nil
}

func redisKey(cid, tabcd uint16, lcd uint32) string {
	return fmt.Sprintf("tmc:loc:%d:%d:%d", cid, tabcd, lcd)
}
