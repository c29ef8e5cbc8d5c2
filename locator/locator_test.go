package locator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the locator's rate-limit logic without real time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// recordedCall is one request the fake executor saw.
type recordedCall struct {
	Endpoint string
	Query    string
	At       time.Time
}

// fakeDoer scripts HTTP answers and records every request.
type fakeDoer struct {
	mu      sync.Mutex
	clock   *fakeClock
	calls   []recordedCall
	handler func(call recordedCall) (int, string)
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	form, _ := url.ParseQuery(string(body))
	call := recordedCall{
		Endpoint: req.URL.String(),
		Query:    form.Get("data"),
		At:       f.clock.Now(),
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	status, payload := f.handler(call)
	if status == 0 {
		return nil, fmt.Errorf("connection refused")
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(payload)),
	}, nil
}

func (f *fakeDoer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestLocator(t *testing.T, handler func(call recordedCall) (int, string)) (*Locator, *fakeDoer, string) {
	t.Helper()
	clock := newFakeClock()
	doer := &fakeDoer{clock: clock, handler: handler}
	dir := t.TempDir()
	l := New(Options{
		DataDir:    dir,
		Endpoints:  []string{"https://overpass.a/api", "https://overpass.b/api"},
		HTTPClient: doer,
		Now:        clock.Now,
		Sleep:      clock.Sleep,
	})
	return l, doer, dir
}

func writeLocalTable(t *testing.T, dir string, cid, tabcd uint16, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tmc"), 0755))
	path := filepath.Join(dir, "tmc", fmt.Sprintf("%d_%d.json", cid, tabcd))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func noRemote(t *testing.T) func(call recordedCall) (int, string) {
	return func(call recordedCall) (int, string) {
		t.Errorf("unexpected remote request to %s", call.Endpoint)
		return 200, `{"elements":[]}`
	}
}

func TestResolveFromLocalFile(t *testing.T) {
	l, doer, dir := newTestLocator(t, nil)
	doer.handler = noRemote(t)
	writeLocalTable(t, dir, 58, 1, `{
		"1": [52.10, 13.40, "Berlin", 0, 2],
		"2": [52.20, 13.50, "Spandau", 1, 0]
	}`)

	result, err := l.Resolve(context.Background(), []uint32{1, 2, 9999}, 58, 1)
	require.NoError(t, err)
	require.Len(t, result, 3)

	assert.Equal(t, Resolved, result[1].Status)
	assert.Equal(t, 52.10, result[1].Lat)
	assert.Equal(t, 13.40, result[1].Lon)
	assert.Equal(t, "Berlin", result[1].Name)
	assert.Equal(t, uint32(2), result[1].NextLCD)
	assert.Equal(t, uint32(0), result[1].PrevLCD)

	assert.Equal(t, Resolved, result[2].Status)
	assert.Equal(t, NotFound, result[9999].Status)
	assert.Zero(t, result[9999].Lat)

	assert.Equal(t, 0, doer.callCount(), "local hits must not touch the network")
	assert.Equal(t, 3, l.CacheSize())

	// Second call: identical map, zero I/O.
	again, err := l.Resolve(context.Background(), []uint32{1, 2, 9999}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, result, again)
	assert.Equal(t, 0, doer.callCount())
}

func TestResolveRemoteNodeStrategy(t *testing.T) {
	l, doer, _ := newTestLocator(t, func(call recordedCall) (int, string) {
		if strings.Contains(call.Query, "relation") {
			return 200, `{"elements":[]}`
		}
		return 200, `{"elements":[{
			"type":"node","lat":52.5,"lon":13.4,
			"tags":{
				"TMC:cid_58:tabcd_1:LocationCode":"7",
				"name":"Kreuz Test","ref":"A10",
				"TMC:cid_58:tabcd_1:PrevLocationCode":"6",
				"TMC:cid_58:tabcd_1:NextLocationCode":"8"
			}
		}]}`
	})

	result, err := l.Resolve(context.Background(), []uint32{7}, 58, 1)
	require.NoError(t, err)
	loc := result[7]
	assert.Equal(t, Resolved, loc.Status)
	assert.Equal(t, 52.5, loc.Lat)
	assert.Equal(t, 13.4, loc.Lon)
	assert.Equal(t, "Kreuz Test", loc.Name)
	assert.Equal(t, "A10", loc.RoadRef)
	assert.Equal(t, uint32(6), loc.PrevLCD)
	assert.Equal(t, uint32(8), loc.NextLCD)

	// The first strategy answered, so only one request was needed and
	// the strategy is memoized for the table.
	assert.Equal(t, 1, doer.callCount())
	_, err = l.Resolve(context.Background(), []uint32{7}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, doer.callCount(), "cache hit performs no I/O")
}

func TestResolveRelationFallbackMemoized(t *testing.T) {
	l, doer, _ := newTestLocator(t, func(call recordedCall) (int, string) {
		if !strings.Contains(call.Query, "relation") {
			return 200, `{"elements":[]}`
		}
		return 200, `{"elements":[{
			"type":"relation",
			"center":{"lat":48.1,"lon":11.5},
			"tags":{"lcd":"42","name":"Mittlerer Ring"}
		}]}`
	})

	result, err := l.Resolve(context.Background(), []uint32{42}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, Resolved, result[42].Status)
	assert.Equal(t, 48.1, result[42].Lat)
	require.Equal(t, 2, doer.callCount(), "node strategy first, then relation")

	// Memo: a fresh code for the same table goes straight to relations.
	handlerCalls := doer.callCount()
	_, err = l.Resolve(context.Background(), []uint32{43}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, handlerCalls+1, doer.callCount())
	assert.Contains(t, doer.calls[len(doer.calls)-1].Query, "relation")
}

func TestResolveNegativeCaching(t *testing.T) {
	l, doer, _ := newTestLocator(t, func(call recordedCall) (int, string) {
		return 200, `{"elements":[]}`
	})

	result, err := l.Resolve(context.Background(), []uint32{100, 101}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, NotFound, result[100].Status)
	assert.Equal(t, NotFound, result[101].Status)
	calls := doer.callCount()

	again, err := l.Resolve(context.Background(), []uint32{100, 101}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, result, again)
	assert.Equal(t, calls, doer.callCount(), "negative entries are cached")
}

func TestRateLimitSpacing(t *testing.T) {
	l, doer, _ := newTestLocator(t, func(call recordedCall) (int, string) {
		return 200, `{"elements":[]}`
	})

	// 60 codes → two remote batches; each unmemoized batch runs both
	// strategies.
	lcds := make([]uint32, 60)
	for i := range lcds {
		lcds[i] = uint32(i + 1)
	}
	_, err := l.Resolve(context.Background(), lcds, 58, 1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, doer.callCount(), 2)

	for i := 1; i < len(doer.calls); i++ {
		gap := doer.calls[i].At.Sub(doer.calls[i-1].At)
		assert.GreaterOrEqual(t, gap, minQueryInterval,
			"requests %d and %d departed %v apart", i-1, i, gap)
	}
}

func TestEndpointRotationOn429(t *testing.T) {
	l, doer, _ := newTestLocator(t, nil)
	doer.handler = func(call recordedCall) (int, string) {
		if strings.HasPrefix(call.Endpoint, "https://overpass.a/") {
			return 429, "rate limited"
		}
		return 200, `{"elements":[{
			"type":"node","lat":1,"lon":2,
			"tags":{"TMC:cid_58:tabcd_1:LocationCode":"5"}
		}]}`
	}

	result, err := l.Resolve(context.Background(), []uint32{5}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, Resolved, result[5].Status)
	require.Equal(t, 2, doer.callCount())
	assert.Contains(t, doer.calls[0].Endpoint, "overpass.a")
	assert.Contains(t, doer.calls[1].Endpoint, "overpass.b")

	// The endpoint that answered is promoted to active.
	_, err = l.Resolve(context.Background(), []uint32{6}, 58, 1)
	require.NoError(t, err)
	assert.Contains(t, doer.calls[2].Endpoint, "overpass.b")
}

func TestRemoteFailurePropagatesWithoutPoisoning(t *testing.T) {
	l, doer, _ := newTestLocator(t, func(call recordedCall) (int, string) {
		return 500, "boom"
	})

	_, err := l.Resolve(context.Background(), []uint32{9}, 58, 1)
	require.Error(t, err)
	assert.Equal(t, 0, l.CacheSize(), "failures must not be cached")
	calls := doer.callCount()

	// The pending marker was released: a retry reaches the network again.
	_, err = l.Resolve(context.Background(), []uint32{9}, 58, 1)
	require.Error(t, err)
	assert.Greater(t, doer.callCount(), calls)
}

func TestClearCache(t *testing.T) {
	l, doer, dir := newTestLocator(t, nil)
	doer.handler = noRemote(t)
	writeLocalTable(t, dir, 58, 1, `{"1": [52.1, 13.4, "Berlin", 0, 0]}`)

	_, err := l.Resolve(context.Background(), []uint32{1}, 58, 1)
	require.NoError(t, err)
	require.Equal(t, 1, l.CacheSize())

	l.ClearCache()
	assert.Equal(t, 0, l.CacheSize())

	// The local file serves the repeat lookup after the cache is gone.
	result, err := l.Resolve(context.Background(), []uint32{1}, 58, 1)
	require.NoError(t, err)
	assert.Equal(t, Resolved, result[1].Status)
}
