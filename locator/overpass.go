package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// A strategy is one way of asking Overpass for TMC points. The list is
// closed: nodes tagged with the TMC import scheme, and tmc:point
// relations. The first strategy that produces data for a table is
// memoized for that table.
type strategy int

const (
	strategyNodeTag strategy = iota
	strategyRelation
)

var strategies = []strategy{strategyNodeTag, strategyRelation}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// queryBatch resolves one batch of codes remotely. With a memoized
// strategy only that one runs; otherwise the strategies are tried in
// order until one returns data, and the winner is cached per table.
func (l *Locator) queryBatch(ctx context.Context, batch []uint32, cid, tabcd uint16) (map[uint32]Location, error) {
	table := tableKey{cid, tabcd}

	l.mu.Lock()
	memo, haveMemo := l.strategyMemo[table]
	l.mu.Unlock()

	if haveMemo {
		return l.runStrategy(ctx, strategies[memo], batch, cid, tabcd)
	}

	var lastErr error
	for i, strat := range strategies {
		found, err := l.runStrategy(ctx, strat, batch, cid, tabcd)
		if err != nil {
			log.Printf("locator: strategy %d for %d:%d failed: %v", i, cid, tabcd, err)
			lastErr = err
			continue
		}
		if len(found) > 0 {
			l.mu.Lock()
			l.strategyMemo[table] = i
			l.mu.Unlock()
			return found, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return map[uint32]Location{}, nil
}

func (l *Locator) runStrategy(ctx context.Context, strat strategy, batch []uint32, cid, tabcd uint16) (map[uint32]Location, error) {
	query := buildQuery(strat, batch, cid, tabcd)
	resp, err := l.queryOverpass(ctx, query)
	if err != nil {
		return nil, err
	}
	return parseElements(strat, resp.Elements, cid, tabcd), nil
}

// buildQuery renders the Overpass QL for one strategy and batch.
func buildQuery(strat strategy, batch []uint32, cid, tabcd uint16) string {
	alts := make([]string, len(batch))
	for i, lcd := range batch {
		alts[i] = strconv.FormatUint(uint64(lcd), 10)
	}
	pattern := fmt.Sprintf("^(%s)$", strings.Join(alts, "|"))
	switch strat {
	case strategyRelation:
		return fmt.Sprintf(
			`[out:json][timeout:%d];relation["type"="tmc:point"]["table"="%d:%d"]["lcd"~"%s"];out center;`,
			int(requestTimeout.Seconds()), cid, tabcd, pattern)
	default:
		return fmt.Sprintf(
			`[out:json][timeout:%d];node["TMC:cid_%d:tabcd_%d:LocationCode"~"%s"];out body;`,
			int(requestTimeout.Seconds()), cid, tabcd, pattern)
	}
}

// parseElements extracts locations from an Overpass result.
func parseElements(strat strategy, elements []overpassElement, cid, tabcd uint16) map[uint32]Location {
	out := make(map[uint32]Location)
	for _, el := range elements {
		var lcdStr string
		loc := Location{Status: Resolved}
		switch strat {
		case strategyRelation:
			lcdStr = el.Tags["lcd"]
			if el.Center == nil {
				continue
			}
			loc.Lat, loc.Lon = el.Center.Lat, el.Center.Lon
			loc.Name = el.Tags["name"]
			loc.RoadRef = el.Tags["road_ref"]
			loc.PrevLCD = parseLCDTag(el.Tags["prev_lcd"])
			loc.NextLCD = parseLCDTag(el.Tags["next_lcd"])
		default:
			prefix := fmt.Sprintf("TMC:cid_%d:tabcd_%d:", cid, tabcd)
			lcdStr = el.Tags[prefix+"LocationCode"]
			loc.Lat, loc.Lon = el.Lat, el.Lon
			loc.Name = el.Tags["name"]
			if loc.Name == "" {
				loc.Name = el.Tags[prefix+"RoadName"]
			}
			loc.RoadRef = el.Tags["ref"]
			loc.PrevLCD = parseLCDTag(el.Tags[prefix+"PrevLocationCode"])
			loc.NextLCD = parseLCDTag(el.Tags[prefix+"NextLocationCode"])
		}
		lcd, err := strconv.ParseUint(lcdStr, 10, 32)
		if err != nil {
			continue
		}
		loc.LCD = uint32(lcd)
		out[loc.LCD] = loc
	}
	return out
}

func parseLCDTag(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// queryOverpass issues one Overpass request with endpoint rotation,
// a linear backoff (2 s times the attempt number) and the shared
// rate-limit clock. A 2xx answer
// promotes the endpoint that served it; 429 and 504 rotate onward.
func (l *Locator) queryOverpass(ctx context.Context, query string) (*overpassResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= l.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := l.opts.Sleep(ctx, time.Duration(attempt)*retryBackoff); err != nil {
				return nil, err
			}
		}
		if err := l.waitRateLimit(ctx); err != nil {
			return nil, err
		}

		l.mu.Lock()
		idx := (l.activeEndpoint + attempt) % len(l.opts.Endpoints)
		endpoint := l.opts.Endpoints[idx]
		l.mu.Unlock()

		resp, err := l.postQuery(ctx, endpoint, query)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == l.opts.MaxRetries {
				return nil, lastErr
			}
			continue
		}

		switch {
		case resp.statusCode >= 200 && resp.statusCode < 300:
			var parsed overpassResponse
			if err := json.Unmarshal(resp.body, &parsed); err != nil {
				return nil, fmt.Errorf("overpass: decoding %s: %w", endpoint, err)
			}
			l.mu.Lock()
			l.activeEndpoint = idx
			l.mu.Unlock()
			return &parsed, nil
		case resp.statusCode == http.StatusTooManyRequests || resp.statusCode == http.StatusGatewayTimeout:
			lastErr = fmt.Errorf("overpass: %s returned %d", endpoint, resp.statusCode)
		default:
			lastErr = fmt.Errorf("overpass: %s returned %d", endpoint, resp.statusCode)
			if attempt == l.opts.MaxRetries {
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

type overpassReply struct {
	statusCode int
	body       []byte
}

func (l *Locator) postQuery(ctx context.Context, endpoint, query string) (*overpassReply, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &overpassReply{statusCode: resp.StatusCode, body: body}, nil
}

// waitRateLimit enforces the minimum spacing between remote requests.
func (l *Locator) waitRateLimit(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.opts.Now()
		wait := minQueryInterval - now.Sub(l.lastQuery)
		if wait <= 0 || l.lastQuery.IsZero() {
			l.lastQuery = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		if err := l.opts.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
