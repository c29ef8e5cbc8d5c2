// metrics.go
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/PE5PVB/RDSExpert/rds"
)

// -----------------------------------------------------------------------------
// Global aggregator variables for different roll-up intervals.
var (
	minuteAgg MetricsAggregator
	hourAgg   MetricsAggregator
	dayAgg    MetricsAggregator
)

// AggregatedMetric only needs the average value.
type AggregatedMetric struct {
	Ave float64 `json:"average"`
}

// NumericAggregator maintains running statistics for a numeric metric.
type NumericAggregator struct {
	sum   float64
	count int
}

func (na *NumericAggregator) update(value float64) {
	na.sum += value
	na.count++
}

func (na *NumericAggregator) average() float64 {
	if na.count == 0 {
		return 0
	}
	return na.sum / float64(na.count)
}

func (na *NumericAggregator) reset() {
	na.sum = 0
	na.count = 0
}

// MetricsAggregate is one roll-up snapshot.
type MetricsAggregate struct {
	Timestamp        time.Time        `json:"timestamp"`
	BER              AggregatedMetric `json:"ber"`
	GroupsPerSec     AggregatedMetric `json:"groups_per_sec"`
	ActiveWebSockets AggregatedMetric `json:"active_websockets"`
	TMCMessages      AggregatedMetric `json:"tmc_messages"`
	GroupTotal       uint64           `json:"group_total"`
}

// MetricsAggregator accumulates samples until its interval rolls over.
type MetricsAggregator struct {
	ber        NumericAggregator
	groupRate  NumericAggregator
	websockets NumericAggregator
	tmc        NumericAggregator
	groupTotal uint64
}

func (ma *MetricsAggregator) update(ber, groupRate float64, websockets, tmcMessages int, groupTotal uint64) {
	ma.ber.update(ber)
	ma.groupRate.update(groupRate)
	ma.websockets.update(float64(websockets))
	ma.tmc.update(float64(tmcMessages))
	ma.groupTotal = groupTotal
}

func (ma *MetricsAggregator) snapshot() MetricsAggregate {
	return MetricsAggregate{
		Timestamp:        time.Now().UTC(),
		BER:              AggregatedMetric{Ave: ma.ber.average()},
		GroupsPerSec:     AggregatedMetric{Ave: ma.groupRate.average()},
		ActiveWebSockets: AggregatedMetric{Ave: ma.websockets.average()},
		TMCMessages:      AggregatedMetric{Ave: ma.tmc.average()},
		GroupTotal:       ma.groupTotal,
	}
}

func (ma *MetricsAggregator) reset() {
	ma.ber.reset()
	ma.groupRate.reset()
	ma.websockets.reset()
	ma.tmc.reset()
}

// -----------------------------------------------------------------------------
// Sampling from the decoder loop.

var (
	metricsMutex    sync.Mutex
	lastGroupTotal  uint64
	lastSampleTime  time.Time
	currentCounters CurrentMetrics
)

// CurrentMetrics is what /metrics serves; the metrics program scrapes
// it and forwards the values to InfluxDB.
type CurrentMetrics struct {
	UptimeSeconds int               `json:"uptime_seconds"`
	PI            string            `json:"pi"`
	BER           float64           `json:"ber"`
	GroupTotal    uint64            `json:"group_total"`
	GroupCounts   map[string]uint64 `json:"group_counts"`
	GroupLabels   map[string]string `json:"group_labels"`
	GroupsPerSec  float64           `json:"groups_per_sec"`
	TMCMessages   int               `json:"tmc_messages"`
	Clients       int               `json:"clients"`
}

// recordSample folds one published snapshot into the aggregators.
func recordSample(snap rds.Snapshot, clients int) {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	now := time.Now()
	rate := 0.0
	if !lastSampleTime.IsZero() {
		if dt := now.Sub(lastSampleTime).Seconds(); dt > 0 && snap.GroupTotal >= lastGroupTotal {
			rate = float64(snap.GroupTotal-lastGroupTotal) / dt
		}
	}
	lastSampleTime = now
	lastGroupTotal = snap.GroupTotal

	minuteAgg.update(snap.BER, rate, clients, len(snap.TMCMessages), snap.GroupTotal)
	hourAgg.update(snap.BER, rate, clients, len(snap.TMCMessages), snap.GroupTotal)
	dayAgg.update(snap.BER, rate, clients, len(snap.TMCMessages), snap.GroupTotal)

	labels := make(map[string]string, len(snap.GroupCounts))
	for name := range snap.GroupCounts {
		labels[name] = rds.GroupTypeLabel(name)
	}
	currentCounters = CurrentMetrics{
		UptimeSeconds: int(now.Sub(startTime).Seconds()),
		PI:            snap.PI,
		BER:           snap.BER,
		GroupTotal:    snap.GroupTotal,
		GroupCounts:   snap.GroupCounts,
		GroupLabels:   labels,
		GroupsPerSec:  rate,
		TMCMessages:   len(snap.TMCMessages),
		Clients:       clients,
	}
}

// startMetricsLoop writes the roll-up files once a minute; the hour and
// day aggregates roll over on their own boundaries.
func startMetricsLoop() {
	go func() {
		lastHour := time.Now().Hour()
		lastDay := time.Now().YearDay()
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			metricsMutex.Lock()
			writeAggregate("minute.json", minuteAgg.snapshot())
			minuteAgg.reset()
			if h := time.Now().Hour(); h != lastHour {
				writeAggregate("hour.json", hourAgg.snapshot())
				hourAgg.reset()
				lastHour = h
			}
			if d := time.Now().YearDay(); d != lastDay {
				writeAggregate("day.json", dayAgg.snapshot())
				dayAgg.reset()
				lastDay = d
			}
			metricsMutex.Unlock()
		}
	}()
}

func writeAggregate(name string, agg MetricsAggregate) {
	if err := os.MkdirAll("metrics_data", 0755); err != nil {
		log.Printf("Error creating metrics directory: %v", err)
		return
	}
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		log.Printf("Error marshaling metrics: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join("metrics_data", name), data, 0644); err != nil {
		log.Printf("Error writing metrics file: %v", err)
	}
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	metricsMutex.Lock()
	counters := currentCounters
	metricsMutex.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(counters); err != nil {
		log.Printf("Error encoding metrics: %v", err)
	}
}
