package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
)

type Settings struct {
	DecoderHost string `json:"decoder_host"`
	DecoderPort int    `json:"decoder_port"`
	InfluxHost  string `json:"influx_host"`
	InfluxPort  int    `json:"influx_port"`
	InfluxDB    string `json:"influx_db"`
	ListenPort  int    `json:"listen_port"`
	Debug       bool   `json:"debug"`
}

// DecoderMetrics matches the JSON from the decoder's /metrics endpoint.
type DecoderMetrics struct {
	UptimeSeconds int               `json:"uptime_seconds"`
	PI            string            `json:"pi"`
	BER           float64           `json:"ber"`
	GroupTotal    uint64            `json:"group_total"`
	GroupCounts   map[string]uint64 `json:"group_counts"`
	GroupsPerSec  float64           `json:"groups_per_sec"`
	TMCMessages   int               `json:"tmc_messages"`
	Clients       int               `json:"clients"`
}

var (
	settings      Settings
	metricsLock   sync.RWMutex
	latestMetrics *DecoderMetrics
	influxClient  client.Client
)

func main() {
	// 1) Load settings
	data, err := os.ReadFile("settings.json")
	if err != nil {
		log.Fatalf("Error reading settings.json: %v", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		log.Fatalf("Error parsing settings.json: %v", err)
	}

	// 2) Connect to InfluxDB
	influxURL := fmt.Sprintf("http://%s:%d", settings.InfluxHost, settings.InfluxPort)
	influxClient, err = client.NewHTTPClient(client.HTTPConfig{Addr: influxURL})
	if err != nil {
		log.Fatalf("Error creating InfluxDB client: %v", err)
	}
	defer influxClient.Close()

	// 3) Ensure database exists
	if err := ensureDatabase(settings.InfluxDB); err != nil {
		log.Fatalf("Could not create InfluxDB database %q: %v", settings.InfluxDB, err)
	}

	// 4) Start ingest loop
	go ingestMetricsLoop()

	// 5) HTTP handler exposing the last scrape
	http.HandleFunc("/metrics/decoder", metricsDecoderHandler)

	// 6) Listen
	addr := fmt.Sprintf(":%d", settings.ListenPort)
	log.Printf("Server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// ensureDatabase issues CREATE DATABASE if it doesn't already exist.
func ensureDatabase(db string) error {
	q := client.NewQuery(fmt.Sprintf("CREATE DATABASE \"%s\"", db), "", "")
	resp, err := influxClient.Query(q)
	if err != nil {
		return err
	}
	if resp.Error() != nil {
		return resp.Error()
	}
	return nil
}

// ingestMetricsLoop polls the decoder's /metrics endpoint.
func ingestMetricsLoop() {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		url := fmt.Sprintf("http://%s:%d/metrics", settings.DecoderHost, settings.DecoderPort)
		resp, err := httpClient.Get(url)
		if err != nil {
			log.Printf("Error fetching metrics: %v", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("Error reading metrics response: %v", err)
			continue
		}
		var m DecoderMetrics
		if err := json.Unmarshal(body, &m); err != nil {
			log.Printf("Error parsing metrics JSON: %v", err)
			continue
		}
		metricsLock.Lock()
		latestMetrics = &m
		metricsLock.Unlock()
		if err := writeMetricsToInfluxDB(&m); err != nil {
			log.Printf("Error writing polled metrics to InfluxDB: %v", err)
		}
	}
}

// metricsDecoderHandler returns the last scraped decoder metrics.
func metricsDecoderHandler(w http.ResponseWriter, r *http.Request) {
	metricsLock.RLock()
	defer metricsLock.RUnlock()

	if latestMetrics == nil {
		http.Error(w, "no metrics yet", http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(latestMetrics); err != nil {
		log.Printf("Error encoding metrics: %v", err)
	}
}

// writeMetricsToInfluxDB writes the decoder counters as points.
func writeMetricsToInfluxDB(m *DecoderMetrics) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database: settings.InfluxDB,
	})
	if err != nil {
		return fmt.Errorf("error creating batch points: %v", err)
	}

	add := func(name string, tags map[string]string, fields map[string]interface{}) {
		p, err := client.NewPoint(name, tags, fields, time.Now())
		if err != nil {
			log.Printf("Point error tags=%v fields=%v: %v", tags, fields, err)
			return
		}
		bp.AddPoint(p)
	}

	add("decoder", map[string]string{"pi": m.PI}, map[string]interface{}{
		"ber":            m.BER,
		"group_total":    int64(m.GroupTotal),
		"groups_per_sec": m.GroupsPerSec,
		"tmc_messages":   m.TMCMessages,
		"clients":        m.Clients,
		"uptime_seconds": m.UptimeSeconds,
	})
	for name, count := range m.GroupCounts {
		add("groups", map[string]string{"pi": m.PI, "group": name}, map[string]interface{}{
			"count": int64(count),
		})
	}

	if settings.Debug {
		log.Printf("Writing %d points to InfluxDB", len(bp.Points()))
	}
	return influxClient.Write(bp)
}
