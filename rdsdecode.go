package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
	"go.bug.st/serial"

	"github.com/PE5PVB/RDSExpert/locator"
	"github.com/PE5PVB/RDSExpert/rds"
)

// Global client list and mutex.
var (
	clients      []*socket.Socket
	clientsMutex sync.Mutex
)

// Latest published snapshot, for pull-style observers (/status).
var (
	snapshotMutex  sync.Mutex
	latestSnapshot rds.Snapshot
	latestSequence []string
)

// Feed connections (null-delimited JSON for collectors).
var (
	feedConns      []net.Conn
	feedConnsMutex sync.Mutex
)

var startTime = time.Now()

func main() {
	// Command-line flags.
	serialPort := flag.String("serial-port", "", "Serial port device (optional)")
	baud := flag.Int("baud", 115200, "Baud rate (default: 115200), ignored if -serial-port is not specified")
	tcpSource := flag.String("tcp-source", "", "Tuner host/ip:port streaming raw group frames (optional)")
	udpListenPort := flag.Int("udp-listen-port", 8102, "UDP listen port for incoming group frames (default: 8102)")
	wsPort := flag.Int("ws-port", 8100, "WebSocket port (default: 8100)")
	webRoot := flag.String("web-root", ".", "Web root directory (default: current directory)")
	feedPort := flag.Int("feed-port", 0, "TCP feed port for collectors, 0 disables (default: 0)")
	debug := flag.Bool("debug", false, "Enable debug output")
	showGroups := flag.Bool("show-groups", false, "Log every published snapshot")
	updateInterval := flag.Int("update-interval", 16, "Publisher tick interval in milliseconds (default: 16)")
	rbds := flag.Bool("rbds", false, "Use the North American RBDS program type table")
	analyzer := flag.Bool("analyzer", true, "Enable the group analyzer")
	tmcActive := flag.Bool("tmc", true, "Enable TMC message decoding")
	tmcDataDir := flag.String("tmc-data-dir", ".", "Directory holding tmc/{cid}_{tabcd}.json location tables")
	overpassEndpoints := flag.String("overpass-endpoints", "", "Comma-separated Overpass interpreter URLs (optional)")
	redisHost := flag.String("redis-host", "", "Redis host for the shared TMC location cache (optional)")
	redisPort := flag.Int("redis-port", 6379, "Redis port (default: 6379)")
	mqttServer := flag.String("mqtt-server", "", "MQTT broker host:port (optional)")
	mqttTLS := flag.Bool("mqtt-tls", false, "Use TLS for the MQTT connection")
	mqttAuth := flag.String("mqtt-auth", "", "MQTT credentials as user:pass (optional)")
	mqttTopic := flag.String("mqtt-topic", "rdsexpert", "MQTT topic prefix (default: rdsexpert)")
	flag.Parse()

	// Control commands from Socket.IO clients run on the decoder
	// goroutine; the decoder itself is single-threaded by contract.
	commands := make(chan func(*rds.Decoder), 16)
	pushCommand := func(fn func(*rds.Decoder)) {
		select {
		case commands <- fn:
		default:
			log.Printf("Command queue full, dropping control command")
		}
	}

	// --- Setup Socket.IO server ---
	engineServer := types.CreateServer(nil)
	sioServer := socket.NewServer(engineServer, nil)

	sioServer.On("connection", func(args ...any) {
		client := args[0].(*socket.Socket)
		log.Printf("Socket.IO client connected: %s", client.Id())
		clientsMutex.Lock()
		clients = append(clients, client)
		clientsMutex.Unlock()
		client.Join("rds_snapshot")
		client.Join("tmc_message")
		snapshotMutex.Lock()
		snap := latestSnapshot
		snapshotMutex.Unlock()
		snapJSON, err := json.Marshal(snap)
		if err != nil {
			log.Printf("Error marshaling snapshot: %v", err)
			return
		}
		if err := client.Emit("rds_snapshot", string(snapJSON)); err != nil {
			log.Printf("Error sending snapshot to client %s: %v", client.Id(), err)
		}
		client.On("set_analyzer", func(args ...any) {
			if active, ok := boolArg(args); ok {
				pushCommand(func(d *rds.Decoder) { d.SetAnalyzer(active) })
			}
		})
		client.On("reset_analyzer", func(args ...any) {
			pushCommand(func(d *rds.Decoder) { d.ResetAnalyzer() })
		})
		client.On("set_tmc", func(args ...any) {
			if active, ok := boolArg(args); ok {
				pushCommand(func(d *rds.Decoder) { d.SetTMCActive(active) })
			}
		})
		client.On("set_tmc_paused", func(args ...any) {
			if paused, ok := boolArg(args); ok {
				pushCommand(func(d *rds.Decoder) { d.SetTMCPaused(paused) })
			}
		})
		client.On("disconnect", func(args ...any) {
			log.Printf("Socket.IO client disconnected: %s", client.Id())
			clientsMutex.Lock()
			for i, c := range clients {
				if c == client {
					clients = append(clients[:i], clients[i+1:]...)
					break
				}
			}
			clientsMutex.Unlock()
		})
	})

	// --- Setup the decoder ---
	decoder := rds.New()
	decoder.SetAnalyzer(*analyzer)
	decoder.SetTMCActive(*tmcActive)
	decoder.SetRBDS(*rbds)

	// --- Setup the TMC location resolver ---
	locatorOpts := locator.Options{DataDir: *tmcDataDir, Debug: *debug}
	if *overpassEndpoints != "" {
		locatorOpts.Endpoints = splitAndTrim(*overpassEndpoints, ",")
	}
	if *redisHost != "" {
		locatorOpts.Redis = redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", *redisHost, *redisPort),
		})
		if _, err := locatorOpts.Redis.Ping(context.Background()).Result(); err != nil {
			log.Printf("Redis unavailable, continuing without shared cache: %v", err)
			locatorOpts.Redis = nil
		}
	}
	tmcLocator := locator.New(locatorOpts)

	// --- Setup MQTT if configured ---
	var mqttClient mqtt.Client
	if *mqttServer != "" {
		opts := mqtt.NewClientOptions()
		if *mqttTLS {
			opts.AddBroker("ssl://" + *mqttServer)
			opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
		} else {
			opts.AddBroker("tcp://" + *mqttServer)
		}
		if *mqttAuth != "" {
			authParts := strings.SplitN(*mqttAuth, ":", 2)
			if len(authParts) == 2 {
				opts.SetUsername(authParts[0])
				opts.SetPassword(authParts[1])
			} else {
				log.Printf("Invalid MQTT authentication format. Expected user:pass.")
			}
		}
		opts.SetAutoReconnect(true)
		mqttClient = mqtt.NewClient(opts)
		if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("Failed to connect to MQTT broker: %v", token.Error())
			mqttClient = nil
		} else {
			log.Printf("Connected to MQTT broker at %s", *mqttServer)
		}
	}

	// --- Setup HTTP server ---
	fs := http.FileServer(http.Dir(*webRoot))
	http.Handle("/", fs)
	http.Handle("/socket.io/", engineServer)
	http.HandleFunc("/status", handleStatus)
	http.HandleFunc("/metrics", handleMetrics)
	http.HandleFunc("/tmc/locations", makeLocationsHandler(tmcLocator))
	go func() {
		addr := fmt.Sprintf(":%d", *wsPort)
		log.Printf("Starting HTTP/Socket.IO server on %s, serving web root: %s", addr, filepath.Clean(*webRoot))
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// --- Optional TCP feed for collectors ---
	if *feedPort > 0 {
		go runFeedListener(*feedPort, *debug)
	}

	// --- Frame sources ---
	// All sources forward raw bytes into one channel; a single goroutine
	// owns the decoder.
	frames := make(chan []byte, 256)

	if *serialPort != "" {
		mode := &serial.Mode{BaudRate: *baud}
		port, err := serial.Open(*serialPort, mode)
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		go readSerial(port, frames, *debug)
	}

	if *tcpSource != "" {
		go readTCPSource(*tcpSource, frames, *debug)
	}

	udpAddrStr := fmt.Sprintf(":%d", *udpListenPort)
	udpListener, err := net.ListenPacket("udp", udpAddrStr)
	if err != nil {
		log.Fatalf("Error starting UDP listener: %v", err)
	}
	defer udpListener.Close()
	go readUDP(udpListener, frames, *debug)

	startMetricsLoop()

	// --- Decoder loop: ingest frames, tick the publisher ---
	ticker := time.NewTicker(time.Duration(*updateInterval) * time.Millisecond)
	defer ticker.Stop()

	lastTMCID := 0
	for {
		select {
		case chunk := <-frames:
			decoder.Ingest(chunk)
		case fn := <-commands:
			fn(decoder)
		case <-ticker.C:
			snap, ok := decoder.Tick()
			if !ok {
				continue
			}
			seq := decoder.GroupSequence()
			snapshotMutex.Lock()
			latestSnapshot = snap
			latestSequence = seq
			snapshotMutex.Unlock()
			recordSample(snap, clientCount())

			snapJSON, err := json.Marshal(snap)
			if err != nil {
				log.Printf("Error marshaling snapshot: %v", err)
				continue
			}
			if *showGroups {
				log.Printf("Snapshot: PI=%s PS=%q RT=%q BER=%.1f%%", snap.PI, snap.PS, snap.RT, snap.BER)
			}

			emitToClients("rds_snapshot", string(snapJSON))
			broadcastFeed(snapJSON)

			if mqttClient != nil {
				mqttClient.Publish(*mqttTopic+"/snapshot", 0, true, snapJSON)
			}
			for i := len(snap.TMCMessages) - 1; i >= 0; i-- {
				msg := snap.TMCMessages[i]
				if msg.ID <= lastTMCID {
					continue
				}
				lastTMCID = msg.ID
				msgJSON, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				emitToClients("tmc_message", string(msgJSON))
				if mqttClient != nil {
					mqttClient.Publish(*mqttTopic+"/tmc", 0, false, msgJSON)
				}
			}
		}
	}
}

func clientCount() int {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()
	return len(clients)
}

func emitToClients(event, msg string) {
	clientsMutex.Lock()
	for _, client := range clients {
		go func(c *socket.Socket) {
			if err := c.Emit(event, msg); err != nil {
				log.Printf("Error sending %s to client %s: %v", event, c.Id(), err)
			}
		}(client)
	}
	clientsMutex.Unlock()
}

// readSerial feeds newline-framed tuner output into the frame channel.
func readSerial(port serial.Port, frames chan<- []byte, debug bool) {
	defer port.Close()
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		line = append(line, '\n')
		if debug {
			log.Printf("[DEBUG] Received from Serial: %q", line)
		}
		frames <- line
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}

// readTCPSource connects to a tuner server and forwards its stream,
// reconnecting with a delay on failure.
func readTCPSource(addr string, frames chan<- []byte, debug bool) {
	for {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			log.Printf("Failed to connect to tuner at %s: %v. Retrying in 5 seconds...", addr, err)
			time.Sleep(5 * time.Second)
			continue
		}
		log.Printf("Connected to tuner at %s", addr)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err != io.EOF {
					log.Printf("Error reading from tuner: %v", err)
				}
				conn.Close()
				break
			}
			chunk := append([]byte(nil), buf[:n]...)
			if debug {
				log.Printf("[DEBUG] Received from TCP (%s): %q", addr, chunk)
			}
			frames <- chunk
		}
		time.Sleep(5 * time.Second)
	}
}

func readUDP(listener net.PacketConn, frames chan<- []byte, debug bool) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := listener.ReadFrom(buf)
		if err != nil {
			log.Printf("Error reading UDP message: %v", err)
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)
		if debug {
			log.Printf("[DEBUG] Received from UDP (%s): %q", addr.String(), chunk)
		}
		frames <- chunk
	}
}

// runFeedListener accepts collector connections; each published
// snapshot is written to every connection as null-delimited JSON.
func runFeedListener(port int, debug bool) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("Error starting feed listener: %v", err)
	}
	log.Printf("Feed listener on :%d", port)
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("Feed accept error: %v", err)
			continue
		}
		if debug {
			log.Printf("[DEBUG] Feed client connected: %s", conn.RemoteAddr())
		}
		feedConnsMutex.Lock()
		feedConns = append(feedConns, conn)
		feedConnsMutex.Unlock()
	}
}

func broadcastFeed(payload []byte) {
	feedConnsMutex.Lock()
	defer feedConnsMutex.Unlock()
	alive := feedConns[:0]
	for _, conn := range feedConns {
		if _, err := conn.Write(append(payload, 0)); err != nil {
			conn.Close()
			continue
		}
		alive = append(alive, conn)
	}
	feedConns = alive
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshotMutex.Lock()
	snap := latestSnapshot
	seq := latestSequence
	snapshotMutex.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		rds.Snapshot
		GroupSequence []string `json:"group_sequence"`
	}{snap, seq}); err != nil {
		http.Error(w, fmt.Sprintf("Error encoding status: %v", err), http.StatusInternalServerError)
	}
}

// makeLocationsHandler bridges the resolver to the presentation layer:
// GET /tmc/locations?cid=58&tabcd=1&lcds=1,2,3
func makeLocationsHandler(l *locator.Locator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid, err1 := strconv.ParseUint(r.URL.Query().Get("cid"), 10, 16)
		tabcd, err2 := strconv.ParseUint(r.URL.Query().Get("tabcd"), 10, 16)
		if err1 != nil || err2 != nil {
			http.Error(w, "cid and tabcd are required", http.StatusBadRequest)
			return
		}
		var lcds []uint32
		for _, part := range splitAndTrim(r.URL.Query().Get("lcds"), ",") {
			v, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid lcd %q", part), http.StatusBadRequest)
				return
			}
			lcds = append(lcds, uint32(v))
		}
		if len(lcds) == 0 {
			http.Error(w, "lcds is required", http.StatusBadRequest)
			return
		}
		result, err := l.Resolve(r.Context(), lcds, uint16(cid), uint16(tabcd))
		if err != nil {
			log.Printf("Error resolving TMC locations: %v", err)
			http.Error(w, fmt.Sprintf("resolver error: %v", err), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, fmt.Sprintf("Error encoding locations: %v", err), http.StatusInternalServerError)
		}
	}
}

// boolArg extracts the boolean payload of a Socket.IO control event.
func boolArg(args []any) (bool, bool) {
	if len(args) == 0 {
		return false, false
	}
	v, ok := args[0].(bool)
	return v, ok
}

// splitAndTrim splits and trims.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
