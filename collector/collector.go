package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Settings structure based on settings.json
type Settings struct {
	FeedHost   string `json:"feed_host"`
	FeedPort   int    `json:"feed_port"`
	DbHost     string `json:"db_host"`
	DbPort     int    `json:"db_port"`
	DbUser     string `json:"db_user"`
	DbPass     string `json:"db_pass"`
	DbName     string `json:"db_name"`
	ListenPort int    `json:"listen_port"`
	Debug      bool   `json:"debug"`
}

var settings *Settings
var db *sql.DB

// Snapshot is the subset of the decoder snapshot the collector stores
// in dedicated columns; the full document goes into a JSONB column.
type Snapshot struct {
	Time        time.Time         `json:"time"`
	PI          string            `json:"pi"`
	PS          string            `json:"ps"`
	RT          string            `json:"rt"`
	PTY         int               `json:"pty"`
	BER         float64           `json:"ber"`
	GroupTotal  uint64            `json:"group_total"`
	TMCMessages []json.RawMessage `json:"tmc_messages"`
}

func main() {
	configPath := flag.String("config", "./settings.json", "Path to the settings.json file (default is ./settings.json)")
	flag.Parse()

	var err error
	settings, err = readSettings(*configPath)
	if err != nil {
		log.Fatal("Error reading settings: ", err)
	}
	if settings.Debug {
		log.Printf("Debug mode enabled")
	}

	go startHTTPServer()

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		settings.DbHost, settings.DbPort, settings.DbUser, settings.DbPass, settings.DbName)
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Error connecting to PostgreSQL database: ", err)
	}
	defer db.Close()
	if settings.Debug {
		log.Printf("Connected to PostgreSQL database: %s", settings.DbName)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id SERIAL PRIMARY KEY,
			pi VARCHAR(8),
			ps TEXT,
			rt TEXT,
			pty INT,
			ber REAL,
			group_total BIGINT,
			snapshot JSONB,
			received TIMESTAMP
		);
	`)
	if err != nil {
		log.Fatal("Error creating snapshots table: ", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tmc_messages (
			id SERIAL PRIMARY KEY,
			pi VARCHAR(8),
			message JSONB,
			received TIMESTAMP
		);
	`)
	if err != nil {
		log.Fatal("Error creating tmc_messages table: ", err)
	}
	createIndexesIfNotExist(db)

	feedConn, err := connectToFeed(settings.FeedHost, settings.FeedPort, settings.Debug)
	if err != nil {
		log.Fatal("Error connecting to feed: ", err)
	}
	defer feedConn.Close()

	handleFeedMessages(settings, feedConn)
}

// Read the settings from the JSON file
func readSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Connect to the decoder's feed port (outgoing TCP connection)
func connectToFeed(host string, port int, debug bool) (net.Conn, error) {
	for {
		addr := fmt.Sprintf("%s:%d", host, port)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			log.Printf("Failed to connect to feed at %s: %v. Retrying in 5 seconds...", addr, err)
			time.Sleep(5 * time.Second)
			continue
		}
		if debug {
			log.Printf("Successfully connected to feed at %s", addr)
		}
		return conn, nil
	}
}

func handleFeedMessages(settings *Settings, conn net.Conn) {
	buffer := make([]byte, 0)
	for {
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			log.Printf("Error reading from connection: %v", err)
			conn.Close()
			conn, err = connectToFeed(settings.FeedHost, settings.FeedPort, settings.Debug)
			if err != nil {
				log.Printf("Failed to reconnect: %v", err)
				continue
			}
			log.Println("Reconnected to feed")
			buffer = buffer[:0]
			continue
		}
		buffer = append(buffer, buf[:n]...)

		// Process complete messages from the buffer
		for {
			idx := bytes.IndexByte(buffer, '\x00')
			if idx == -1 {
				break
			}
			message := buffer[:idx]
			buffer = buffer[idx+1:]
			if err := processMessage(message); err != nil {
				log.Printf("Failed to process message: %v, Raw Message: %s", err, string(message))
			}
		}
	}
}

func processMessage(message []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(message, &snap); err != nil {
		return err
	}
	return storeSnapshot(message, snap)
}

// lastStoredTMC remembers the highest message id seen so each TMC
// message is archived once.
var lastStoredTMC = make(map[string]int)

func storeSnapshot(raw []byte, snap Snapshot) error {
	_, err := db.Exec(
		`INSERT INTO snapshots (pi, ps, rt, pty, ber, group_total, snapshot, received)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snap.PI, snap.PS, snap.RT, snap.PTY, snap.BER, int64(snap.GroupTotal), raw, snap.Time,
	)
	if err != nil {
		log.Printf("Error storing snapshot: %v", err)
		if isDatabaseConnectionError(err) {
			log.Println("Attempting to reconnect to the PostgreSQL database...")
			if rerr := reconnectToDatabase(); rerr != nil {
				return rerr
			}
		}
		return err
	}

	// Snapshots list TMC messages newest first; walk them oldest first so
	// the id watermark does not skip older messages of the same snapshot.
	for i := len(snap.TMCMessages) - 1; i >= 0; i-- {
		rawMsg := snap.TMCMessages[i]
		var idOnly struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(rawMsg, &idOnly); err != nil {
			continue
		}
		if idOnly.ID <= lastStoredTMC[snap.PI] {
			continue
		}
		lastStoredTMC[snap.PI] = idOnly.ID
		if _, err := db.Exec(
			`INSERT INTO tmc_messages (pi, message, received) VALUES ($1, $2, $3)`,
			snap.PI, []byte(rawMsg), snap.Time,
		); err != nil {
			log.Printf("Error storing TMC message: %v", err)
		}
	}
	return nil
}

func isDatabaseConnectionError(err error) bool {
	return err != nil && err.Error() == "pq: connection to server lost"
}

func reconnectToDatabase() error {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		settings.DbHost, settings.DbPort, settings.DbUser, settings.DbPass, settings.DbName)
	newDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return err
	}
	if err := newDB.Ping(); err != nil {
		return err
	}
	db = newDB
	log.Println("Successfully reconnected to the PostgreSQL database.")
	return nil
}

func createIndexesIfNotExist(db *sql.DB) {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_snapshots_pi ON snapshots (pi);
	`)
	if err != nil {
		log.Printf("Error creating index for pi: %v", err)
	}
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_snapshots_received ON snapshots (received);
	`)
	if err != nil {
		log.Printf("Error creating index for received: %v", err)
	}
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tmc_location ON tmc_messages (
			(message->>'location_code')
		);
	`)
	if err != nil {
		log.Printf("Error creating index for location_code: %v", err)
	}
}

func startHTTPServer() {
	if settings == nil {
		log.Fatal("Settings are not initialized.")
		return
	}

	http.HandleFunc("/settings", getSettingsHandler)
	http.HandleFunc("/history", getHistoryHandler)

	address := fmt.Sprintf(":%d", settings.ListenPort)
	log.Printf("Starting HTTP server on port %d...\n", settings.ListenPort)
	if err := http.ListenAndServe(address, nil); err != nil {
		log.Fatalf("Error starting HTTP server: %v\n", err)
	}
}

// HTTP handler that returns the contents of settings.json
func getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		http.Error(w, fmt.Sprintf("Error encoding settings: %v", err), http.StatusInternalServerError)
	}
}

// getHistoryHandler returns the most recent snapshots for a PI.
func getHistoryHandler(w http.ResponseWriter, r *http.Request) {
	pi := r.URL.Query().Get("pi")
	if pi == "" {
		http.Error(w, "pi is required", http.StatusBadRequest)
		return
	}
	rows, err := db.Query(
		`SELECT snapshot FROM snapshots WHERE pi = $1 ORDER BY received DESC LIMIT 100`, pi)
	if err != nil {
		http.Error(w, fmt.Sprintf("query error: %v", err), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			continue
		}
		out = append(out, json.RawMessage(doc))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, fmt.Sprintf("Error encoding history: %v", err), http.StatusInternalServerError)
	}
}
