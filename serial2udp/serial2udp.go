package main

import (
	"bufio"
	"flag"
	"io"
	"log"
	"net"
	"regexp"
	"strings"
	"time"

	"go.bug.st/serial"
)

// frameRe is a cheap sanity filter: a line must contain at least one
// 4-hex-digit block or a JSON group record before it is worth forwarding.
var frameRe = regexp.MustCompile(`(?i)[0-9A-F]{4}|\{.*"g1"`)

func main() {
	// CLI flags
	serialPort := flag.String("serial-port", "/dev/ttyUSB0", "Serial port device")
	baud := flag.Int("baud", 115200, "Baud rate")
	udpAddrs := flag.String("udp", "127.0.0.1:8102", "Comma-separated UDP destinations")
	forwardAll := flag.Bool("forward-all", false, "Forward every line instead of only group frames")
	debug := flag.Bool("debug", false, "Enable debug logging of forwarded data")
	flag.Parse()

	// Open serial
	mode := &serial.Mode{BaudRate: *baud}
	port, err := serial.Open(*serialPort, mode)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *serialPort, err)
	}
	defer port.Close()
	log.Printf("Listening on %s @ %d baud", *serialPort, *baud)

	// Setup UDP conns
	dests := splitAndTrim(*udpAddrs, ",")
	conns := make([]*net.UDPConn, len(dests))
	for i, d := range dests {
		addr, err := net.ResolveUDPAddr("udp", d)
		if err != nil {
			log.Fatalf("Invalid UDP addr %q: %v", d, err)
		}
		c, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			log.Fatalf("Dial %s: %v", addr, err)
		}
		conns[i] = c
		log.Printf("Forwarding to %s", addr)
	}

	reader := bufio.NewReader(port)
	for {
		frame, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			log.Fatalf("Serial read error: %v", err)
		}
		if !*forwardAll && !frameRe.Match(frame) {
			continue
		}
		if *debug {
			log.Printf("Forwarding: %q", frame)
		}
		for _, c := range conns {
			c.Write(frame) // no retry
		}
	}
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
