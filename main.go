// ABOUTME: Entry point for the SDRSync multi-receiver client
// ABOUTME: Parses CLI flags and starts the application
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sdrsync/sdrsync-go/internal/app"
	"github.com/sdrsync/sdrsync-go/internal/version"
)

var (
	receivers   = flag.String("receivers", "", "Comma-separated receiver addresses (skip mDNS)")
	frequency   = flag.Int("frequency", 7074000, "Tuning frequency in Hz")
	mode        = flag.String("mode", "usb", "Demodulation mode (usb, lsb, am, cw, fm)")
	name        = flag.String("name", "", "Session name (default: hostname-sdrsync)")
	bufferMs    = flag.Int("buffer-ms", 150, "Playback buffer target in milliseconds")
	toleranceMs = flag.Float64("tolerance-ms", 50, "Alignment acceptance window in milliseconds")
	logFile     = flag.String("log-file", "sdrsync.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs  = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		multiWriter := io.MultiWriter(os.Stdout, f)
		log.SetOutput(multiWriter)
	}

	sessionName := *name
	if sessionName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		sessionName = fmt.Sprintf("%s-sdrsync", hostname)
	}

	var receiverList []string
	if *receivers != "" {
		for _, addr := range strings.Split(*receivers, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				receiverList = append(receiverList, addr)
			}
		}
	}

	log.Printf("Starting %s %s: %s, %d Hz %s",
		version.Product, version.Version, sessionName, *frequency, *mode)

	a := app.New(app.Config{
		Receivers:   receiverList,
		Frequency:   *frequency,
		Mode:        *mode,
		Name:        sessionName,
		BufferMs:    *bufferMs,
		ToleranceMs: *toleranceMs,
		UseTUI:      useTUI,
	})

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		a.Stop()
	}()

	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	log.Printf("Stopped")
}
