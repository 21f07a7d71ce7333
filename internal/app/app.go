// ABOUTME: Main application orchestration
// ABOUTME: Coordinates receiver feeds, alignment engine, audio output, and UI
package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/sdrsync/sdrsync-go/internal/align"
	"github.com/sdrsync/sdrsync-go/internal/audio"
	"github.com/sdrsync/sdrsync-go/internal/client"
	"github.com/sdrsync/sdrsync-go/internal/discovery"
	"github.com/sdrsync/sdrsync-go/internal/player"
	"github.com/sdrsync/sdrsync-go/internal/ui"
)

// Config holds application configuration
type Config struct {
	Receivers   []string // manual receiver addresses; empty means discover
	Frequency   int      // Hz
	Mode        string
	Name        string
	BufferMs    int
	ToleranceMs float64
	UseTUI      bool
}

// feed is one connected receiver and its decoder
type feed struct {
	id      audio.SourceID
	client  *client.Client
	decoder audio.Decoder
}

// App wires receiver feeds through the alignment engine to the speaker
type App struct {
	config    Config
	engine    *align.Engine
	output    *player.Output
	discovery *discovery.Manager

	mu     sync.Mutex
	feeds  map[audio.SourceID]*feed
	nextID audio.SourceID

	tuiProg    *tea.Program
	volumeCtrl *ui.VolumeControl

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the application
func New(config Config) *App {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := align.DefaultConfig()
	if config.BufferMs > 0 {
		cfg.TargetFillMs = float64(config.BufferMs)
	}
	if config.ToleranceMs > 0 {
		cfg.ToleranceMs = config.ToleranceMs
	}

	return &App{
		config: config,
		engine: align.NewEngine(cfg),
		output: player.NewOutput(),
		feeds:  make(map[audio.SourceID]*feed),
		nextID: 1,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the application until Stop or fatal error
func (a *App) Start() error {
	if a.config.UseTUI {
		a.volumeCtrl = ui.NewVolumeControl()
		tuiProg, err := ui.Run(a.volumeCtrl)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		a.tuiProg = tuiProg
		go a.tuiProg.Run()
		go a.handleVolumeControl()
		go a.statusLoop()
	}

	a.engine.Start()

	if err := a.output.Initialize(audio.DefaultFormat(), a.engine); err != nil {
		return fmt.Errorf("failed to initialize output: %w", err)
	}

	if len(a.config.Receivers) == 0 {
		a.discovery = discovery.NewManager(discovery.Config{
			ServiceName: a.config.Name,
		})
		a.discovery.Browse()
		go a.handleDiscovery()
	} else {
		for _, addr := range a.config.Receivers {
			if err := a.connect(addr); err != nil {
				log.Printf("Connection to %s failed: %v", addr, err)
			}
		}
		a.mu.Lock()
		n := len(a.feeds)
		a.mu.Unlock()
		if n == 0 {
			return fmt.Errorf("no receivers connected")
		}
	}

	<-a.ctx.Done()
	return nil
}

// handleDiscovery connects to receivers as they appear
func (a *App) handleDiscovery() {
	for {
		select {
		case receiver := <-a.discovery.Receivers():
			addr := fmt.Sprintf("%s:%d", receiver.Host, receiver.Port)
			log.Printf("Attempting connection to discovered receiver %s", addr)

			if err := a.connect(addr); err != nil {
				log.Printf("Connection to %s failed: %v", addr, err)
			}

		case <-a.ctx.Done():
			return
		}
	}
}

// connect establishes a feed from one receiver
func (a *App) connect(addr string) error {
	c := client.NewClient(client.Config{
		ReceiverAddr: addr,
		ClientID:     uuid.New().String(),
		Name:         a.config.Name,
		Version:      1,
		Frequency:    a.config.Frequency,
		Mode:         a.config.Mode,
	})

	if err := c.Connect(); err != nil {
		return err
	}

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	f := &feed{id: id, client: c, decoder: &audio.PCMDecoder{}}
	a.feeds[id] = f
	a.mu.Unlock()

	a.engine.AddSource(id)
	log.Printf("Receiver %s connected as source %d", addr, id)

	go a.handleStreamStart(f)
	go a.handleChunks(f)
	go a.handleMetadata(f)

	return nil
}

// handleStreamStart swaps in the decoder for the announced format
func (a *App) handleStreamStart(f *feed) {
	for {
		select {
		case start := <-f.client.StreamStart:
			log.Printf("Source %d stream: %s %dHz %dch",
				f.id, start.Codec, start.SampleRate, start.Channels)

			decoder, err := audio.NewDecoder(audio.Format{
				Codec:      start.Codec,
				SampleRate: start.SampleRate,
				Channels:   start.Channels,
				BitDepth:   start.BitDepth,
			})
			if err != nil {
				log.Printf("Source %d: failed to create decoder: %v", f.id, err)
				continue
			}

			a.mu.Lock()
			f.decoder = decoder
			a.mu.Unlock()

		case <-a.ctx.Done():
			return
		}
	}
}

// handleChunks decodes feed audio and pushes it into the engine
func (a *App) handleChunks(f *feed) {
	for {
		select {
		case chunk := <-f.client.Chunks:
			a.mu.Lock()
			decoder := f.decoder
			a.mu.Unlock()

			pcm, err := decoder.Decode(chunk.Data)
			if err != nil {
				log.Printf("Source %d decode error: %v", f.id, err)
				continue
			}

			a.engine.AddData(f.id, chunk.TimestampMs, pcm)

		case <-a.ctx.Done():
			return
		}
	}
}

// handleMetadata logs receiver details as they arrive
func (a *App) handleMetadata(f *feed) {
	for {
		select {
		case meta := <-f.client.Metadata:
			log.Printf("Source %d: %s (%s) tuned %d Hz %s",
				f.id, meta.ReceiverName, meta.Locator, meta.Frequency, meta.Mode)

		case <-a.ctx.Done():
			return
		}
	}
}

// handleVolumeControl applies TUI volume changes to the output
func (a *App) handleVolumeControl() {
	for {
		select {
		case change := <-a.volumeCtrl.Changes:
			a.output.SetVolume(change.Volume)
			a.output.SetMuted(change.Muted)

		case <-a.volumeCtrl.Quit:
			a.Stop()
			return

		case <-a.ctx.Done():
			return
		}
	}
}

// statusLoop pushes engine state into the TUI
func (a *App) statusLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := a.engine.Metrics()
			a.tuiProg.Send(ui.StatusMsg{
				Frequency: a.config.Frequency,
				Mode:      a.config.Mode,
				Metrics:   &metrics,
				Offsets:   metrics.SourceOffsetMs,
				Drifts:    metrics.SourceDriftRate,
			})

		case <-a.ctx.Done():
			return
		}
	}
}

// Stop tears everything down
func (a *App) Stop() {
	a.cancel()

	a.mu.Lock()
	for _, f := range a.feeds {
		f.client.Close()
	}
	a.mu.Unlock()

	if a.discovery != nil {
		a.discovery.Stop()
	}

	a.engine.Stop()
	a.output.Close()

	if a.tuiProg != nil {
		a.tuiProg.Quit()
	}
}
