// ABOUTME: WebSocket client for one remote receiver's audio feed
// ABOUTME: Handles connection, handshake, tuning, and message routing
package client

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sdrsync/sdrsync-go/internal/protocol"
)

// Config holds receiver client configuration
type Config struct {
	ReceiverAddr string
	ClientID     string
	Name         string
	Version      int
	Frequency    int    // Hz
	Mode         string // usb, lsb, am, cw, fm
}

// Client is a WebSocket connection to one receiver
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	Chunks      chan AudioChunk
	StreamStart chan protocol.StreamStart
	Metadata    chan protocol.StreamMetadata

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// AudioChunk is one timestamped encoded audio frame from the receiver
type AudioChunk struct {
	TimestampMs float64 // Receiver clock, milliseconds
	Data        []byte  // Encoded audio
}

// NewClient creates a receiver client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:      config,
		Chunks:      make(chan AudioChunk, 100),
		StreamStart: make(chan protocol.StreamStart, 1),
		Metadata:    make(chan protocol.StreamMetadata, 10),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Connect establishes the WebSocket connection and performs the
// handshake, then tunes the receiver
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ReceiverAddr, Path: "/stream"}
	log.Printf("Connecting to receiver %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	if err := c.Tune(c.config.Frequency, c.config.Mode); err != nil {
		c.Close()
		return fmt.Errorf("tune failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake exchanges hello messages with the receiver
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID: c.config.ClientID,
		Name:     c.config.Name,
		Version:  c.config.Version,
	}

	if err := c.sendJSON(protocol.Message{Type: "client/hello", Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	// Wait for receiver/hello (with timeout)
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read receiver/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse receiver/hello: %w", err)
	}
	if msg.Type != "receiver/hello" {
		return fmt.Errorf("expected receiver/hello, got %s", msg.Type)
	}

	log.Printf("Handshake complete with receiver %s", c.config.ReceiverAddr)
	return nil
}

// Tune requests a frequency and mode on the receiver
func (c *Client) Tune(frequency int, mode string) error {
	tune := protocol.Tune{Frequency: frequency, Mode: mode}
	return c.sendJSON(protocol.Message{Type: "client/tune", Payload: tune})
}

// sendJSON sends a JSON control message
func (c *Client) sendJSON(msg protocol.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("Receiver %s read error: %v", c.config.ReceiverAddr, err)
			return
		}

		if messageType == websocket.BinaryMessage {
			c.handleBinaryMessage(data)
		} else if messageType == websocket.TextMessage {
			c.handleJSONMessage(data)
		}
	}
}

// handleBinaryMessage handles timestamped audio frames
func (c *Client) handleBinaryMessage(data []byte) {
	if len(data) < 9 {
		log.Printf("Invalid binary message: too short")
		return
	}

	if data[0] != 0 {
		log.Printf("Unknown binary message type: %d", data[0])
		return
	}

	timestampMicros := int64(binary.BigEndian.Uint64(data[1:9]))

	chunk := AudioChunk{
		TimestampMs: float64(timestampMicros) / 1000.0,
		Data:        data[9:],
	}

	select {
	case c.Chunks <- chunk:
	default:
		// Feed consumers must never block the socket reader
	}
}

// handleJSONMessage routes JSON control messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	payloadBytes, _ := json.Marshal(msg.Payload)

	switch msg.Type {
	case "stream/start":
		var start protocol.StreamStart
		json.Unmarshal(payloadBytes, &start)
		select {
		case c.StreamStart <- start:
		case <-c.ctx.Done():
		}

	case "stream/metadata":
		var meta protocol.StreamMetadata
		json.Unmarshal(payloadBytes, &meta)
		select {
		case c.Metadata <- meta:
		case <-c.ctx.Done():
		}

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// Connected reports whether the client holds an open connection
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close tears down the connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connected = false
		c.mu.Unlock()
	})
}
