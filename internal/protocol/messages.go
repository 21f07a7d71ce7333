// ABOUTME: Receiver protocol message type definitions
// ABOUTME: Defines structs for the control messages exchanged with receivers
package protocol

// Message is the top-level wrapper for all JSON control messages.
// Audio travels separately as binary frames: a type byte (0), an
// 8-byte big-endian timestamp in microseconds, then the encoded
// payload.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent to a receiver to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ReceiverHello is the receiver's response to client/hello
type ReceiverHello struct {
	ReceiverID string `json:"receiver_id"`
	Name       string `json:"name"`
	Locator    string `json:"locator,omitempty"` // Maidenhead grid square
	Version    int    `json:"version"`
}

// Tune requests a frequency and demodulation mode. All receivers in a
// session are tuned identically so their audio carries the same signal.
type Tune struct {
	Frequency     int    `json:"frequency"` // Hz
	Mode          string `json:"mode"`      // usb, lsb, am, cw, fm
	BandwidthLow  int    `json:"bandwidth_low,omitempty"`
	BandwidthHigh int    `json:"bandwidth_high,omitempty"`
}

// StreamStart notifies the client of the audio stream format
type StreamStart struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// StreamMetadata describes the receiver behind a stream
type StreamMetadata struct {
	ReceiverName string `json:"receiver_name"`
	Locator      string `json:"locator,omitempty"`
	Frequency    int    `json:"frequency"`
	Mode         string `json:"mode"`
}
