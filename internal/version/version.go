// ABOUTME: Version and product identity constants
// ABOUTME: Reported to receivers during the handshake
package version

const (
	Version      = "0.1.0"
	Product      = "SDRSync"
	Manufacturer = "SDRSync Project"
)
