// ABOUTME: Version constants reported during the protocol handshake
// ABOUTME: Single place to bump release information
package version

const (
	// Version is the client software version.
	Version = "0.2.0"

	// Product is the product name advertised to servers.
	Product = "Tempocast Player"

	// Manufacturer identifies the project in device info.
	Manufacturer = "Tempocast"
)
