// Package transport provides byte-stream connections to an ecoMAX
// controller, either directly over a serial port or through a TCP
// serial-device server (RS-485 to Ethernet bridge).
//
// Transports carry raw bytes only; framing lives in the protocol package
// and request sequencing in the link package. Both implementations share
// the same contract: Open establishes the connection, Send writes a whole
// buffer, Receive blocks until bytes arrive or the configured read
// timeout elapses, and Close releases the connection. A Receive that
// times out returns (0, nil) so callers can poll for cancellation without
// treating silence as a failure.
package transport
