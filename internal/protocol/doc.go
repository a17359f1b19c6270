// Package protocol implements the ecoNET wire protocol used by ecoMAX
// controllers on their half-duplex RS-485 service bus.
//
// # Frame format
//
// Every frame has the same envelope:
//
//	Byte 0:    start delimiter (0x68)
//	Byte 1-2:  total frame length, little-endian (start through end byte)
//	Byte 3:    recipient address
//	Byte 4:    sender address
//	Byte 5:    sender type
//	Byte 6:    protocol version
//	Byte 7:    frame type
//	Byte 8+:   payload
//	Byte n-2:  CRC (XOR of all preceding bytes)
//	Byte n-1:  end delimiter (0x16)
//
// Request/response pairing is positional: a response carries the request's
// frame type with the high bit set (response = request | 0x80). Frame types
// without the high bit that arrive unrequested (sensor data, regulator data)
// are unsolicited telemetry pushed by the controller.
//
// # Error handling
//
// Decoding is defensive: a truncated buffer, CRC mismatch, or bad delimiter
// yields a DecodeError and never a panic. Scanner recovers from corrupt
// input by discarding bytes until the next start delimiter, so line noise
// costs at most one frame, never the connection.
package protocol
