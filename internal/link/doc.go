// Package link sequences request/response exchanges with the controller
// over a half-duplex transport.
//
// The bus allows exactly one outstanding request: the controller answers
// the frame it last received and nothing else. Link therefore serialises
// all callers through a FIFO queue and keeps a single pending slot. A
// request is transmitted, the response matched by sender address and
// paired frame type, and only then is the next request dequeued. A
// request that receives no response within the timeout is retransmitted
// up to the retry budget and then fails with ErrRequestTimeout.
//
// Frames that match no pending request (sensor pushes, regulator
// broadcasts) are handed to the unsolicited frame handler.
//
// Link owns the connection lifecycle: it opens the transport, reconnects
// with capped exponential backoff after failures, and fails requests fast
// while the link is down rather than queueing into the void.
package link
