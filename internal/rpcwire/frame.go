// Package rpcwire implements a length-prefixed JSON request/response
// frame over a connection-oriented transport, one request and one
// response per connection, then close. It replaces net/rpc (which
// speaks gob over an HTTP CONNECT handshake) with a plain JSON
// envelope that's easy to log and inspect on the wire, while keeping
// the same short-lived, single-mutex-guarded connection-handling
// shape.
package rpcwire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single frame so a malformed or hostile peer
// cannot force an unbounded allocation.
const maxFrameBytes = 64 << 20

// Request is the envelope carried by every call: a method name and
// its opaque, method-specific parameters.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is the envelope carried by every reply.
type Response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// writeFrame writes v as a 4-byte big-endian length prefix followed by
// its JSON encoding.
func writeFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpcwire: marshal frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("rpcwire: write frame length: %w", err)
	}
	if _, err := bw.Write(body); err != nil {
		return fmt.Errorf("rpcwire: write frame body: %w", err)
	}
	return bw.Flush()
}

// readFrame reads one length-prefixed JSON frame and decodes it into v.
func readFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return fmt.Errorf("rpcwire: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return fmt.Errorf("rpcwire: frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("rpcwire: read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("rpcwire: unmarshal frame: %w", err)
	}
	return nil
}
