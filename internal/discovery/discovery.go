// Package discovery implements the coordinator-endpoint handoff: the
// coordinator writes its listener address to a well-known rendezvous
// file, and workers poll for it with a bounded doubling backoff,
// tolerating a coordinator that is still starting up.
package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultPath is the fixed rendezvous file name and location.
const DefaultPath = "coordinator_info.txt"

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// Publish atomically installs the coordinator's host:port at path,
// using the same temp-then-rename discipline as every other artifact
// this system publishes.
func Publish(path, hostport string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(hostport+"\n"), 0o644); err != nil {
		return fmt.Errorf("discovery: write rendezvous: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("discovery: publish rendezvous: %w", err)
	}
	return nil
}

// Remove deletes the rendezvous file on clean coordinator shutdown.
// A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discovery: remove rendezvous: %w", err)
	}
	return nil
}

// Wait polls for the rendezvous file, retrying with a doubling backoff
// (100ms up to 2s) until it appears, ctx is cancelled, or a read error
// other than "not exist" occurs.
func Wait(ctx context.Context, path string) (string, error) {
	backoff := initialBackoff
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("discovery: read rendezvous: %w", err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
