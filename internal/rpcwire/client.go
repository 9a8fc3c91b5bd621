package rpcwire

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Call dials addr, sends a single framed request for method with the
// given params, and decodes the response's result into out (if out is
// non-nil). The connection is closed before Call returns, matching the
// spec's "one request, one response, close" transport contract.
func Call(addr string, method string, params interface{}, out interface{}, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("rpcwire: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpcwire: marshal params for %s: %w", method, err)
	}
	if err := writeFrame(conn, Request{Method: method, Params: rawParams}); err != nil {
		return fmt.Errorf("rpcwire: send %s: %w", method, err)
	}

	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return fmt.Errorf("rpcwire: receive reply to %s: %w", method, err)
	}
	if !resp.Success {
		return fmt.Errorf("rpcwire: %s failed: %s", method, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("rpcwire: decode result of %s: %w", method, err)
		}
	}
	return nil
}
