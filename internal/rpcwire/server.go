package rpcwire

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Handler dispatches one decoded method call to its implementation
// and returns the value to be marshaled into the response's "result",
// or an error to be surfaced as the response's "error" string. The
// coordinator's handler shares a single mutex across every concurrent
// call.
type Handler func(method string, params json.RawMessage) (result interface{}, err error)

// Server accepts short-lived connections and answers exactly one
// framed request per connection.
type Server struct {
	Listener   net.Listener
	Handler    Handler
	IOTimeout  time.Duration
	Log        zerolog.Logger
}

// Serve blocks, accepting connections until the listener is closed. It
// always returns a non-nil error; net.ErrClosed from a deliberate
// shutdown is not treated as a failure by callers.
func (s *Server) Serve() error {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			return err
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	if s.IOTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.IOTimeout))
	}

	var req Request
	if err := readFrame(conn, &req); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.Log.Debug().Err(err).Msg("rpcwire: failed to read request")
		}
		return
	}

	result, err := s.Handler(req.Method, req.Params)
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	} else if result != nil {
		raw, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			resp = Response{Success: false, Error: marshalErr.Error()}
		} else {
			resp.Result = raw
		}
	}

	if err := writeFrame(conn, resp); err != nil {
		s.Log.Debug().Err(err).Msg("rpcwire: failed to write response")
	}
}
