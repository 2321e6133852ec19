// Package debugws is the board's debug listener: a websocket speaking JSON
// commands (export/import of the shadow image, status, forced backup,
// activity) plus the Prometheus endpoint.
package debugws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"pinshadow/interfaces"
	"pinshadow/metrics"
)

type Request struct {
	Opcode string          `json:"Opcode"`
	Args   json.RawMessage `json:"Args,omitempty"`
}

type Response struct {
	Opcode string      `json:"Opcode"`
	Result interface{} `json:"Result,omitempty"`
	Error  string      `json:"Error,omitempty"`
}

type Server struct {
	handler interfaces.CommandHandler
	mux     *http.ServeMux

	socketsMu sync.Mutex
	sockets   map[net.Conn]struct{}
}

func NewServer(handler interfaces.CommandHandler) *Server {
	s := &Server{
		handler: handler,
		mux:     http.NewServeMux(),
		sockets: make(map[net.Conn]struct{}),
	}

	s.mux.Handle("/ws/", http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(req, rw)
		if err != nil {
			log.Printf("debugws: upgrade: %v\n", err)
			return
		}
		s.track(conn, true)
		go s.serveSocket(conn)
	}))
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) track(conn net.Conn, add bool) {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()
	if add {
		s.sockets[conn] = struct{}{}
	} else {
		delete(s.sockets, conn)
	}
}

func (s *Server) closeSockets() {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()
	for conn := range s.sockets {
		_ = conn.Close()
	}
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeSockets()
	}()

	log.Printf("debugws: listening on %s\n", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) serveSocket(conn net.Conn) {
	// the reader is in control of the lifetime of the socket:
	defer func() {
		_ = conn.Close()
		s.track(conn, false)
	}()

	var (
		control = wsutil.ControlFrameHandler(conn, ws.StateServerSide)
		r       = &wsutil.Reader{
			Source:         conn,
			State:          ws.StateServerSide,
			CheckUTF8:      true,
			OnIntermediate: control,
		}
		w       = wsutil.NewWriter(conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)

	for {
		hdr, err := r.NextFrame()
		if err != nil {
			log.Printf("debugws: read frame: %v\n", err)
			return
		}
		if hdr.OpCode.IsControl() {
			if err = control(hdr, r); err != nil {
				var closed wsutil.ClosedError
				if !errors.As(err, &closed) {
					log.Printf("debugws: control frame: %v\n", err)
				}
				return
			}
			continue
		}
		if hdr.OpCode != ws.OpText {
			if err = r.Discard(); err != nil {
				return
			}
			continue
		}

		var payload []byte
		if payload, err = io.ReadAll(r); err != nil {
			log.Printf("debugws: read payload: %v\n", err)
			return
		}
		var req Request
		if err = json.Unmarshal(payload, &req); err != nil {
			log.Printf("debugws: decode request: %v\n", err)
			if err = s.reply(w, encoder, Response{Error: fmt.Sprintf("bad request: %v", err)}); err != nil {
				return
			}
			continue
		}

		if err = s.reply(w, encoder, s.execute(req)); err != nil {
			log.Printf("debugws: write response: %v\n", err)
			return
		}
	}
}

func (s *Server) reply(w *wsutil.Writer, encoder *json.Encoder, rsp Response) error {
	if err := encoder.Encode(&rsp); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) execute(req Request) (rsp Response) {
	rsp.Opcode = req.Opcode

	// a failing command must not take the listener down with it:
	defer func() {
		if p := recover(); p != nil {
			log.Printf("debugws: %s: panic: %v\n", req.Opcode, p)
			rsp.Result = nil
			rsp.Error = fmt.Sprintf("internal error: %v", p)
		}
	}()

	ce, err := s.handler.CommandFor(req.Opcode)
	if err != nil {
		rsp.Error = err.Error()
		return
	}

	// instantiate a specific args type for the command:
	args := ce.CreateArgs()
	if args != nil && len(req.Args) > 0 {
		if err = json.Unmarshal(req.Args, args); err != nil {
			rsp.Error = fmt.Sprintf("bad args: %v", err)
			return
		}
	}

	rsp.Result, err = ce.Execute(args)
	if err != nil {
		log.Printf("debugws: %s: %v\n", req.Opcode, err)
		rsp.Error = err.Error()
	}
	return
}
