// Package server exposes the engine's two remote operations, Search and
// Insert, over a length-delimited binary TCP protocol. The server is a thin
// adapter: it validates dimensions, marshals frames and records per-operation
// latency; all search semantics live in the core.
//
// Wire format, little-endian throughout. Every frame is a u32 body length
// followed by the body; a request body starts with a one-byte opcode.
//
//	Search  req:  0x01 | k u32 | ef u32 | dim u32 | dim × f32
//	        resp: code i32 | n u32 | n × u32 ids
//	Insert  req:  0x02 | id u32 | dim u32 | dim × f32
//	        resp: code i32
//
// code is 0 on success, -1 on dimension mismatch, -2 on any other failure.
package server

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	vex "github.com/vexsearch/vex"
	"github.com/vexsearch/vex/model"
)

// Opcodes.
const (
	OpSearch byte = 0x01
	OpInsert byte = 0x02
)

// Response codes.
const (
	CodeOK                int32 = 0
	CodeDimensionMismatch int32 = -1
	CodeError             int32 = -2
)

// maxFrameSize bounds a request body; large enough for any sane dimension.
const maxFrameSize = 1 << 24

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Options configures the server.
type Options struct {
	Logger *vex.Logger

	// Registerer receives the latency histograms and request counters.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Server accepts connections and dispatches frames against a Vex instance.
type Server struct {
	db      *vex.Vex
	logger  *vex.Logger
	metrics *metrics

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// New creates a server around db.
func New(db *vex.Vex, optFns ...func(o *Options)) *Server {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = vex.NoopLogger()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	return &Server{
		db:      db,
		logger:  opts.Logger,
		metrics: newMetrics(opts.Registerer),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; after Shutdown the error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			return err
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown closes the listener and every open connection, then waits for the
// connection handlers to drain.
func (s *Server) Shutdown() {
	if s.closed.Swap(true) {
		return
	}

	s.mu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("server stopped")
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	log := &vex.Logger{Logger: s.logger.With(
		"conn_id", uuid.NewString(),
		"remote", conn.RemoteAddr().String(),
	)}
	log.Debug("connection opened")

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		body, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				log.Debug("connection closed", "error", err)
			}
			return
		}

		resp := s.dispatch(body)
		if err := writeFrame(w, resp); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(body []byte) []byte {
	if len(body) == 0 {
		return respCode(CodeError)
	}
	switch body[0] {
	case OpSearch:
		return s.handleSearch(body[1:])
	case OpInsert:
		return s.handleInsert(body[1:])
	default:
		return respCode(CodeError)
	}
}

func (s *Server) handleSearch(payload []byte) []byte {
	start := time.Now()
	defer func() {
		s.metrics.searchLatency.Observe(time.Since(start).Seconds())
	}()

	if len(payload) < 12 {
		s.metrics.requests.WithLabelValues("search", "error").Inc()
		return respCode(CodeError)
	}
	k := binary.LittleEndian.Uint32(payload[0:4])
	ef := binary.LittleEndian.Uint32(payload[4:8])
	dim := int(binary.LittleEndian.Uint32(payload[8:12]))

	if dim != s.db.Dimension() || len(payload) != 12+dim*4 {
		s.metrics.requests.WithLabelValues("search", "dimension_mismatch").Inc()
		return respCode(CodeDimensionMismatch)
	}

	query := decodeFloats(payload[12:], dim)
	results, err := s.db.Search(context.Background(), query, int(k), int(ef))
	if err != nil {
		s.metrics.requests.WithLabelValues("search", "error").Inc()
		return respCode(CodeError)
	}

	s.metrics.requests.WithLabelValues("search", "ok").Inc()

	resp := make([]byte, 8+4*len(results))
	binary.LittleEndian.PutUint32(resp[0:4], uint32(CodeOK))
	binary.LittleEndian.PutUint32(resp[4:8], uint32(len(results)))
	for i, r := range results {
		binary.LittleEndian.PutUint32(resp[8+4*i:], uint32(r.ID))
	}
	return resp
}

func (s *Server) handleInsert(payload []byte) []byte {
	start := time.Now()
	defer func() {
		s.metrics.insertLatency.Observe(time.Since(start).Seconds())
	}()

	if len(payload) < 8 {
		s.metrics.requests.WithLabelValues("insert", "error").Inc()
		return respCode(CodeError)
	}
	id := binary.LittleEndian.Uint32(payload[0:4])
	dim := int(binary.LittleEndian.Uint32(payload[4:8]))

	if dim != s.db.Dimension() || len(payload) != 8+dim*4 {
		s.metrics.requests.WithLabelValues("insert", "dimension_mismatch").Inc()
		return respCode(CodeDimensionMismatch)
	}

	vec := decodeFloats(payload[8:], dim)
	if err := s.db.Insert(context.Background(), model.VectorID(id), vec); err != nil {
		s.metrics.requests.WithLabelValues("insert", "error").Inc()
		return respCode(CodeError)
	}

	s.metrics.requests.WithLabelValues("insert", "ok").Inc()
	return respCode(CodeOK)
}

func respCode(code int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(code))
	return b
}

func decodeFloats(b []byte, n int) []float32 {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	if size == 0 || size > maxFrameSize {
		return nil, errors.New("invalid frame size")
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeFrame(w *bufio.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
