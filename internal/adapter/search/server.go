package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"topicidx/internal/domain"
	"topicidx/internal/metrics"
)

// Searcher is what the server exposes over RPC.
type Searcher interface {
	Search(ctx context.Context, algorithm string, size int, query string) ([]string, error)
	DocCount() (uint64, error)
}

// Server accepts one JSON-RPC request per connection.
type Server struct {
	network  string
	address  string
	searcher Searcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	started  time.Time

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
	shutdown  bool
	wg        sync.WaitGroup
}

// NewServer creates a server for network ("tcp" or "unix") and address.
func NewServer(network, address string, searcher Searcher, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		network:  network,
		address:  address,
		searcher: searcher,
		metrics:  m,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Addr blocks until ListenAndServe has either bound its listener or failed
// to, and returns the bound address. It returns nil when listening failed.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.network == "unix" {
		_ = os.Remove(s.address)
	}

	listener, err := net.Listen(s.network, s.address)
	if err != nil {
		s.markReady()
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()
	s.markReady()

	defer func() {
		_ = listener.Close()
		if s.network == "unix" {
			_ = os.Remove(s.address)
		}
	}()

	s.logger.Info("search_server_listening",
		slog.String("network", s.network),
		slog.String("address", listener.Addr().String()))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("search_server_accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		s.logger.Warn("search_server_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	_ = encoder.Encode(s.handleRequest(ctx, req))
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be 2.0")
	}

	switch req.Method {
	case MethodPing:
		s.metrics.SearchRequest(MethodPing, nil)
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		status, err := s.status()
		s.metrics.SearchRequest(MethodStatus, err)
		if err != nil {
			return NewErrorResponse(req.ID, ErrCodeInternalError, err.Error())
		}
		return NewSuccessResponse(req.ID, status)

	case MethodSearch:
		resp, err := s.handleSearch(ctx, req)
		s.metrics.SearchRequest(MethodSearch, err)
		return resp

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleSearch(ctx context.Context, req Request) (Response, error) {
	paramsData, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params"), err
	}

	var params SearchParams
	if err := json.Unmarshal(paramsData, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), err
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error()), err
	}

	ids, err := s.searcher.Search(ctx, params.Algorithm, params.Size, params.Query)
	if err != nil {
		code := ErrCodeSearchFailed
		if errors.Is(err, domain.ErrInvalidInput) {
			code = ErrCodeInvalidParams
		}
		s.logger.Warn("search_failed",
			slog.String("algorithm", params.Algorithm),
			slog.String("error", err.Error()))
		return NewErrorResponse(req.ID, code, err.Error()), err
	}

	return NewSuccessResponse(req.ID, SearchResult{IDs: ids}), nil
}

func (s *Server) status() (StatusResult, error) {
	docs, err := s.searcher.DocCount()
	if err != nil {
		return StatusResult{}, err
	}
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	return StatusResult{
		Running:    true,
		PID:        os.Getpid(),
		Uptime:     time.Since(started).Round(time.Second).String(),
		Documents:  docs,
		Algorithms: []string{domain.AlgorithmBM25, domain.AlgorithmTFIDF},
	}, nil
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
