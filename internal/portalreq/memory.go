package portalreq

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryService is a Service that answers every request from memory:
// StartRequest records the request, GetHeaders replays canned headers,
// DeliverFile writes the recorded body into the descriptor it is
// handed. It backs the daemon until a real fetch layer exists and
// doubles as the fixture for end-to-end tests.
type MemoryService struct {
	log zerolog.Logger

	mu       sync.Mutex
	nextID   int64
	requests map[int64]*memoryRequest
}

type memoryRequest struct {
	req StartRequest
}

func NewMemoryService(log zerolog.Logger) *MemoryService {
	return &MemoryService{
		log:      log,
		requests: make(map[int64]*memoryRequest),
	}
}

func (s *MemoryService) StartRequest(_ context.Context, req *StartRequest) (StartOutcome, error) {
	if req.Method == "" || req.URL == "" {
		return Refused{Reason: "method and url are required"}, nil
	}
	if !strings.Contains(req.URL, "://") {
		return Refused{Reason: fmt.Sprintf("url %q has no scheme", req.URL)}, nil
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.requests[id] = &memoryRequest{req: *req}
	s.mu.Unlock()

	s.log.Debug().Int64("id", id).Str("method", req.Method).Str("url", req.URL).
		Msg("request started")
	return Started{ID: id}, nil
}

func (s *MemoryService) GetHeaders(_ context.Context, req *GetHeaders) (*GetHeadersResponse, error) {
	s.mu.Lock()
	entry, ok := s.requests[req.ID]
	s.mu.Unlock()
	if !ok {
		return &GetHeadersResponse{ID: req.ID, Status: 404}, nil
	}

	headers := []Header{
		{Name: "Content-Type", Value: "application/octet-stream"},
		{Name: "Content-Length", Value: fmt.Sprintf("%d", len(entry.req.Body))},
	}
	// Echo the request headers back so callers can verify the exact
	// pairs they sent survived the trip.
	headers = append(headers, entry.req.Headers...)
	return &GetHeadersResponse{ID: req.ID, Status: 200, Headers: headers}, nil
}

func (s *MemoryService) DeliverFile(_ context.Context, req *DeliverFile) (*DeliverFileResponse, *RequestFinished, error) {
	f := req.File.Take()
	if f == nil {
		return nil, nil, fmt.Errorf("portalreq: DeliverFile %d carried no descriptor", req.ID)
	}
	defer f.Close()

	s.mu.Lock()
	entry, ok := s.requests[req.ID]
	s.mu.Unlock()

	if !ok {
		return &DeliverFileResponse{Written: 0},
			&RequestFinished{ID: req.ID, Err: &NetworkError{Code: 404, Message: "unknown request"}},
			nil
	}

	n, err := f.Write(entry.req.Body)
	if err != nil {
		return &DeliverFileResponse{Written: uint64(n)},
			&RequestFinished{ID: req.ID, TotalSize: uint64(n),
				Err: &NetworkError{Code: 500, Message: err.Error()}},
			nil
	}

	s.log.Debug().Int64("id", req.ID).Int("bytes", n).Msg("body delivered")
	return &DeliverFileResponse{Written: uint64(n)},
		&RequestFinished{ID: req.ID, TotalSize: uint64(n)},
		nil
}
