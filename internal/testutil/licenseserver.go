// Package testutil provides an in-process licensing API stub for package
// tests. It speaks the same wire protocol as the production server:
// POST /activate, /deactivate and /validate with a JSON body of
// {code, plugin_id, machine_id}, answered with either an error payload
// or an operation-specific success payload.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Request is one recorded licensing call.
type Request struct {
	Path      string
	Code      string `json:"code"`
	PluginID  string `json:"plugin_id"`
	MachineID string `json:"machine_id"`
	APIKey    string
	Bearer    string
}

// Response is a scripted reply for one endpoint.
type Response struct {
	StatusCode int
	// Body is written verbatim; use RawBody for non-JSON payloads.
	Body map[string]any
	// RawBody, when non-empty, wins over Body.
	RawBody string
}

// LicenseServer is a scriptable licensing API stub.
type LicenseServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	requests  []Request
}

// NewLicenseServer starts a stub that answers every endpoint with an
// empty success object until scripted otherwise. It shuts down with the
// test.
func NewLicenseServer(t *testing.T) *LicenseServer {
	t.Helper()

	s := &LicenseServer{responses: make(map[string]Response)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Respond scripts the reply for a path ("/activate", "/deactivate",
// "/validate").
func (s *LicenseServer) Respond(path string, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = resp
}

// RespondError scripts an error payload, the shape the real server uses
// for every failure.
func (s *LicenseServer) RespondError(path, message string) {
	s.Respond(path, Response{Body: map[string]any{"error": message}})
}

// Requests returns a copy of everything received so far.
func (s *LicenseServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns how many calls hit the given path.
func (s *LicenseServer) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (s *LicenseServer) handle(w http.ResponseWriter, r *http.Request) {
	var req Request
	json.NewDecoder(r.Body).Decode(&req)
	req.Path = r.URL.Path
	req.APIKey = r.Header.Get("apikey")
	req.Bearer = r.Header.Get("Authorization")

	s.mu.Lock()
	s.requests = append(s.requests, req)
	resp, scripted := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !scripted {
		resp = Response{Body: map[string]any{}}
	}

	if resp.StatusCode != 0 {
		w.WriteHeader(resp.StatusCode)
	}
	if resp.RawBody != "" {
		w.Write([]byte(resp.RawBody))
		return
	}
	json.NewEncoder(w).Encode(resp.Body)
}
