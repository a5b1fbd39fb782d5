// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apitest provides an in-process fake of the RAG service for tests.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/jeranaias/ragchat/internal/api"
)

// Request is a recorded incoming call.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Reply is a scripted response.
type Reply struct {
	Status int
	Body   interface{}
}

// Server is a scriptable fake RAG service. The zero state answers every
// endpoint with an empty success payload; tests override handlers with the
// Set* methods.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []Request
	sessions  []api.SessionRecord
	history   map[string][]api.HistoryRecord
	gates     map[string]chan struct{}
	nextID    int
	health    func() Reply
	chat      func(api.ChatRequest) Reply
	upload    func(name, contentType string, data []byte) Reply
	status    func(call int) Reply
	clear     func() Reply
	info      func() Reply
	deleteFn  func(id string) Reply
	listFn    func() Reply
	statusN   int
	requireTk string
}

// NewServer starts a fake service. Call Close when done.
func NewServer() *Server {
	s := &Server{
		history: make(map[string][]api.HistoryRecord),
		gates:   make(map[string]chan struct{}),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// BaseURL returns the root to pass to api.Config.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// =============================================================================
// SCRIPTING
// =============================================================================

// RequireToken makes every endpoint answer 401 unless the bearer matches.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireTk = token
}

// SetSessions replaces the session list.
func (s *Server) SetSessions(sessions ...api.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]api.SessionRecord(nil), sessions...)
}

// SetHistory replaces the stored messages of a session.
func (s *Server) SetHistory(id string, records ...api.HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[id] = append([]api.HistoryRecord(nil), records...)
}

// HoldHistory blocks GET /history/{id} until the returned func is called.
func (s *Server) HoldHistory(id string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[id] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// OnHealth scripts GET /health.
func (s *Server) OnHealth(fn func() Reply) { s.set(func() { s.health = fn }) }

// OnChat scripts POST /chat.
func (s *Server) OnChat(fn func(api.ChatRequest) Reply) { s.set(func() { s.chat = fn }) }

// OnUpload scripts POST /upload.
func (s *Server) OnUpload(fn func(name, contentType string, data []byte) Reply) {
	s.set(func() { s.upload = fn })
}

// OnUploadStatus scripts GET /upload/status. call counts from 1.
func (s *Server) OnUploadStatus(fn func(call int) Reply) { s.set(func() { s.status = fn }) }

// OnInfo scripts GET /info.
func (s *Server) OnInfo(fn func() Reply) { s.set(func() { s.info = fn }) }

// OnClear scripts POST /clear.
func (s *Server) OnClear(fn func() Reply) { s.set(func() { s.clear = fn }) }

// OnDelete scripts DELETE /history/{id}. The default removes the session.
func (s *Server) OnDelete(fn func(id string) Reply) { s.set(func() { s.deleteFn = fn }) }

// OnList scripts GET /history. The default returns the stored sessions.
func (s *Server) OnList(fn func() Reply) { s.set(func() { s.listFn = fn }) }

func (s *Server) set(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// =============================================================================
// INSPECTION
// =============================================================================

// Requests returns a copy of all recorded calls.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many calls matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// StoredHistory returns what the fake has persisted for a session.
func (s *Server) StoredHistory(id string) []api.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.HistoryRecord(nil), s.history[id]...)
}

// =============================================================================
// HANDLER
// =============================================================================

// routes mirrors the service's endpoint table under /api.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	sub := r.PathPrefix("/api").Subrouter()

	sub.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	sub.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	sub.HandleFunc("/history", s.handleList).Methods(http.MethodGet)
	sub.HandleFunc("/history", s.handleCreate).Methods(http.MethodPost)
	sub.HandleFunc("/history/{id}", s.handleHistory).Methods(http.MethodGet)
	sub.HandleFunc("/history/{id}", s.handleDelete).Methods(http.MethodDelete)
	sub.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	sub.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	sub.HandleFunc("/upload/status", s.handleUploadStatus).Methods(http.MethodGet)
	sub.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeReply(w, Reply{Status: http.StatusNotFound, Body: map[string]string{"error": "Endpoint not found"}})
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound

	return s.record(r)
}

// record logs every request, including unrouted ones, and enforces the
// token set by RequireToken.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		path := strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: path, Header: r.Header.Clone(), Body: body})
		required := s.requireTk
		s.mu.Unlock()

		if required != "" && r.Header.Get("Authorization") != "Bearer "+required {
			writeReply(w, Reply{Status: http.StatusUnauthorized, Body: map[string]string{"error": "Token is invalid"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeReply(w, s.call(func() func() Reply { return s.health }, func() Reply {
		return Reply{Body: api.HealthResponse{Status: "healthy"}}
	}))
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeReply(w, s.call(func() func() Reply { return s.info }, func() Reply {
		return Reply{Body: api.InfoResponse{}}
	}))
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	fn := s.listFn
	list := append([]api.SessionRecord{}, s.sessions...)
	s.mu.Unlock()
	if fn != nil {
		writeReply(w, fn())
		return
	}
	writeReply(w, Reply{Body: list})
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.nextID++
	rec := api.SessionRecord{ID: "s" + strconv.Itoa(s.nextID+100), Title: "New Chat"}
	s.sessions = append([]api.SessionRecord{rec}, s.sessions...)
	s.mu.Unlock()
	writeReply(w, Reply{Body: map[string]string{"id": rec.ID}})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	gate := s.gates[id]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	writeReply(w, Reply{Body: s.StoredHistoryOrEmpty(id)})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.statusN++
	n, fn := s.statusN, s.status
	s.mu.Unlock()
	if fn != nil {
		writeReply(w, fn(n))
		return
	}
	writeReply(w, Reply{Body: api.ProcessingStatus{}})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	writeReply(w, s.call(func() func() Reply { return s.clear }, func() Reply {
		return Reply{Body: api.ClearResponse{Message: "All documents and files cleared successfully"}}
	}))
}

// StoredHistoryOrEmpty returns the stored history, never nil.
func (s *Server) StoredHistoryOrEmpty(id string) []api.HistoryRecord {
	h := s.StoredHistory(id)
	if h == nil {
		return []api.HistoryRecord{}
	}
	return h
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	fn := s.deleteFn
	s.mu.Unlock()
	if fn != nil {
		writeReply(w, fn(id))
		return
	}

	s.mu.Lock()
	kept := s.sessions[:0:0]
	found := false
	for _, rec := range s.sessions {
		if rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	s.sessions = kept
	delete(s.history, id)
	s.mu.Unlock()

	if !found {
		writeReply(w, Reply{Status: http.StatusNotFound, Body: map[string]string{"error": "Session not found"}})
		return
	}
	writeReply(w, Reply{Body: map[string]string{"message": "Session deleted"}})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req api.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeReply(w, Reply{Status: http.StatusBadRequest, Body: map[string]string{"error": "No message provided"}})
		return
	}

	s.mu.Lock()
	fn := s.chat
	s.mu.Unlock()

	reply := Reply{Body: api.ChatResponse{Response: "echo: " + req.Message, Sources: []string{}}}
	if fn != nil {
		reply = fn(req)
	}

	// Successful turns are persisted like the real service does.
	if (reply.Status == 0 || reply.Status == http.StatusOK) && req.SessionID != nil {
		if cr, ok := reply.Body.(api.ChatResponse); ok {
			s.mu.Lock()
			s.history[*req.SessionID] = append(s.history[*req.SessionID],
				api.HistoryRecord{Role: "user", Content: req.Message},
				api.HistoryRecord{Role: "assistant", Content: cr.Response})
			s.mu.Unlock()
		}
	}
	writeReply(w, reply)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeReply(w, Reply{Status: http.StatusBadRequest, Body: map[string]string{"error": "No file provided"}})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeReply(w, Reply{Status: http.StatusBadRequest, Body: map[string]string{"error": "No file provided"}})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	s.mu.Lock()
	fn := s.upload
	s.mu.Unlock()
	if fn != nil {
		writeReply(w, fn(header.Filename, header.Header.Get("Content-Type"), data))
		return
	}
	writeReply(w, Reply{Body: api.UploadResponse{
		Message:  "File upload started. Processing in background...",
		Filename: header.Filename,
		Status:   "processing",
	}})
}

func (s *Server) call(get func() func() Reply, def func() Reply) Reply {
	s.mu.Lock()
	fn := get()
	s.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return def()
}

func writeReply(w http.ResponseWriter, r Reply) {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Body != nil {
		_ = json.NewEncoder(w).Encode(r.Body)
	}
}
