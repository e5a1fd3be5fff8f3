// Package remotetest runs an in-memory remote folder service for tests.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/tildaslashalef/reposync/internal/remote"
)

// Server is an httptest server speaking the remote folder API
type Server struct {
	*httptest.Server

	Token string // required bearer token; empty accepts any

	mu      sync.Mutex
	seq     int
	folders []remote.Entity
	files   map[string][]remote.Entity
	calls   map[string]int
	fail    map[string]int // route -> status to answer with
	headers http.Header    // headers of the last request
}

// NewServer starts a server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		files: make(map[string][]remote.Entity),
		calls: make(map[string]int),
		fail:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/folders", s.route("ListFolders", s.listFolders))
	mux.HandleFunc("POST /api/v1/folders", s.route("CreateFolder", s.createFolder))
	mux.HandleFunc("GET /api/v1/folders/{id}", s.route("GetFolder", s.getFolder))
	mux.HandleFunc("PUT /api/v1/folders/{id}", s.route("UpdateFolder", s.updateFolder))
	mux.HandleFunc("DELETE /api/v1/folders/{id}", s.route("DeleteFolder", s.deleteFolder))
	mux.HandleFunc("GET /api/v1/folders/{id}/files", s.route("ListFiles", s.listFiles))
	mux.HandleFunc("POST /api/v1/folders/{id}/files", s.route("CreateFile", s.createFile))
	mux.HandleFunc("GET /api/v1/folders/{id}/files/{fid}", s.route("GetFile", s.getFile))
	mux.HandleFunc("DELETE /api/v1/folders/{id}/files/{fid}", s.route("DeleteFile", s.deleteFile))

	s.Server = httptest.NewServer(mux)
	return s
}

// SeedFolder adds a folder and returns it
func (s *Server) SeedFolder(name string) remote.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.newEntity(&remote.EntityRequest{Name: name})
	s.folders = append(s.folders, e)
	return e
}

// SeedFile adds a file to folderID and returns it
func (s *Server) SeedFile(folderID, name string) remote.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.newEntity(&remote.EntityRequest{Name: name})
	s.files[folderID] = append(s.files[folderID], e)
	return e
}

// FailWith makes every call to route answer with status until cleared with 0
func (s *Server) FailWith(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, route)
		return
	}
	s.fail[route] = status
}

// Calls returns how often route was hit
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Folders returns a copy of the stored folders
func (s *Server) Folders() []remote.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Entity(nil), s.folders...)
}

// Files returns a copy of the files stored under folderID
func (s *Server) Files(folderID string) []remote.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Entity(nil), s.files[folderID]...)
}

// LastHeader returns a header of the most recent request
func (s *Server) LastHeader(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headers == nil {
		return ""
	}
	return s.headers.Get(key)
}

func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		s.headers = r.Header.Clone()
		status, failing := s.fail[name]
		token := s.Token
		s.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		if failing {
			writeError(w, status, "injected", fmt.Sprintf("%s failed", name))
			return
		}
		h(w, r)
	}
}

func (s *Server) newEntity(req *remote.EntityRequest) remote.Entity {
	s.seq++
	now := time.Now().UTC()
	return remote.Entity{
		ID:         fmt.Sprintf("r-%d", s.seq),
		Name:       req.Name,
		Type:       req.Type,
		Remark:     req.Remark,
		Attributes: req.Attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	page := paginate(s.folders, r)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var req remote.EntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	s.mu.Lock()
	e := s.newEntity(&req)
	s.folders = append(s.folders, e)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) getFolder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := indexOf(s.folders, r.PathValue("id")); i >= 0 {
		writeJSON(w, http.StatusOK, s.folders[i])
		return
	}
	writeError(w, http.StatusNotFound, "not_found", "folder not found")
}

func (s *Server) updateFolder(w http.ResponseWriter, r *http.Request) {
	var req remote.EntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.folders, r.PathValue("id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "not_found", "folder not found")
		return
	}
	e := &s.folders[i]
	e.Name = req.Name
	e.Type = req.Type
	e.Remark = req.Remark
	e.Attributes = req.Attributes
	e.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, *e)
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("id")
	i := indexOf(s.folders, id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "not_found", "folder not found")
		return
	}
	s.folders = append(s.folders[:i], s.folders[i+1:]...)
	delete(s.files, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.folders, r.PathValue("id")) < 0 {
		writeError(w, http.StatusNotFound, "not_found", "folder not found")
		return
	}
	writeJSON(w, http.StatusOK, paginate(s.files[r.PathValue("id")], r))
}

func (s *Server) createFile(w http.ResponseWriter, r *http.Request) {
	var req remote.EntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	folderID := r.PathValue("id")
	if indexOf(s.folders, folderID) < 0 {
		writeError(w, http.StatusNotFound, "not_found", "folder not found")
		return
	}
	e := s.newEntity(&req)
	s.files[folderID] = append(s.files[folderID], e)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.files[r.PathValue("id")]
	if i := indexOf(files, r.PathValue("fid")); i >= 0 {
		writeJSON(w, http.StatusOK, files[i])
		return
	}
	writeError(w, http.StatusNotFound, "not_found", "file not found")
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folderID := r.PathValue("id")
	files := s.files[folderID]
	i := indexOf(files, r.PathValue("fid"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	s.files[folderID] = append(files[:i], files[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func paginate(all []remote.Entity, r *http.Request) remote.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}

	return remote.Page{
		Items: append([]remote.Entity{}, all[start:end]...),
		Total: len(all),
		Page:  page,
		Size:  size,
	}
}

func indexOf(list []remote.Entity, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, remote.APIError{StatusCode: status, Code: code, Message: msg})
}
