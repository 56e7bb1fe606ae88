// Package webdavtest provides an in-memory WebDAV server for tests.
package webdavtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
)

// Server is a minimal WebDAV server keeping files in memory.
type Server struct {
	*httptest.Server

	Username string
	Secret   string

	mu      sync.Mutex
	files   map[string][]byte
	folders map[string]bool
	calls   map[string]int
	hooks   []Hook
}

// Hook can short-circuit a request by returning a non-zero status.
type Hook func(r *http.Request) int

// New starts a server accepting the given Basic credentials.
func New(username, secret string) *Server {
	s := &Server{
		Username: username,
		Secret:   secret,
		files:    make(map[string][]byte),
		folders:  map[string]bool{"/": true},
		calls:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// AddHook installs a request hook. Hooks run in order before normal handling.
func (s *Server) AddHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Calls returns how many requests with method were received.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// File returns a stored file's content.
func (s *Server) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[clean(p)]
	return b, ok
}

// Files lists stored file paths in sorted order.
func (s *Server) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MakeFolder creates a collection, including parents.
func (s *Server) MakeFolder(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p = clean(p); p != "/"; p = path.Dir(p) {
		s.folders[p] = true
	}
}

// PutFile stores a file directly, creating its folder.
func (s *Server) PutFile(p string, data []byte) {
	s.MakeFolder(path.Dir(clean(p)))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[clean(p)] = append([]byte(nil), data...)
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.Method]++
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		if status := h(r); status != 0 {
			w.WriteHeader(status)
			return
		}
	}

	user, pass, ok := r.BasicAuth()
	if !ok || user != s.Username || pass != s.Secret {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	p := clean(r.URL.Path)
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case "PROPFIND":
		if s.folders[p] {
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, s.multistatus(p, r.Header.Get("Depth")))
			return
		}
		if _, ok := s.files[p]; ok {
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, "<d:multistatus xmlns:d=\"DAV:\"></d:multistatus>")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case "MKCOL":
		if s.folders[p] {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.folders[path.Dir(p)] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.folders[p] = true
		w.WriteHeader(http.StatusCreated)
	case http.MethodPut:
		if !s.folders[path.Dir(p)] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_, existed := s.files[p]
		s.files[p] = body
		if existed {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
	case http.MethodGet:
		b, ok := s.files[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	case http.MethodDelete:
		if _, ok := s.files[p]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.files, p)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) multistatus(dir, depth string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><d:multistatus xmlns:d="DAV:">`)
	b.WriteString(entry(dir+"/", path.Base(dir), true, 0))
	if depth == "1" {
		var names []string
		for p := range s.files {
			if path.Dir(p) == dir {
				names = append(names, p)
			}
		}
		sort.Strings(names)
		for _, p := range names {
			b.WriteString(entry(p, path.Base(p), false, len(s.files[p])))
		}
	}
	b.WriteString(`</d:multistatus>`)
	return b.String()
}

func entry(href, name string, collection bool, size int) string {
	rt := ""
	if collection {
		rt = "<d:collection/>"
	}
	return fmt.Sprintf(`<d:response><d:href>%s</d:href><d:propstat><d:prop>`+
		`<d:displayname>%s</d:displayname><d:resourcetype>%s</d:resourcetype>`+
		`<d:getcontentlength>%d</d:getcontentlength></d:prop>`+
		`<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`, href, name, rt, size)
}
