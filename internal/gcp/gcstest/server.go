// Package gcstest runs an in-process stand-in for the Cloud Storage JSON API
// upload endpoints, enough for storage.Writer based uploads in tests.
package gcstest

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type Server struct {
	*httptest.Server

	// Fail returns the HTTP status for the n-th upload attempt (1-based).
	// Zero accepts the upload.
	Fail func(attempt int) int

	mu       sync.Mutex
	attempts int
	objects  map[string][]byte
}

func NewServer(t testing.TB) *Server {
	s := &Server{objects: map[string][]byte{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Client returns a storage client talking to s.
func (s *Server) Client(t testing.TB) *storage.Client {
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(s.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Attempts counts started uploads, accepted or not.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Object returns the content stored under bucket/name.
func (s *Server) Object(bucket, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+name]
	return b, ok
}

type objectMeta struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	Size   string `json:"size,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/"):
		s.startUpload(w, r)
	case r.Method == http.MethodPut && r.URL.Path == "/upload/session":
		q := r.URL.Query()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.store(w, q.Get("bucket"), q.Get("name"), data)
	default:
		writeError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	}
}

func (s *Server) startUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if s.Fail != nil {
		if status := s.Fail(attempt); status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
	}

	bucket := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/upload/storage/v1/b/"), "/o")
	switch r.URL.Query().Get("uploadType") {
	case "resumable":
		var meta objectMeta
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		loc := s.URL + "/upload/session?bucket=" + bucket + "&name=" + meta.Name
		w.Header().Set("Location", loc)
		w.WriteHeader(http.StatusOK)
	default:
		meta, data, err := readMultipart(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.store(w, bucket, meta.Name, data)
	}
}

func (s *Server) store(w http.ResponseWriter, bucket, name string, data []byte) {
	s.mu.Lock()
	s.objects[bucket+"/"+name] = data
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(objectMeta{Bucket: bucket, Name: name, Size: strconv.Itoa(len(data))})
}

// readMultipart splits a multipart/related upload into its metadata and
// media parts.
func readMultipart(r *http.Request) (objectMeta, []byte, error) {
	var meta objectMeta
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return meta, nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return meta, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	data, err := io.ReadAll(part)
	return meta, data, err
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
