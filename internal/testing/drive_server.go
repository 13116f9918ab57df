package testing

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveFile is one object stored by DriveServer
type DriveFile struct {
	ID           string
	Name         string
	MimeType     string
	Parents      []string
	Content      []byte
	ModifiedTime time.Time
	Trashed      bool
	// ReportedMD5 overrides the checksum reported in metadata
	ReportedMD5 string
	// ReportedSize overrides the size reported in metadata when non-zero
	ReportedSize int64
}

// Fault is a canned error response served instead of the real answer
type Fault struct {
	Status     int
	Reason     string
	RetryAfter string
	// Match restricts the fault to matching requests; nil matches all
	Match func(r *http.Request) bool
}

// DriveServer is an in-memory Drive v3 endpoint for files.list, files.get and
// files.get?alt=media. It understands the subset of the query language the
// adapters emit.
type DriveServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	files    map[string]*DriveFile
	faults   []Fault
	latency  time.Duration
	requests []string
	// PageSize caps list responses regardless of the requested pageSize
	PageSize int
	// CaseInsensitiveNames mimics Drive's loose name comparison
	CaseInsensitiveNames bool
}

// NewDriveServer starts a fake Drive endpoint, closed on test cleanup
func NewDriveServer(t testing.TB) *DriveServer {
	t.Helper()
	s := &DriveServer{
		files:                make(map[string]*DriveFile),
		CaseInsensitiveNames: true,
	}

	r := chi.NewRouter()
	r.Get("/files", s.handleList)
	r.Get("/files/{fileId}", s.handleGet)
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the endpoint base, suitable for option.WithEndpoint
func (s *DriveServer) URL() string {
	return s.srv.URL + "/"
}

// Service returns a real drive.Service pointed at the fake
func (s *DriveServer) Service(t testing.TB) *drive.Service {
	t.Helper()
	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(s.URL()),
		option.WithHTTPClient(s.srv.Client()),
	)
	if err != nil {
		t.Fatalf("creating drive service: %v", err)
	}
	return svc
}

// HTTPClient returns a client that trusts the fake server
func (s *DriveServer) HTTPClient() *http.Client {
	return s.srv.Client()
}

// AddFolder stores a folder
func (s *DriveServer) AddFolder(id, name string, parents ...string) *DriveFile {
	return s.Add(&DriveFile{ID: id, Name: name, MimeType: "application/vnd.google-apps.folder", Parents: parents})
}

// AddFile stores a file with content under parent
func (s *DriveServer) AddFile(id, name, parent string, content []byte) *DriveFile {
	return s.Add(&DriveFile{ID: id, Name: name, MimeType: guessMime(name), Parents: []string{parent}, Content: content})
}

// Add stores f, filling ModifiedTime when unset
func (s *DriveServer) Add(f *DriveFile) *DriveFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ModifiedTime.IsZero() {
		f.ModifiedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(s.files)) * time.Minute)
	}
	s.files[f.ID] = f
	return f
}

// Remove deletes a stored object
func (s *DriveServer) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
}

// FailNext queues faults served in order before normal handling resumes
func (s *DriveServer) FailNext(faults ...Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, faults...)
}

// SetLatency delays every response header by d
func (s *DriveServer) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Requests returns "METHOD path?query" for every request served so far
func (s *DriveServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// RequestCount returns the number of requests served so far
func (s *DriveServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// intercept records the request, applies latency and serves a queued fault.
// It reports true when the request has been answered.
func (s *DriveServer) intercept(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	latency := s.latency
	var fault *Fault
	for i, f := range s.faults {
		if f.Match == nil || f.Match(r) {
			fault = &s.faults[i]
			s.faults = append(s.faults[:i:i], s.faults[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-r.Context().Done():
			return true
		}
	}
	if fault == nil {
		return false
	}
	if fault.RetryAfter != "" {
		w.Header().Set("Retry-After", fault.RetryAfter)
	}
	writeDriveError(w, fault.Status, fault.Reason, http.StatusText(fault.Status))
	return true
}

func (s *DriveServer) handleList(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, r) {
		return
	}
	q := r.URL.Query()
	query, err := parseQuery(q.Get("q"))
	if err != nil {
		writeDriveError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	s.mu.Lock()
	var matched []*DriveFile
	for _, f := range s.files {
		if query.matches(f, s.CaseInsensitiveNames) {
			matched = append(matched, f)
		}
	}
	pageSize := s.PageSize
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if n, err := strconv.Atoi(q.Get("pageSize")); err == nil && n > 0 && (pageSize == 0 || n < pageSize) {
		pageSize = n
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := 0
	if tok := q.Get("pageToken"); tok != "" {
		offset, err = strconv.Atoi(tok)
		if err != nil || offset < 0 || offset > len(matched) {
			writeDriveError(w, http.StatusBadRequest, "invalid", "bad pageToken")
			return
		}
	}
	end := offset + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	resp := map[string]interface{}{"kind": "drive#fileList"}
	page := make([]map[string]interface{}, 0, end-offset)
	for _, f := range matched[offset:end] {
		page = append(page, fileJSON(f))
	}
	resp["files"] = page
	if end < len(matched) {
		resp["nextPageToken"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *DriveServer) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, r) {
		return
	}
	id := chi.URLParam(r, "fileId")

	s.mu.Lock()
	f, ok := s.files[id]
	s.mu.Unlock()
	if !ok || f.Trashed {
		writeDriveError(w, http.StatusNotFound, "notFound", "File not found: "+id+".")
		return
	}

	if r.URL.Query().Get("alt") == "media" {
		if strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
			writeDriveError(w, http.StatusForbidden, "fileNotDownloadable", "Only files with binary content can be downloaded.")
			return
		}
		w.Header().Set("Content-Type", f.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(f.Content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(f.Content)
		return
	}
	writeJSON(w, http.StatusOK, fileJSON(f))
}

func fileJSON(f *DriveFile) map[string]interface{} {
	m := map[string]interface{}{
		"kind":         "drive#file",
		"id":           f.ID,
		"name":         f.Name,
		"mimeType":     f.MimeType,
		"parents":      f.Parents,
		"trashed":      f.Trashed,
		"modifiedTime": f.ModifiedTime.UTC().Format(time.RFC3339),
	}
	if !strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
		size := int64(len(f.Content))
		if f.ReportedSize != 0 {
			size = f.ReportedSize
		}
		sum := md5.Sum(f.Content)
		checksum := hex.EncodeToString(sum[:])
		if f.ReportedMD5 != "" {
			checksum = f.ReportedMD5
		}
		m["size"] = strconv.FormatInt(size, 10)
		m["md5Checksum"] = checksum
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDriveError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
			"errors": []map[string]string{
				{"domain": "global", "reason": reason, "message": message},
			},
		},
	})
}

func guessMime(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".txt"):
		return "text/plain"
	}
	return "application/octet-stream"
}

var (
	quoted        = `'((?:[^'\\]|\\.)*)'`
	nameEqRe      = regexp.MustCompile(`\bname = ` + quoted)
	nameContainRe = regexp.MustCompile(`\bname contains ` + quoted)
	mimeEqRe      = regexp.MustCompile(`\bmimeType = ` + quoted)
	parentRe      = regexp.MustCompile(quoted + ` in parents`)
	trashedRe     = regexp.MustCompile(`\btrashed = (true|false)`)
	unescapeRe    = regexp.MustCompile(`\\(.)`)
)

type driveQuery struct {
	nameEq      *string
	nameContain *string
	mimeEq      *string
	parent      *string
	trashed     *bool
}

func parseQuery(q string) (driveQuery, error) {
	var dq driveQuery
	if q == "" {
		return dq, nil
	}
	capture := func(re *regexp.Regexp) *string {
		m := re.FindStringSubmatch(q)
		if m == nil {
			return nil
		}
		v := unescapeRe.ReplaceAllString(m[1], "$1")
		return &v
	}
	dq.nameEq = capture(nameEqRe)
	dq.nameContain = capture(nameContainRe)
	dq.mimeEq = capture(mimeEqRe)
	dq.parent = capture(parentRe)
	if m := trashedRe.FindStringSubmatch(q); m != nil {
		v := m[1] == "true"
		dq.trashed = &v
	}
	if dq.nameEq == nil && dq.nameContain == nil && dq.mimeEq == nil && dq.parent == nil && dq.trashed == nil {
		return dq, fmt.Errorf("unsupported query: %s", q)
	}
	return dq, nil
}

func (q driveQuery) matches(f *DriveFile, foldCase bool) bool {
	if q.nameEq != nil {
		if foldCase && !strings.EqualFold(f.Name, *q.nameEq) {
			return false
		}
		if !foldCase && f.Name != *q.nameEq {
			return false
		}
	}
	if q.nameContain != nil && !strings.Contains(strings.ToLower(f.Name), strings.ToLower(*q.nameContain)) {
		return false
	}
	if q.mimeEq != nil && f.MimeType != *q.mimeEq {
		return false
	}
	if q.parent != nil {
		found := false
		for _, p := range f.Parents {
			if p == *q.parent {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.trashed != nil && f.Trashed != *q.trashed {
		return false
	}
	return true
}
