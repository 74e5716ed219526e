package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Paths served by FakeOCRServer.
const (
	PathLogin   = "/api/token/"
	PathRefresh = "/api/token/refresh/"
	PathUpload  = "/api/upload/"
	PathOCR     = "/api/ocr/"
	PathField   = "/api/field/"
)

// FakeOCRServer is an in-process stand-in for the remote OCR service.
// Bearer-authenticated endpoints answer 401 unless the request carries
// ValidAccess (when set).
type FakeOCRServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int

	// Tokens issued by login and refresh.
	IssueAccess  string
	IssueRefresh string
	// ValidAccess is the only accepted bearer token; empty accepts any.
	ValidAccess string

	LoginStatus   int
	RefreshStatus int
	// UploadStatuses are consumed one per upload; afterwards 201 is used.
	UploadStatuses []int
	FileID         any
	// PollInProgress is the number of status_code=1 answers before the result.
	PollInProgress int
	PollStatuses   []int
	RequestID      any
	Result         json.RawMessage
	// FieldMatches maps a form code to whether it matches; unknown codes
	// answer with the id -1 sentinel.
	FieldMatches  map[string]bool
	FieldStatuses []int
	// FieldBody overrides the field response body when set.
	FieldBody json.RawMessage

	FieldRequests []string
}

// NewFakeOCRServer starts a fake service that is closed with the test.
func NewFakeOCRServer(t *testing.T) *FakeOCRServer {
	t.Helper()

	f := &FakeOCRServer{
		calls:         make(map[string]int),
		IssueAccess:   "access-token",
		IssueRefresh:  "refresh-token",
		LoginStatus:   http.StatusOK,
		RefreshStatus: http.StatusOK,
		FileID:        42,
		RequestID:     "req-1",
		Result:        json.RawMessage(SampleOCRResult),
		FieldMatches:  map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(PathLogin, f.handleLogin)
	mux.HandleFunc(PathRefresh, f.handleRefresh)
	mux.HandleFunc(PathUpload, f.handleUpload)
	mux.HandleFunc(PathOCR, f.handleOCR)
	mux.HandleFunc(PathField, f.handleField)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// Endpoint returns the absolute URL of path.
func (f *FakeOCRServer) Endpoint(path string) string {
	return f.URL + path
}

// Calls returns how often path was requested.
func (f *FakeOCRServer) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// TotalCalls returns the number of requests across all endpoints.
func (f *FakeOCRServer) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FakeOCRServer) record(path string) {
	f.mu.Lock()
	f.calls[path]++
	f.mu.Unlock()
}

func (f *FakeOCRServer) authorized(r *http.Request) bool {
	f.mu.Lock()
	valid := f.ValidAccess
	f.mu.Unlock()
	if valid == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+valid
}

func nextStatus(statuses *[]int, def int) int {
	if len(*statuses) == 0 {
		return def
	}
	s := (*statuses)[0]
	*statuses = (*statuses)[1:]
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeOCRServer) tokens() map[string]string {
	return map[string]string{"access": f.IssueAccess, "refresh": f.IssueRefresh}
}

func (f *FakeOCRServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	f.record(PathLogin)
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad credentials"})
		return
	}
	f.mu.Lock()
	status, tokens := f.LoginStatus, f.tokens()
	f.mu.Unlock()
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"detail": "login failed"})
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (f *FakeOCRServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.record(PathRefresh)
	f.mu.Lock()
	status, tokens := f.RefreshStatus, f.tokens()
	f.mu.Unlock()
	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"detail": "token expired"})
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (f *FakeOCRServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	f.record(PathUpload)
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unauthorized"})
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	if _, _, err := r.FormFile("file"); err != nil || r.FormValue("folder") != "1" || r.FormValue("extract") != "1" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "missing form fields"})
		return
	}
	f.mu.Lock()
	status := nextStatus(&f.UploadStatuses, http.StatusCreated)
	id := f.FileID
	f.mu.Unlock()
	if status != http.StatusCreated {
		writeJSON(w, status, map[string]string{"detail": "upload failed"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (f *FakeOCRServer) handleOCR(w http.ResponseWriter, r *http.Request) {
	f.record(PathOCR)
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unauthorized"})
		return
	}
	if r.URL.Query().Get("file_id") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "file_id required"})
		return
	}
	f.mu.Lock()
	status := nextStatus(&f.PollStatuses, http.StatusOK)
	inProgress := f.PollInProgress > 0
	if inProgress && status == http.StatusOK {
		f.PollInProgress--
	}
	reqID, result := f.RequestID, f.Result
	f.mu.Unlock()

	switch {
	case status != http.StatusOK:
		writeJSON(w, status, map[string]string{"detail": "error"})
	case inProgress:
		writeJSON(w, http.StatusOK, map[string]any{"status_code": 1, "request_id": reqID})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status_code": 0, "request_id": reqID, "response": result})
	}
}

func (f *FakeOCRServer) handleField(w http.ResponseWriter, r *http.Request) {
	f.record(PathField)
	if !f.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "unauthorized"})
		return
	}
	var body struct {
		RequestID    string   `json:"request_id"`
		ListFormCode []string `json:"list_form_code"`
		IsSingleForm bool     `json:"is_single_form"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.ListFormCode) != 1 || !body.IsSingleForm {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "bad field request"})
		return
	}
	code := body.ListFormCode[0]

	f.mu.Lock()
	f.FieldRequests = append(f.FieldRequests, code)
	status := nextStatus(&f.FieldStatuses, http.StatusOK)
	match := f.FieldMatches[code]
	override := f.FieldBody
	f.mu.Unlock()

	switch {
	case status != http.StatusOK:
		writeJSON(w, status, map[string]string{"detail": "error"})
	case override != nil:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(override)
	case match:
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 7, "name": "invoice_number", "value": "INV-" + strings.ToUpper(code)}})
	default:
		writeJSON(w, http.StatusOK, []map[string]any{{"id": -1}})
	}
}
