package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type staticCredentials struct {
	token string
}

func (s staticCredentials) Credential(context.Context) (string, bool) {
	return s.token, s.token != ""
}

func newTestGateway(t *testing.T, server *httptest.Server, creds CredentialSource) *Gateway {
	t.Helper()

	gateway, err := New(Options{BaseURL: server.URL, Timeout: 5 * time.Second, Credentials: creds})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gateway
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "ftp://example.com"} {
		if _, err := New(Options{BaseURL: raw}); err == nil {
			t.Fatalf("expected error for base url %q", raw)
		}
	}
}

func TestGatewayAttachesCredential(t *testing.T) {
	var auth, requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get(RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"healthy","storage":"s3"}`)
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, staticCredentials{token: "secret"})

	status, err := gateway.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if status.Status != "healthy" || status.Storage != "s3" {
		t.Fatalf("unexpected status %+v", status)
	}
	if auth != "Bearer secret" {
		t.Fatalf("expected bearer credential got %q", auth)
	}
	if requestID == "" {
		t.Fatal("expected request id header")
	}
}

func TestGatewayWithoutCredential(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, staticCredentials{})
	if err := gateway.Get(context.Background(), "/videos", nil, &struct{}{}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if hasAuth {
		t.Fatal("expected no authorization header without a credential")
	}
}

func TestGatewayEncodesQueryAndPath(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	gateway, err := New(Options{BaseURL: server.URL + "/api/"})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	query := url.Values{"page": {"2"}, "search": {"linear algebra"}}
	if err := gateway.Get(context.Background(), "/videos", query, nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotPath != "/api/videos" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery.Get("page") != "2" || gotQuery.Get("search") != "linear algebra" {
		t.Fatalf("unexpected query %v", gotQuery)
	}
}

func TestGatewayErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{name: "string detail", status: http.StatusBadRequest, body: `{"detail":"Email already registered"}`, wantDetail: "Email already registered"},
		{name: "validation list", status: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","email"],"msg":"field required"}]}`, wantDetail: "field required"},
		{name: "no detail", status: http.StatusInternalServerError, body: `<html>oops</html>`, wantDetail: ""},
		{name: "empty body", status: http.StatusNotFound, body: ``, wantDetail: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			gateway := newTestGateway(t, server, nil)
			err := gateway.Post(context.Background(), "/auth/login", map[string]string{"email": "a@b.c"}, &struct{}{})

			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected api error got %v", err)
			}
			if apiErr.Status != tt.status {
				t.Fatalf("expected status %d got %d", tt.status, apiErr.Status)
			}
			if apiErr.Detail != tt.wantDetail {
				t.Fatalf("expected detail %q got %q", tt.wantDetail, apiErr.Detail)
			}

			want := tt.wantDetail
			if want == "" {
				want = "Something went wrong"
			}
			if got := DetailOr(err, "Something went wrong"); got != want {
				t.Fatalf("expected message %q got %q", want, got)
			}
		})
	}
}

func TestGatewayDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"videos": "not-a-list"`)
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, nil)

	var out struct {
		Videos []string `json:"videos"`
	}
	err := gateway.Get(context.Background(), "/videos", nil, &out)

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("decode errors must not be retried")
	}
}

func TestGatewayEmptySuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, nil)

	var out map[string]any
	if err := gateway.Delete(context.Background(), "/videos/abc", &out); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestGatewayEmptyBodyRejectedWhenDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, nil)

	var page struct {
		Total int `json:"total"`
	}
	err := gateway.Get(context.Background(), "/videos", nil, &page)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected decode error for empty listing body got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("decode errors must not be retried")
	}

	if err := gateway.Get(context.Background(), "/videos", nil, nil); err != nil {
		t.Fatalf("expected empty body to be accepted when nothing is decoded: %v", err)
	}
}

func TestGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	gateway, err := New(Options{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	err = gateway.Get(context.Background(), "/videos", nil, nil)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error got %v", err)
	}
	if !transportErr.Timeout() {
		t.Fatalf("expected timeout got %v", transportErr.Err)
	}
	if !IsRetryable(err) {
		t.Fatal("expected timeouts to be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server error", err: &Error{Status: http.StatusBadGateway}, want: true},
		{name: "client error", err: &Error{Status: http.StatusUnauthorized}, want: false},
		{name: "transport", err: &TransportError{Method: "GET", Path: "/videos", Err: errors.New("connection refused")}, want: true},
		{name: "canceled", err: &TransportError{Method: "GET", Path: "/videos", Err: context.Canceled}, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Fatalf("%s: expected %v got %v", tt.name, tt.want, got)
		}
	}
}

func TestPostMultipart(t *testing.T) {
	content := strings.Repeat("v", 10000)

	type received struct {
		fileName    string
		contentType string
		fileBody    string
		title       string
		description string
		subject     string
		length      int64
		order       []string
	}
	got := make(chan received, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		rec := received{length: r.ContentLength}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			rec.order = append(rec.order, part.FormName())
			switch part.FormName() {
			case "file":
				rec.fileName = part.FileName()
				rec.contentType = part.Header.Get("Content-Type")
				rec.fileBody = string(data)
			case "title":
				rec.title = string(data)
			case "description":
				rec.description = string(data)
			case "subject":
				rec.subject = string(data)
			}
		}
		got <- rec

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "v-1"})
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, staticCredentials{token: "teacher-token"})

	var mu sync.Mutex
	var events [][2]int64
	progress := ProgressFunc(func(sent, total int64) {
		mu.Lock()
		events = append(events, [2]int64{sent, total})
		mu.Unlock()
	})

	form := MultipartForm{
		File: FilePart{Field: "file", FileName: "lecture.mp4", ContentType: "video/mp4", Size: int64(len(content)), Body: strings.NewReader(content)},
		Fields: []FormField{
			{Name: "title", Value: "Lecture 1"},
			{Name: "description", Value: ""},
			{Name: "subject", Value: "Mathematics"},
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := gateway.PostMultipart(context.Background(), "/videos/upload", form, MultipartOptions{Timeout: time.Minute, Progress: progress}, &out); err != nil {
		t.Fatalf("post multipart: %v", err)
	}
	if out.ID != "v-1" {
		t.Fatalf("unexpected response %+v", out)
	}

	rec := <-got
	if rec.fileName != "lecture.mp4" || rec.contentType != "video/mp4" || rec.fileBody != content {
		t.Fatalf("unexpected file part name=%q type=%q len=%d", rec.fileName, rec.contentType, len(rec.fileBody))
	}
	if rec.title != "Lecture 1" || rec.description != "" || rec.subject != "Mathematics" {
		t.Fatalf("unexpected fields %+v", rec)
	}
	if len(rec.order) != 4 || rec.order[0] != "file" {
		t.Fatalf("expected file part first got %v", rec.order)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	last := events[len(events)-1]
	if last[0] != last[1] || last[1] != rec.length {
		t.Fatalf("expected final progress %d/%d to equal content length %d", last[0], last[1], rec.length)
	}
	for i := 1; i < len(events); i++ {
		if events[i][0] < events[i-1][0] {
			t.Fatalf("progress went backwards: %v", events)
		}
	}
}

func TestPostMultipartRequiresBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, nil)
	err := gateway.PostMultipart(context.Background(), "/videos/upload", MultipartForm{}, MultipartOptions{}, nil)
	if err == nil {
		t.Fatal("expected error for missing file body")
	}
}
