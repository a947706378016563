package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ravikeerthi7606/edustream/internal/api"
	"github.com/ravikeerthi7606/edustream/internal/models"
	"github.com/ravikeerthi7606/edustream/internal/videos"
)

type memFile struct {
	name    string
	size    int64
	content string
	openErr error
}

func (f memFile) Name() string { return f.name }
func (f memFile) Size() int64  { return f.size }
func (f memFile) Open() (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func videoFile(name string) memFile {
	return memFile{name: name, size: 10000, content: strings.Repeat("x", 10000)}
}

type stubUploader struct {
	calls    int
	form     api.MultipartForm
	opts     api.MultipartOptions
	progress [][2]int64
	err      error
	video    models.VideoRecord
}

func (s *stubUploader) PostMultipart(ctx context.Context, path string, form api.MultipartForm, opts api.MultipartOptions, out any) error {
	s.calls++
	s.form = form
	s.opts = opts
	if path != "/videos/upload" {
		return errors.New("unexpected path " + path)
	}
	for _, p := range s.progress {
		opts.Progress.OnProgress(p[0], p[1])
	}
	if s.err != nil {
		return s.err
	}
	if v, ok := out.(*models.VideoRecord); ok {
		*v = s.video
	}
	return nil
}

type recordingInvalidator struct {
	namespaces []videos.Namespace
}

func (r *recordingInvalidator) Invalidate(namespaces ...videos.Namespace) {
	r.namespaces = append(r.namespaces, namespaces...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) OnStateChange(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) progressDuringTransfer() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, s := range r.states {
		if s.Status == StatusTransferring {
			out = append(out, s.Progress)
		}
	}
	return out
}

func TestSelectFilesValidation(t *testing.T) {
	tests := []struct {
		name  string
		files []File
		want  error
	}{
		{name: "no file", files: nil, want: ErrNoFile},
		{name: "nil file", files: []File{nil}, want: ErrNoFile},
		{name: "nil local file", files: []File{(*LocalFile)(nil)}, want: ErrNoFile},
		{name: "unnamed file", files: []File{memFile{size: 10}}, want: ErrNoFile},
		{name: "two files", files: []File{videoFile("a.mp4"), videoFile("b.mp4")}, want: ErrTooManyFiles},
		{name: "too large", files: []File{memFile{name: "big.mp4", size: MaxFileSize + 1}}, want: ErrFileTooLarge},
		{name: "wrong type", files: []File{memFile{name: "notes.txt", size: 10}}, want: ErrFileType},
		{name: "no extension", files: []File{memFile{name: "video", size: 10}}, want: ErrFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &stubUploader{}
			session := NewSession(uploader, nil, Options{})

			err := session.SelectFiles(tt.files...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v got %v", tt.want, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error got %T", err)
			}
			if state := session.State(); state.Status != StatusIdle || state.File != "" {
				t.Fatalf("expected idle session without file got %+v", state)
			}
			if uploader.calls != 0 {
				t.Fatal("validation must not reach the network")
			}
		})
	}
}

func TestSelectFilesAcceptsLimitAndAllowedTypes(t *testing.T) {
	for _, ext := range AllowedExtensions {
		session := NewSession(&stubUploader{}, nil, Options{})
		if err := session.SelectFiles(memFile{name: "clip." + strings.ToUpper(ext), size: MaxFileSize}); err != nil {
			t.Fatalf("expected %s at the size limit to be accepted got %v", ext, err)
		}
	}
}

func TestSelectFilesDefaultsTitle(t *testing.T) {
	session := NewSession(&stubUploader{}, nil, Options{})

	if err := session.SelectFiles(videoFile("Intro to Calculus.mp4")); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := session.State().Title; got != "Intro to Calculus" {
		t.Fatalf("expected default title got %q", got)
	}

	if err := session.SetTitle("Lecture 1"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if err := session.SelectFiles(videoFile("other.webm")); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := session.State().Title; got != "Lecture 1" {
		t.Fatalf("expected entered title to be kept got %q", got)
	}

	if err := session.SelectFiles(memFile{name: "notes.txt"}); err == nil {
		t.Fatal("expected rejection")
	}
	if got := session.State().File; got != "other.webm" {
		t.Fatalf("expected rejected file to leave selection untouched got %q", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		uploader := &stubUploader{}
		session := NewSession(uploader, nil, Options{})
		_ = session.SetTitle("Lecture")

		if _, err := session.Submit(context.Background()); !errors.Is(err, ErrNoFile) {
			t.Fatalf("expected no file got %v", err)
		}
		if uploader.calls != 0 || session.State().Status != StatusIdle {
			t.Fatalf("expected idle without transfer got %+v", session.State())
		}
	})

	t.Run("blank title", func(t *testing.T) {
		uploader := &stubUploader{}
		session := NewSession(uploader, nil, Options{})
		if err := session.SelectFiles(videoFile("lecture.mp4")); err != nil {
			t.Fatalf("select: %v", err)
		}
		_ = session.SetTitle("   ")

		if _, err := session.Submit(context.Background()); !errors.Is(err, ErrTitleRequired) {
			t.Fatalf("expected title required got %v", err)
		}
		if uploader.calls != 0 || session.State().Status != StatusIdle {
			t.Fatalf("expected idle without transfer got %+v", session.State())
		}

		_ = session.SetTitle("Fixed")
		if _, err := session.Submit(context.Background()); err != nil {
			t.Fatalf("expected corrected session to submit got %v", err)
		}
	})
}

func TestSubmitSuccess(t *testing.T) {
	uploader := &stubUploader{
		progress: [][2]int64{{0, 10000}, {1000, 10000}, {5000, 10000}},
		video:    models.VideoRecord{ID: "v-9", Title: "Lecture 1"},
	}
	invalidator := &recordingInvalidator{}
	recorder := &stateRecorder{}
	session := NewSession(uploader, invalidator, Options{Listener: recorder})

	if err := session.SelectFiles(videoFile("lecture.mov")); err != nil {
		t.Fatalf("select: %v", err)
	}
	_ = session.SetTitle("  Lecture 1 ")
	_ = session.SetDescription("Limits and continuity")
	_ = session.SetSubject("Mathematics")

	video, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if video.ID != "v-9" {
		t.Fatalf("unexpected video %+v", video)
	}

	state := session.State()
	if state.Status != StatusSucceeded || state.Progress != 100 || state.Video == nil {
		t.Fatalf("unexpected final state %+v", state)
	}

	progress := recorder.progressDuringTransfer()
	want := []int{0, 10, 50}
	if len(progress) != len(want) {
		t.Fatalf("expected progress %v got %v", want, progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("expected progress %v got %v", want, progress)
		}
	}

	form := uploader.form
	if form.File.Field != "file" || form.File.FileName != "lecture.mov" || form.File.ContentType != "video/quicktime" || form.File.Size != 10000 {
		t.Fatalf("unexpected file part %+v", form.File)
	}
	fields := map[string]string{}
	for _, f := range form.Fields {
		fields[f.Name] = f.Value
	}
	if fields["title"] != "Lecture 1" || fields["description"] != "Limits and continuity" || fields["subject"] != "Mathematics" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if uploader.opts.Timeout != DefaultTimeout {
		t.Fatalf("expected transfer timeout %v got %v", DefaultTimeout, uploader.opts.Timeout)
	}

	if len(invalidator.namespaces) == 0 || invalidator.namespaces[0] != videos.NamespaceMine {
		t.Fatalf("expected my-videos invalidated got %v", invalidator.namespaces)
	}

	if _, err := session.Submit(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed session got %v", err)
	}
	if err := session.SetTitle("again"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed session got %v", err)
	}
	if uploader.calls != 1 {
		t.Fatalf("expected a single transfer got %d", uploader.calls)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	uploader := &stubUploader{progress: [][2]int64{{5000, 10000}, {1000, 10000}, {9999, 10000}, {12000, 10000}, {100, 0}}}
	recorder := &stateRecorder{}
	session := NewSession(uploader, nil, Options{Listener: recorder})
	_ = session.SelectFiles(videoFile("lecture.mp4"))

	if _, err := session.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	progress := recorder.progressDuringTransfer()
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress decreased: %v", progress)
		}
	}
	if last := progress[len(progress)-1]; last != 100 {
		t.Fatalf("expected progress clamped to 100 got %v", progress)
	}
	if !contains(progress, 99) {
		t.Fatalf("expected floor(9999*100/10000)=99 in %v", progress)
	}
}

func TestSubmitFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantDetail string
	}{
		{name: "api detail", err: &api.Error{Status: http.StatusBadRequest, Detail: "Only teachers can upload"}, wantDetail: "Only teachers can upload"},
		{name: "no detail", err: &api.Error{Status: http.StatusInternalServerError}, wantDetail: "Upload failed"},
		{name: "timeout", err: &api.TransportError{Method: "POST", Path: "/videos/upload", Err: context.DeadlineExceeded}, wantDetail: "Upload failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &stubUploader{progress: [][2]int64{{4000, 10000}}, err: tt.err}
			invalidator := &recordingInvalidator{}
			session := NewSession(uploader, invalidator, Options{})
			_ = session.SelectFiles(videoFile("lecture.mkv"))

			if _, err := session.Submit(context.Background()); !errors.Is(err, tt.err) {
				t.Fatalf("expected %v got %v", tt.err, err)
			}

			state := session.State()
			if state.Status != StatusFailed || state.Progress != 0 || state.Detail != tt.wantDetail {
				t.Fatalf("unexpected failed state %+v", state)
			}
			if len(invalidator.namespaces) != 0 {
				t.Fatal("failed uploads must not invalidate the catalog")
			}
			if _, err := session.Submit(context.Background()); !errors.Is(err, ErrSessionClosed) {
				t.Fatalf("expected failed session to be closed got %v", err)
			}
			if uploader.calls != 1 {
				t.Fatalf("expected no automatic retry got %d calls", uploader.calls)
			}
		})
	}
}

func TestSubmitOpenFailure(t *testing.T) {
	uploader := &stubUploader{}
	session := NewSession(uploader, nil, Options{})
	file := videoFile("lecture.mp4")
	file.openErr = os.ErrPermission
	_ = session.SelectFiles(file)

	if _, err := session.Submit(context.Background()); !errors.Is(err, os.ErrPermission) {
		t.Fatalf("expected permission error got %v", err)
	}
	if state := session.State(); state.Status != StatusFailed {
		t.Fatalf("expected failed got %+v", state)
	}
	if uploader.calls != 0 {
		t.Fatal("expected no transfer")
	}
}

func TestOpenLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lecture.webm")
	if err := os.WriteFile(path, []byte("webm-bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	file, err := OpenLocal(path)
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	if file.Name() != "lecture.webm" || file.Size() != int64(len("webm-bytes")) {
		t.Fatalf("unexpected file %s %d", file.Name(), file.Size())
	}
	if err := ValidateFile(file, 0); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if _, err := OpenLocal(dir); err == nil {
		t.Fatal("expected error for directory")
	}

	var missing *LocalFile
	if missing.Name() != "" || missing.Size() != 0 {
		t.Fatal("expected nil file to have no name or size")
	}
	if _, err := missing.Open(); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected no file error got %v", err)
	}
	if _, err := OpenLocal(filepath.Join(dir, "missing.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist got %v", err)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.mp4":  "video/mp4",
		"a.WEBM": "video/webm",
		"a.ogg":  "video/ogg",
		"a.avi":  "video/avi",
		"a.mov":  "video/quicktime",
		"a.mkv":  "video/x-matroska",
	}
	for name, want := range tests {
		if got, ok := ContentType(name); !ok || got != want {
			t.Fatalf("%s: expected %s got %s", name, want, got)
		}
	}
	if _, ok := ContentType("a.wmv"); ok {
		t.Fatal("expected wmv to be rejected")
	}
}

func contains(values []int, want int) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
