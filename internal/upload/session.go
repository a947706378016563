package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ravikeerthi7606/edustream/internal/api"
	"github.com/ravikeerthi7606/edustream/internal/logging"
	"github.com/ravikeerthi7606/edustream/internal/models"
	"github.com/ravikeerthi7606/edustream/internal/videos"
)

// DefaultTimeout bounds a single transfer.
const DefaultTimeout = 10 * time.Minute

const uploadPath = "/videos/upload"

// Status is the lifecycle stage of a Session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusValidating   Status = "validating"
	StatusTransferring Status = "transferring"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transfer can happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// State is a snapshot of a Session.
type State struct {
	Status   Status
	Progress int
	File     string
	Title    string
	Err      error
	// Detail is the message to show the user when Status is failed.
	Detail string
	Video  *models.VideoRecord
}

// Listener observes state changes. It is called synchronously; it must not
// call back into the session.
type Listener interface {
	OnStateChange(State)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(State)

// OnStateChange implements Listener.
func (f ListenerFunc) OnStateChange(s State) { f(s) }

// Uploader sends the multipart payload.
type Uploader interface {
	PostMultipart(ctx context.Context, path string, form api.MultipartForm, opts api.MultipartOptions, out any) error
}

// Invalidator drops cached catalog pages after a successful upload.
type Invalidator interface {
	Invalidate(namespaces ...videos.Namespace)
}

// Options configures a Session.
type Options struct {
	MaxFileSize int64
	Timeout     time.Duration
	Logger      *slog.Logger
	Listener    Listener
}

// Session drives one upload from file selection to completion. A session
// transfers at most once; retrying means starting a new session.
type Session struct {
	uploader    Uploader
	invalidator Invalidator
	maxSize     int64
	timeout     time.Duration
	logger      *slog.Logger
	listener    Listener

	mu          sync.Mutex
	file        File
	title       string
	description string
	subject     string
	status      Status
	progress    int
	err         error
	detail      string
	video       *models.VideoRecord
}

// NewSession returns an idle session.
func NewSession(uploader Uploader, invalidator Invalidator, opts Options) *Session {
	if uploader == nil {
		panic("upload: uploader must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{
		uploader:    uploader,
		invalidator: invalidator,
		maxSize:     maxSize,
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "upload_session")),
		listener:    opts.Listener,
		status:      StatusIdle,
	}
}

// SelectFiles offers candidates for the upload. Exactly one acceptable file is
// required; a rejected offer leaves the previous selection untouched. When no
// title has been entered the file's base name becomes the title.
func (s *Session) SelectFiles(files ...File) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	var err error
	switch {
	case len(files) == 0 || files[0] == nil:
		err = invalid(ErrNoFile, "Please select a video file")
	case len(files) > 1:
		err = invalid(ErrTooManyFiles, "Select a single video file")
	default:
		err = ValidateFile(files[0], s.maxSize)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.file = files[0]
	if strings.TrimSpace(s.title) == "" {
		s.title = DefaultTitle(s.file.Name())
	}
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
	return nil
}

// SetTitle sets the required title.
func (s *Session) SetTitle(title string) error {
	return s.edit(func() { s.title = title })
}

// SetDescription sets the optional description.
func (s *Session) SetDescription(description string) error {
	return s.edit(func() { s.description = description })
}

// SetSubject sets the optional subject.
func (s *Session) SetSubject(subject string) error {
	return s.edit(func() { s.subject = subject })
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Submit validates the selection and transfers it. Validation failures are
// returned before any network call and leave the session idle so the input
// can be corrected. Transfer failures close the session with StatusFailed.
func (s *Session) Submit(ctx context.Context) (models.VideoRecord, error) {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return models.VideoRecord{}, err
	}
	s.status = StatusValidating
	s.err, s.detail = nil, ""
	validating := s.stateLocked()

	verr := s.validateLocked()
	if verr != nil {
		s.status = StatusIdle
	}
	idle := s.stateLocked()
	file := s.file
	title := strings.TrimSpace(s.title)
	description := strings.TrimSpace(s.description)
	subject := strings.TrimSpace(s.subject)
	s.mu.Unlock()

	s.notify(validating)
	if verr != nil {
		s.notify(idle)
		return models.VideoRecord{}, verr
	}

	body, err := file.Open()
	if err != nil {
		err = fmt.Errorf("open %s: %w", file.Name(), err)
		s.fail(err, "Upload failed")
		return models.VideoRecord{}, err
	}
	defer body.Close()

	s.mu.Lock()
	s.status = StatusTransferring
	s.progress = 0
	transferring := s.stateLocked()
	s.mu.Unlock()
	s.notify(transferring)

	contentType, _ := ContentType(file.Name())
	form := api.MultipartForm{
		File: api.FilePart{Field: "file", FileName: file.Name(), ContentType: contentType, Size: file.Size(), Body: body},
		Fields: []api.FormField{
			{Name: "title", Value: title},
			{Name: "description", Value: description},
			{Name: "subject", Value: subject},
		},
	}

	if logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, s.logger)
	}
	ctx, span := logging.StartSpan(ctx, "videos.upload",
		slog.String("file", file.Name()),
		slog.Int64("size", file.Size()),
	)
	defer span.End()

	var video models.VideoRecord
	opts := api.MultipartOptions{Timeout: s.timeout, Progress: api.ProgressFunc(s.onProgress)}
	if err := s.uploader.PostMultipart(ctx, uploadPath, form, opts, &video); err != nil {
		span.Fail(err)
		s.fail(err, api.DetailOr(err, "Upload failed"))
		return models.VideoRecord{}, err
	}

	span.Annotate(slog.String("video_id", video.ID))

	s.mu.Lock()
	s.status = StatusSucceeded
	s.progress = 100
	s.video = &video
	succeeded := s.stateLocked()
	s.mu.Unlock()

	if s.invalidator != nil {
		s.invalidator.Invalidate(videos.NamespaceMine, videos.NamespaceCatalog)
	}
	s.notify(succeeded)
	return video, nil
}

// onProgress feeds transport progress into the session. The percentage never
// decreases and never exceeds 100.
func (s *Session) onProgress(sent, total int64) {
	if total <= 0 {
		return
	}
	percent := int(min(sent*100/total, 100))

	s.mu.Lock()
	if s.status != StatusTransferring || percent <= s.progress {
		s.mu.Unlock()
		return
	}
	s.progress = percent
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
}

func (s *Session) fail(err error, detail string) {
	s.mu.Lock()
	s.status = StatusFailed
	s.progress = 0
	s.err = err
	s.detail = detail
	state := s.stateLocked()
	s.mu.Unlock()

	s.logger.Warn("upload failed", slog.String("error", err.Error()))
	s.notify(state)
}

func (s *Session) edit(apply func()) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	apply()
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
	return nil
}

func (s *Session) editableLocked() error {
	switch {
	case s.status.Terminal():
		return ErrSessionClosed
	case s.status != StatusIdle:
		return ErrTransferInProgress
	}
	return nil
}

func (s *Session) validateLocked() error {
	if s.file == nil {
		return invalid(ErrNoFile, "Please select a video file")
	}
	if strings.TrimSpace(s.title) == "" {
		return invalid(ErrTitleRequired, "Title is required")
	}
	return ValidateFile(s.file, s.maxSize)
}

func (s *Session) stateLocked() State {
	state := State{
		Status:   s.status,
		Progress: s.progress,
		Title:    s.title,
		Err:      s.err,
		Detail:   s.detail,
		Video:    s.video,
	}
	if s.file != nil {
		state.File = s.file.Name()
	}
	return state
}

func (s *Session) notify(state State) {
	if s.listener != nil {
		s.listener.OnStateChange(state)
	}
}
