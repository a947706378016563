package upload

import "errors"

var (
	// ErrNoFile indicates no file was selected.
	ErrNoFile = errors.New("no file selected")
	// ErrTooManyFiles indicates more than one file was offered for a single upload.
	ErrTooManyFiles = errors.New("only one file can be uploaded at a time")
	// ErrFileTooLarge indicates the file exceeds the maximum upload size.
	ErrFileTooLarge = errors.New("file exceeds the maximum upload size")
	// ErrFileType indicates the file extension is not an accepted video format.
	ErrFileType = errors.New("file type is not an accepted video format")
	// ErrTitleRequired indicates a submission without a title.
	ErrTitleRequired = errors.New("title required")

	// ErrSessionClosed indicates an operation on a session that already succeeded or failed.
	ErrSessionClosed = errors.New("upload session is closed")
	// ErrTransferInProgress indicates an operation that conflicts with a running transfer.
	ErrTransferInProgress = errors.New("upload already in progress")
)

// ValidationError is a client-side rejection detected before any network call.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Reason.Error()
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func invalid(reason error, detail string) *ValidationError {
	return &ValidationError{Reason: reason, Detail: detail}
}
