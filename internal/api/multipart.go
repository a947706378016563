package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// ProgressListener observes bytes leaving the client during a multipart upload.
// It may be called zero or many times and is never required for correctness.
type ProgressListener interface {
	OnProgress(sent, total int64)
}

// ProgressFunc adapts a function to ProgressListener.
type ProgressFunc func(sent, total int64)

// OnProgress implements ProgressListener.
func (f ProgressFunc) OnProgress(sent, total int64) { f(sent, total) }

// FilePart is the file carried by a multipart request.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// FormField is a plain text multipart field.
type FormField struct {
	Name  string
	Value string
}

// MultipartForm is a file followed by text fields, in that order on the wire.
type MultipartForm struct {
	File   FilePart
	Fields []FormField
}

// MultipartOptions tunes a multipart request.
type MultipartOptions struct {
	// Timeout overrides the gateway's default request timeout.
	Timeout  time.Duration
	Progress ProgressListener
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// PostMultipart streams form to path. The body length is known up front, so
// progress is reported against the exact number of bytes on the wire.
func (g *Gateway) PostMultipart(ctx context.Context, path string, form MultipartForm, opts MultipartOptions, out any) error {
	body, contentType, length, err := encodeMultipart(form)
	if err != nil {
		return err
	}

	if opts.Progress != nil {
		body = &progressReader{r: body, total: length, listener: opts.Progress}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	ctx, cancel := g.withTimeout(ctx, timeout)
	defer cancel()

	req, err := g.newRequest(ctx, http.MethodPost, path, nil, body, contentType)
	if err != nil {
		return err
	}
	req.ContentLength = length

	return g.do(req, path, out)
}

func encodeMultipart(form MultipartForm) (io.Reader, string, int64, error) {
	file := form.File
	if file.Body == nil {
		return nil, "", 0, errors.New("multipart: file body is required")
	}
	if file.Size < 0 {
		return nil, "", 0, fmt.Errorf("multipart: invalid file size %d", file.Size)
	}
	if file.Field == "" {
		file.Field = "file"
	}
	if file.ContentType == "" {
		file.ContentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(file.Field), quoteEscaper.Replace(file.FileName)))
	header.Set("Content-Type", file.ContentType)
	if _, err := mw.CreatePart(header); err != nil {
		return nil, "", 0, fmt.Errorf("multipart: create file part: %w", err)
	}
	prefix := bytes.Clone(buf.Bytes())
	buf.Reset()

	// The file bytes are streamed between prefix and trailer and never pass
	// through the multipart writer.
	for _, field := range form.Fields {
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			return nil, "", 0, fmt.Errorf("multipart: write field %s: %w", field.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", 0, fmt.Errorf("multipart: close writer: %w", err)
	}
	trailer := bytes.Clone(buf.Bytes())

	length := int64(len(prefix)) + file.Size + int64(len(trailer))
	body := io.MultiReader(bytes.NewReader(prefix), io.LimitReader(file.Body, file.Size), bytes.NewReader(trailer))
	return body, mw.FormDataContentType(), length, nil
}

type progressReader struct {
	r        io.Reader
	sent     int64
	total    int64
	listener ProgressListener
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.listener.OnProgress(p.sent, p.total)
	}
	return n, err
}
