package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ravikeerthi7606/edustream/internal/api"
	"github.com/ravikeerthi7606/edustream/internal/auth"
	"github.com/ravikeerthi7606/edustream/internal/config"
	"github.com/ravikeerthi7606/edustream/internal/db"
	"github.com/ravikeerthi7606/edustream/internal/logging"
	"github.com/ravikeerthi7606/edustream/internal/models"
	"github.com/ravikeerthi7606/edustream/internal/storage"
	"github.com/ravikeerthi7606/edustream/internal/upload"
)

const usage = `usage: edustream <command> [flags]

commands:
  login      -email E -password P -role student|teacher
  register   -name N -email E -password P -role student|teacher
  logout
  whoami     [-refresh]
  health
  videos     [-page N] [-per-page N] [-search S] [-subject S]
  my-videos  [-page N] [-per-page N]
  browse     [-per-page N] [-subject S]
  get        -id ID
  upload     -file PATH|s3://bucket/key [-title T] [-description D] [-subject S]
  delete     -id ID
  migrate    [up|status]`

// Run executes one edustream command.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// commandError carries the message shown to the user while keeping the cause.
type commandError struct {
	msg string
	err error
}

func (e *commandError) Error() string { return e.msg }
func (e *commandError) Unwrap() error { return e.err }

// userFacing converts err to the message a user should see: validation
// messages as is, API details when the server sent one, fallback otherwise.
func userFacing(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var verr *upload.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return &commandError{msg: api.DetailOr(err, fallback), err: err}
	}
	var transportErr *api.TransportError
	if errors.As(err, &transportErr) && transportErr.Timeout() {
		return &commandError{msg: fallback + ": request timed out", err: err}
	}
	return &commandError{msg: fallback, err: err}
}

type runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	deps   *dependencies
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	ctx = logging.WithCommand(logging.WithLogger(ctx, logger), args[0])

	if args[0] == "migrate" {
		return runMigrations(ctx, cfg, args[1:], stdout)
	}

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	r := &runner{stdin: stdin, stdout: stdout, stderr: stderr, deps: deps}
	return r.dispatch(ctx, args[0], args[1:])
}

func (r *runner) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return r.login(ctx, args)
	case "register":
		return r.register(ctx, args)
	case "logout":
		r.deps.auth.Logout(ctx)
		return r.print(map[string]string{"status": "signed out"})
	case "whoami":
		return r.whoami(ctx, args)
	case "health":
		status, err := r.deps.gateway.Health(ctx)
		if err != nil {
			return userFacing(err, "API unavailable")
		}
		return r.print(status)
	case "videos":
		return r.listVideos(ctx, args)
	case "my-videos":
		return r.listMine(ctx, args)
	case "browse":
		return r.browse(ctx, args)
	case "get":
		return r.getVideo(ctx, args)
	case "upload":
		return r.upload(ctx, args)
	case "delete":
		return r.deleteVideo(ctx, args)
	case "help", "-h", "--help":
		_, err := fmt.Fprintln(r.stdout, usage)
		return err
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func (r *runner) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(r.stderr)
	return fs
}

func (r *runner) print(v any) error {
	enc := json.NewEncoder(r.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *runner) login(ctx context.Context, args []string) error {
	fs := r.flags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	roleFlag := fs.String("role", string(models.RoleStudent), "student or teacher")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, ok := models.ParseRole(*roleFlag)
	if !ok {
		return auth.ErrInvalidRole
	}
	if *email == "" || *password == "" {
		return errors.New("login: -email and -password are required")
	}

	identity, err := r.deps.auth.Login(ctx, *email, *password, role)
	if err != nil {
		return userFacing(err, "Login failed")
	}
	return r.print(identity)
}

func (r *runner) register(ctx context.Context, args []string) error {
	fs := r.flags("register")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	roleFlag := fs.String("role", string(models.RoleStudent), "student or teacher")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, ok := models.ParseRole(*roleFlag)
	if !ok {
		return auth.ErrInvalidRole
	}
	if *name == "" || *email == "" || *password == "" {
		return errors.New("register: -name, -email and -password are required")
	}

	identity, err := r.deps.auth.Register(ctx, *name, *email, *password, role)
	if err != nil {
		return userFacing(err, "Registration failed")
	}
	return r.print(identity)
}

type whoamiOutput struct {
	User      models.Identity `json:"user"`
	Subject   string          `json:"token_subject,omitempty"`
	ExpiresAt *time.Time      `json:"token_expires_at,omitempty"`
	Expired   bool            `json:"token_expired"`
}

func (r *runner) whoami(ctx context.Context, args []string) error {
	fs := r.flags("whoami")
	refresh := fs.Bool("refresh", false, "re-read the profile from the server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		identity models.Identity
		ok       bool
	)
	if *refresh {
		var err error
		identity, err = r.deps.auth.Refresh(ctx)
		if err != nil {
			if errors.Is(err, auth.ErrNotSignedIn) {
				return err
			}
			return userFacing(err, "Could not refresh profile")
		}
		ok = true
	} else {
		identity, ok = r.deps.auth.Current(ctx)
	}
	if !ok {
		return auth.ErrNotSignedIn
	}

	out := whoamiOutput{User: identity}
	if token, found := r.deps.store.Credential(ctx); found {
		if claims, err := auth.InspectCredential(token); err == nil {
			out.Subject = claims.Subject
			if !claims.ExpiresAt.IsZero() {
				expires := claims.ExpiresAt
				out.ExpiresAt = &expires
			}
			out.Expired = claims.Expired(time.Now())
		} else {
			r.deps.logger.Debug("credential is not a readable token", slog.String("error", err.Error()))
		}
	}
	return r.print(out)
}

type pageOutput struct {
	Page  models.CatalogPage `json:"page"`
	Stats *models.PageStats  `json:"stats,omitempty"`
	Stale bool               `json:"stale,omitempty"`
}

func (r *runner) listVideos(ctx context.Context, args []string) error {
	fs := r.flags("videos")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 0, "videos per page")
	search := fs.String("search", "", "title search")
	subject := fs.String("subject", "", "subject filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := r.deps.videos.List(ctx, *page, *perPage, *search, *subject)
	if err != nil {
		return userFacing(err, "Failed to load videos")
	}
	r.deps.videos.Engine().Wait()
	return r.print(pageOutput{Page: snap.Page, Stale: snap.Stale})
}

func (r *runner) listMine(ctx context.Context, args []string) error {
	fs := r.flags("my-videos")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 0, "videos per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := r.deps.videos.ListMine(ctx, *page, *perPage)
	if err != nil {
		return userFacing(err, "Failed to load your videos")
	}
	r.deps.videos.Engine().Wait()
	stats := snap.Page.Stats()
	return r.print(pageOutput{Page: snap.Page, Stats: &stats, Stale: snap.Stale})
}

func (r *runner) getVideo(ctx context.Context, args []string) error {
	fs := r.flags("get")
	id := fs.String("id", "", "video id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	video, err := r.deps.videos.Get(ctx, *id)
	if err != nil {
		return userFacing(err, "Video not found")
	}
	return r.print(video)
}

func (r *runner) deleteVideo(ctx context.Context, args []string) error {
	fs := r.flags("delete")
	id := fs.String("id", "", "video id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := r.deps.videos.Delete(ctx, *id); err != nil {
		return userFacing(err, "Failed to delete video")
	}
	return r.print(map[string]string{"status": "deleted", "id": strings.TrimSpace(*id)})
}

func (r *runner) upload(ctx context.Context, args []string) error {
	fs := r.flags("upload")
	source := fs.String("file", "", "local path or s3://bucket/key")
	title := fs.String("title", "", "video title (defaults to the file name)")
	description := fs.String("description", "", "video description")
	subject := fs.String("subject", "", "video subject")
	if err := fs.Parse(args); err != nil {
		return err
	}

	file, release, err := r.openCandidate(ctx, *source)
	if err != nil {
		return err
	}
	defer release()

	progress := &progressPrinter{w: r.stderr, last: -1}
	sess := r.deps.newUploadSession(progress)

	if file != nil {
		if err := sess.SelectFiles(file); err != nil {
			return err
		}
	}
	if *title != "" {
		if err := sess.SetTitle(*title); err != nil {
			return err
		}
	}
	if err := sess.SetDescription(*description); err != nil {
		return err
	}
	if err := sess.SetSubject(*subject); err != nil {
		return err
	}

	video, err := sess.Submit(ctx)
	if err != nil {
		return userFacing(err, "Upload failed")
	}
	return r.print(video)
}

// openCandidate resolves the -file argument. S3 objects are validated from
// their metadata before being downloaded to a temporary file.
func (r *runner) openCandidate(ctx context.Context, source string) (upload.File, func(), error) {
	noop := func() {}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, noop, nil
	}

	if !storage.IsURI(source) {
		file, err := upload.OpenLocal(source)
		if err != nil {
			return nil, noop, err
		}
		return file, noop, nil
	}

	src, err := r.deps.s3(ctx)
	if err != nil {
		return nil, noop, err
	}
	obj, err := src.Stat(ctx, source)
	if err != nil {
		return nil, noop, err
	}
	if err := upload.ValidateFile(obj, r.deps.cfg.MaxUploadBytes); err != nil {
		return nil, noop, err
	}
	spooled, err := src.Spool(ctx, obj)
	if err != nil {
		return nil, noop, err
	}
	return spooled, func() {
		if err := spooled.Remove(); err != nil {
			r.deps.logger.Warn("remove spooled upload failed", slog.String("error", err.Error()))
		}
	}, nil
}

// progressPrinter writes the transfer percentage to stderr whenever it changes.
type progressPrinter struct {
	w    io.Writer
	last int
}

func (p *progressPrinter) OnStateChange(s upload.State) {
	switch s.Status {
	case upload.StatusTransferring, upload.StatusSucceeded:
		if s.Progress != p.last {
			p.last = s.Progress
			fmt.Fprintf(p.w, "upload: %d%%\n", s.Progress)
		}
	case upload.StatusFailed:
		fmt.Fprintf(p.w, "upload failed: %s\n", s.Detail)
	}
}

func runMigrations(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	if strings.TrimSpace(cfg.Session.DatabaseURL) == "" {
		return errors.New("migrate: EDUSTREAM_DATABASE_URL is required")
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	pool, err := db.Connect(ctx, cfg.Session.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch command {
	case "status":
		statuses, err := db.Status(ctx, pool)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			mark := " "
			if s.Applied {
				mark = "x"
			}
			fmt.Fprintf(stdout, "[%s] %s\n", mark, s.Name)
		}
		return nil
	case "up", "":
		applied, err := db.Migrate(ctx, pool, logging.FromContext(ctx))
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(stdout, "no migrations to apply")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintf(stdout, "applied migration %s\n", name)
		}
		return nil
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}
