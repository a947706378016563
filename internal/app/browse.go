package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ravikeerthi7606/edustream/internal/videos"
)

type browseOutput struct {
	Page        int      `json:"page"`
	Search      string   `json:"search,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Total       int      `json:"total"`
	TotalPages  int      `json:"total_pages"`
	Titles      []string `json:"titles"`
	Loading     bool     `json:"loading,omitempty"`
	Placeholder bool     `json:"placeholder,omitempty"`
	Stale       bool     `json:"stale,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// browse reads the catalog interactively. Each input line replaces the search
// text; ":page N" and ":subject S" change the page and subject filter. Search
// input is debounced; page and subject changes apply immediately. Every
// display change is printed as one JSON object.
func (r *runner) browse(ctx context.Context, args []string) error {
	fs := r.flags("browse")
	perPage := fs.Int("per-page", 0, "videos per page")
	subject := fs.String("subject", "", "initial subject filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		outMu   sync.Mutex
		printed uint64
	)
	// emit prints every display change once, in revision order: loading
	// placeholders, resolved pages, errors and background refreshes.
	emit := func(d videos.Display) {
		outMu.Lock()
		defer outMu.Unlock()
		if d.Revision <= printed {
			return
		}
		printed = d.Revision

		out := browseOutput{
			Page:        d.Query.Page,
			Search:      d.Query.Search,
			Subject:     d.Query.Subject,
			Total:       d.Page.Total,
			TotalPages:  d.Page.TotalPages,
			Titles:      make([]string, 0, len(d.Page.Videos)),
			Loading:     d.Loading,
			Placeholder: d.Placeholder(),
			Stale:       d.Stale,
		}
		for _, v := range d.Page.Videos {
			out.Titles = append(out.Titles, v.Title)
		}
		if d.Err != nil {
			out.Error = userFacing(d.Err, "Failed to load videos").Error()
		}
		_ = r.print(out)
	}

	view := videos.NewView(r.deps.videos.Engine(), emit)
	defer view.Close()

	var (
		mu      sync.Mutex
		current = r.deps.videos.CatalogQuery(1, *perPage, "", *subject)
		loads   sync.WaitGroup
	)
	// Select runs before the goroutine starts so requests are ordered as typed.
	load := func(q videos.Query) {
		view.Select(q)
		loads.Add(1)
		go func() {
			defer loads.Done()
			if _, err := view.Resolve(ctx, q); err != nil && !errors.Is(err, videos.ErrSuperseded) {
				r.deps.logger.Debug("catalog load failed", slog.String("key", q.Key()), slog.String("error", err.Error()))
			}
		}()
	}

	debouncer := videos.NewDebouncer(r.deps.cfg.Catalog.SearchDebounce, func(search string) {
		mu.Lock()
		current.Search = search
		current.Page = 1
		q := current.Normalize()
		mu.Unlock()
		load(q)
	})
	defer debouncer.Stop()

	load(current)

	scanner := bufio.NewScanner(r.stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ":page "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ":page ")))
			if err != nil || n < 1 {
				fmt.Fprintf(r.stderr, "invalid page %q\n", line)
				continue
			}
			debouncer.Flush()
			mu.Lock()
			current.Page = n
			q := current.Normalize()
			mu.Unlock()
			load(q)
		case strings.HasPrefix(line, ":subject"):
			debouncer.Flush()
			mu.Lock()
			current.Subject = strings.TrimSpace(strings.TrimPrefix(line, ":subject"))
			current.Page = 1
			q := current.Normalize()
			mu.Unlock()
			load(q)
		default:
			debouncer.Push(line)
		}
	}
	debouncer.Flush()

	loads.Wait()
	r.deps.videos.Engine().Wait()
	return scanner.Err()
}
