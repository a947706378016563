package videos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ravikeerthi7606/edustream/internal/logging"
	"github.com/ravikeerthi7606/edustream/internal/models"
)

// Gateway is the subset of the API client used by the catalog.
type Gateway interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// Client reads the catalog through a caching Engine and performs video
// mutations, invalidating the affected namespaces when they succeed.
type Client struct {
	gateway Gateway
	engine  *Engine
	perPage int
	logger  *slog.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	PerPage int
	Logger  *slog.Logger
	Engine  []EngineOption
}

// NewClient builds a Client and the Engine behind it.
func NewClient(gateway Gateway, opts ClientOptions) (*Client, error) {
	if gateway == nil {
		return nil, errors.New("videos: gateway must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	c := &Client{gateway: gateway, perPage: perPage, logger: logger.With(slog.String("component", "videos_client"))}

	engineOpts := append([]EngineOption{WithLogger(logger)}, opts.Engine...)
	engine, err := NewEngine(c.fetch, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("create catalog engine: %w", err)
	}
	c.engine = engine
	return c, nil
}

// Engine exposes the query engine, e.g. to build a View.
func (c *Client) Engine() *Engine { return c.engine }

// CatalogQuery builds a public catalog query using the client's page size
// when perPage is not set.
func (c *Client) CatalogQuery(page, perPage int, search, subject string) Query {
	if perPage <= 0 {
		perPage = c.perPage
	}
	return Query{Namespace: NamespaceCatalog, Page: page, PerPage: perPage, Search: search, Subject: subject}.Normalize()
}

// MineQuery builds a query for the signed-in teacher's own uploads.
func (c *Client) MineQuery(page, perPage int) Query {
	if perPage <= 0 {
		perPage = c.perPage
	}
	return Query{Namespace: NamespaceMine, Page: page, PerPage: perPage}.Normalize()
}

// List reads one page of the public catalog.
func (c *Client) List(ctx context.Context, page, perPage int, search, subject string) (Snapshot, error) {
	return c.engine.Read(ctx, c.CatalogQuery(page, perPage, search, subject))
}

// ListMine reads one page of the signed-in teacher's uploads.
func (c *Client) ListMine(ctx context.Context, page, perPage int) (Snapshot, error) {
	return c.engine.Read(ctx, c.MineQuery(page, perPage))
}

// Get fetches a single video. Reads are not cached.
func (c *Client) Get(ctx context.Context, id string) (models.VideoRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.VideoRecord{}, ErrMissingID
	}

	var video models.VideoRecord
	if err := c.gateway.Get(ctx, "/videos/"+url.PathEscape(id), nil, &video); err != nil {
		return models.VideoRecord{}, err
	}
	return video, nil
}

// Delete removes a video owned by the signed-in teacher.
func (c *Client) Delete(ctx context.Context, id string) (err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingID
	}

	ctx, span := logging.StartSpan(c.withLogger(ctx), "videos.delete", slog.String("video_id", id))
	defer func() {
		span.Fail(err)
		span.End()
	}()

	if err := c.gateway.Delete(ctx, "/videos/"+url.PathEscape(id), nil); err != nil {
		return err
	}

	c.engine.Invalidate(NamespaceMine, NamespaceCatalog)
	return nil
}

// Invalidate drops cached pages in the given namespaces.
func (c *Client) Invalidate(namespaces ...Namespace) {
	c.engine.Invalidate(namespaces...)
}

func (c *Client) fetch(ctx context.Context, q Query) (page models.CatalogPage, err error) {
	ctx, span := logging.StartSpan(c.withLogger(ctx), "videos.fetch",
		slog.String("namespace", string(q.Namespace)),
		slog.Int("page", q.Page),
	)
	defer func() {
		span.Fail(err)
		span.End()
	}()

	if err := c.gateway.Get(ctx, q.Path(), q.Values(), &page); err != nil {
		return models.CatalogPage{}, err
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.PerPage == 0 {
		page.PerPage = q.PerPage
	}
	span.Annotate(slog.Int("total", page.Total), slog.Int("returned", len(page.Videos)))
	return page, nil
}

func (c *Client) withLogger(ctx context.Context) context.Context {
	if logging.FromContext(ctx) == slog.Default() {
		return logging.WithLogger(ctx, c.logger)
	}
	return ctx
}
