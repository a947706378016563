package videos

import (
	"net/url"
	"strconv"
	"strings"
)

// Namespace groups cached queries that a mutation invalidates together.
type Namespace string

const (
	// NamespaceCatalog is the public catalog across all teachers.
	NamespaceCatalog Namespace = "videos"
	// NamespaceMine is the signed-in teacher's own uploads.
	NamespaceMine Namespace = "my-videos"
)

// DefaultPerPage is the page size used when a query does not set one.
const DefaultPerPage = 12

// allSubjects is the filter value meaning "no subject filter".
const allSubjects = "All"

// Query identifies one page of video listings.
type Query struct {
	Namespace Namespace
	Page      int
	PerPage   int
	Search    string
	Subject   string
}

// Normalize returns the canonical form of q: whitespace-only search and the
// "All" subject mean no filter, pages start at 1, and the own-videos listing
// ignores search and subject because its endpoint accepts neither.
func (q Query) Normalize() Query {
	if q.Namespace == "" {
		q.Namespace = NamespaceCatalog
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultPerPage
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Subject = strings.TrimSpace(q.Subject)
	if strings.EqualFold(q.Subject, allSubjects) {
		q.Subject = ""
	}
	if q.Namespace == NamespaceMine {
		q.Search = ""
		q.Subject = ""
	}
	return q
}

// Values encodes the query string sent to the server.
func (q Query) Values() url.Values {
	q = q.Normalize()
	values := url.Values{}
	values.Set("page", strconv.Itoa(q.Page))
	values.Set("per_page", strconv.Itoa(q.PerPage))
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Subject != "" {
		values.Set("subject", q.Subject)
	}
	return values
}

// Key is the cache key of the canonical query. Equivalent queries share a key.
func (q Query) Key() string {
	q = q.Normalize()
	return string(q.Namespace) + "?" + q.Values().Encode()
}

// Path is the endpoint serving the query's namespace.
func (q Query) Path() string {
	if q.Namespace == NamespaceMine {
		return "/videos/my"
	}
	return "/videos"
}
