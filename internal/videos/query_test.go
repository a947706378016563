package videos

import "testing"

func TestQueryNormalize(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  Query
	}{
		{
			name:  "defaults",
			query: Query{},
			want:  Query{Namespace: NamespaceCatalog, Page: 1, PerPage: DefaultPerPage},
		},
		{
			name:  "whitespace search is no search",
			query: Query{Page: 2, PerPage: 6, Search: "   "},
			want:  Query{Namespace: NamespaceCatalog, Page: 2, PerPage: 6},
		},
		{
			name:  "all subjects",
			query: Query{Page: 1, PerPage: 12, Subject: "All"},
			want:  Query{Namespace: NamespaceCatalog, Page: 1, PerPage: 12},
		},
		{
			name:  "trims filters",
			query: Query{Page: 1, PerPage: 12, Search: " algebra ", Subject: " Mathematics"},
			want:  Query{Namespace: NamespaceCatalog, Page: 1, PerPage: 12, Search: "algebra", Subject: "Mathematics"},
		},
		{
			name:  "own videos ignore filters",
			query: Query{Namespace: NamespaceMine, Page: 3, PerPage: 12, Search: "x", Subject: "Physics"},
			want:  Query{Namespace: NamespaceMine, Page: 3, PerPage: 12},
		},
		{
			name:  "page beyond total is kept",
			query: Query{Page: 5, PerPage: 12},
			want:  Query{Namespace: NamespaceCatalog, Page: 5, PerPage: 12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Normalize(); got != tt.want {
				t.Fatalf("expected %+v got %+v", tt.want, got)
			}
		})
	}
}

func TestQueryKey(t *testing.T) {
	a := Query{Page: 1, PerPage: 12, Search: ""}
	b := Query{Namespace: NamespaceCatalog, Page: 1, PerPage: 12, Search: "  ", Subject: "All"}
	if a.Key() != b.Key() {
		t.Fatalf("expected equivalent keys got %q and %q", a.Key(), b.Key())
	}

	c := Query{Page: 1, PerPage: 12, Search: "algebra"}
	if a.Key() == c.Key() {
		t.Fatal("expected search to change the key")
	}

	mine := Query{Namespace: NamespaceMine, Page: 1, PerPage: 12}
	if a.Key() == mine.Key() {
		t.Fatal("expected namespaces to have distinct keys")
	}
}

func TestQueryValuesAndPath(t *testing.T) {
	q := Query{Page: 2, PerPage: 12, Search: "linear algebra", Subject: "Mathematics"}
	values := q.Values()
	if values.Get("page") != "2" || values.Get("per_page") != "12" || values.Get("search") != "linear algebra" || values.Get("subject") != "Mathematics" {
		t.Fatalf("unexpected values %v", values)
	}
	if q.Path() != "/videos" {
		t.Fatalf("unexpected path %q", q.Path())
	}

	mine := Query{Namespace: NamespaceMine, Page: 1, PerPage: 12, Search: "ignored"}
	values = mine.Values()
	if values.Has("search") || values.Has("subject") {
		t.Fatalf("expected no filters for own videos got %v", values)
	}
	if mine.Path() != "/videos/my" {
		t.Fatalf("unexpected path %q", mine.Path())
	}
}
