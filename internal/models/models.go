package models

import (
	"strings"
	"time"
)

// Role identifies which side of the platform an account belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether the role is one of the platform's closed set of roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// ParseRole normalises user input into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Identity is the authenticated user's public profile.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Valid reports whether the identity can be stored as a signed-in user.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.ID) != "" && i.Role.Valid()
}

// AuthResponse is returned by the login and register endpoints.
type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type,omitempty"`
	User        Identity `json:"user"`
}

// VideoRecord describes an uploaded video as reported by the server.
type VideoRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	FileSize    int64     `json:"file_size"`
	Duration    *float64  `json:"duration,omitempty"`
	TeacherID   string    `json:"teacher_id,omitempty"`
	TeacherName string    `json:"teacher_name"`
	Views       int64     `json:"views"`
	CreatedAt   time.Time `json:"created_at"`
	VideoURL    string    `json:"video_url"`
}

// CatalogPage is one page of video listings.
type CatalogPage struct {
	Videos     []VideoRecord `json:"videos"`
	Total      int           `json:"total"`
	Page       int           `json:"page,omitempty"`
	PerPage    int           `json:"per_page,omitempty"`
	TotalPages int           `json:"total_pages"`
}

// PageStats summarises a page for the teacher dashboard.
type PageStats struct {
	TotalVideos  int   `json:"total_videos"`
	TotalViews   int64 `json:"total_views"`
	AverageViews int64 `json:"average_views"`
}

// Stats sums views over the videos on the page. The average divides by the
// catalog total, matching the dashboard's presentation.
func (p CatalogPage) Stats() PageStats {
	var views int64
	for _, v := range p.Videos {
		views += v.Views
	}
	stats := PageStats{TotalVideos: p.Total, TotalViews: views}
	if p.Total > 0 {
		stats.AverageViews = (views + int64(p.Total)/2) / int64(p.Total)
	}
	return stats
}

// HasNext reports whether a page after the given one exists.
func (p CatalogPage) HasNext(page int) bool {
	return page < p.TotalPages
}

// TotalPages computes ceil(total / perPage), returning zero for an empty catalog.
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
