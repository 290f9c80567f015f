package client

import "time"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Local marks an optimistic entry the server has not confirmed yet.
	Local bool `json:"-"`
}

type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Content     string    `json:"content"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Tags        []string  `json:"tags"`
	CategoryID  string    `json:"categoryId"`
	Category    *Category `json:"category,omitempty"`
	AuthorID    string    `json:"authorId"`
	Author      *User     `json:"author,omitempty"`
	IsPublished bool      `json:"isPublished"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Local bool `json:"-"`
}

type Pagination struct {
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	TotalPosts  int    `json:"totalPosts"`
	HasNextPage bool   `json:"hasNextPage"`
	HasPrevPage bool   `json:"hasPrevPage"`
	SearchQuery string `json:"searchQuery,omitempty"`
}

type PostPage struct {
	Posts      []Post     `json:"posts"`
	Pagination Pagination `json:"pagination"`
}

type ListParams struct {
	Page     int
	Limit    int
	Category string
}

type PostDraft struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Excerpt     string   `json:"excerpt,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Category    string   `json:"category"`
	IsPublished bool     `json:"isPublished"`
}

// PostPatch sends only the non-nil fields. Tags is the exception: nil goes
// out as null and leaves the tags alone, an empty slice clears them.
type PostPatch struct {
	Title       *string  `json:"title,omitempty"`
	Content     *string  `json:"content,omitempty"`
	Excerpt     *string  `json:"excerpt,omitempty"`
	Tags        []string `json:"tags"`
	Category    *string  `json:"category,omitempty"`
	IsPublished *bool    `json:"isPublished,omitempty"`
}

type CategoryDraft struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CategoryPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type Session struct {
	User  User   `json:"data"`
	Token string `json:"token"`
}
