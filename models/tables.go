package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"inkwell/slug"
)

const (
	RoleUser   = "user"
	RoleAuthor = "author"
	RoleAdmin  = "admin"
)

type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"` // json:"-" keeps the hash out of every response
	Role         string    `gorm:"size:16;not null;default:user" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

type Category struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:200" json:"description,omitempty"`
	Slug        string    `gorm:"size:60;uniqueIndex;not null" json:"slug"`
	Posts       []Post    `gorm:"foreignKey:CategoryID" json:"posts,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type Post struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Title       string    `gorm:"size:100;not null" json:"title"`
	Slug        string    `gorm:"size:120;not null;index" json:"slug"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	// TitleFold and ContentFold hold slug.Fold of their columns for search.
	TitleFold   string    `gorm:"size:100" json:"-"`
	ContentFold string    `gorm:"type:text" json:"-"`
	ContentHTML string    `gorm:"-" json:"contentHtml,omitempty"`
	Excerpt     string    `gorm:"size:300" json:"excerpt,omitempty"`
	Tags        []string  `gorm:"-" json:"tags"`
	CategoryID  string    `gorm:"size:36;not null;index" json:"categoryId"`
	Category    *Category `json:"category,omitempty"`
	AuthorID    string    `gorm:"size:36;not null;index" json:"authorId"`
	Author      *User     `json:"author,omitempty"`
	IsPublished bool      `gorm:"not null;default:false;index" json:"isPublished"`
	Comments    []Comment `json:"comments,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave keeps the search columns in step with whole-struct saves.
// Column updates through a map set them explicitly.
func (p *Post) BeforeSave(tx *gorm.DB) error {
	p.TitleFold = slug.Fold(p.Title)
	p.ContentFold = slug.Fold(p.Content)
	return nil
}

// Comment belongs to exactly one post and is never edited after creation.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"size:36;not null;index" json:"postId"`
	UserID    string    `gorm:"size:36;not null;index" json:"userId"`
	User      *User     `json:"user,omitempty"`
	Content   string    `gorm:"size:1000;not null" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type Tag struct {
	ID    uint   `gorm:"primaryKey"`
	Title string `gorm:"size:30;uniqueIndex;not null" json:"title"`
}

// PostTag links a post to a tag; Position keeps the author's ordering.
type PostTag struct {
	ID       uint   `gorm:"primaryKey"`
	PostID   string `gorm:"size:36;not null;index" json:"post_id"`
	TagID    uint   `gorm:"not null;index" json:"tag_id"`
	Position int    `gorm:"not null" json:"position"`
}
