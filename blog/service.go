package blog

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"gorm.io/gorm"

	"inkwell/apperror"
	"inkwell/auth"
	"inkwell/models"
	"inkwell/slug"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type ListQuery struct {
	Page     int
	Limit    int
	Category string
}

type SearchQuery struct {
	Q     string
	Page  int
	Limit int
}

// Page is one page of posts plus the counts needed to navigate the rest.
type Page struct {
	Posts      []models.Post
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

func (p *Page) HasNext() bool { return p.Page < p.TotalPages }
func (p *Page) HasPrev() bool { return p.Page > 1 }

type PostInput struct {
	Title       string   `json:"title" validate:"required,max=100"`
	Content     string   `json:"content" validate:"required,min=10"`
	Excerpt     string   `json:"excerpt" validate:"max=300"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=30"`
	CategoryID  string   `json:"category" validate:"required"`
	IsPublished bool     `json:"isPublished"`
}

// PostPatch carries only the fields the caller sent; nil means unchanged.
type PostPatch struct {
	Title       *string  `json:"title" validate:"omitnil,min=1,max=100"`
	Content     *string  `json:"content" validate:"omitnil,min=10"`
	Excerpt     *string  `json:"excerpt" validate:"omitnil,max=300"`
	Tags        []string `json:"tags" validate:"omitnil,max=20,dive,max=30"`
	CategoryID  *string  `json:"category" validate:"omitnil,min=1"`
	IsPublished *bool    `json:"isPublished"`
}

type CommentInput struct {
	Content string `json:"content" validate:"required,max=1000"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// maxPage keeps (page-1)*limit inside int.
const maxPage = math.MaxInt / MaxLimit

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// visibleTo limits posts to what caller may read: published posts, plus the
// caller's own drafts.
func visibleTo(caller *auth.Identity) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if caller == nil {
			return db.Where("is_published = ?", true)
		}
		return db.Where("(is_published = ? OR author_id = ?)", true, caller.ID)
	}
}

func inCategory(idOrSlug string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(category_id = ? OR category_id IN (?))", idOrSlug,
			db.Session(&gorm.Session{NewDB: true}).Model(&models.Category{}).Select("id").Where("slug = ?", idOrSlug))
	}
}

func matching(q string) func(*gorm.DB) *gorm.DB {
	escaped := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(slug.Fold(q))
	pattern := "%" + escaped + "%"
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(title_fold LIKE ? ESCAPE '!' OR content_fold LIKE ? ESCAPE '!')", pattern, pattern)
	}
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Category")
}

func (s *Service) paginate(ctx context.Context, page, limit int, scopes ...func(*gorm.DB) *gorm.DB) (*Page, error) {
	page, limit = normalizePaging(page, limit)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Scopes(scopes...).Count(&total).Error; err != nil {
		return nil, apperror.Internal("count posts", err)
	}

	posts := []models.Post{}
	err := s.db.WithContext(ctx).
		Scopes(scopes...).
		Scopes(withRelations).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, apperror.Internal("list posts", err)
	}
	if err := attachTags(s.db.WithContext(ctx), posts); err != nil {
		return nil, apperror.Internal("load tags", err)
	}

	return &Page{
		Posts:      posts,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// List returns the posts caller may see, newest first.
func (s *Service) List(ctx context.Context, q ListQuery, caller *auth.Identity) (*Page, error) {
	scopes := []func(*gorm.DB) *gorm.DB{visibleTo(caller)}
	if c := strings.TrimSpace(q.Category); c != "" {
		scopes = append(scopes, inCategory(c))
	}
	return s.paginate(ctx, q.Page, q.Limit, scopes...)
}

// Search matches q against title and content, case-insensitively, under the
// same visibility as List.
func (s *Service) Search(ctx context.Context, q SearchQuery, caller *auth.Identity) (*Page, error) {
	term := strings.TrimSpace(q.Q)
	if term == "" {
		return nil, apperror.Validation("Search query is required",
			apperror.FieldError{Field: "q", Message: "is required"})
	}
	return s.paginate(ctx, q.Page, q.Limit, visibleTo(caller), matching(term))
}

// ListMine returns every post written by caller, drafts included.
func (s *Service) ListMine(ctx context.Context, caller *auth.Identity) ([]models.Post, error) {
	if caller == nil {
		return nil, apperror.Authentication(apperror.ReasonMissingToken, "Access token required")
	}
	posts := []models.Post{}
	err := s.db.WithContext(ctx).
		Scopes(withRelations).
		Where("author_id = ?", caller.ID).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, apperror.Internal("list own posts", err)
	}
	if err := attachTags(s.db.WithContext(ctx), posts); err != nil {
		return nil, apperror.Internal("load tags", err)
	}
	return posts, nil
}

func (s *Service) findByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Scopes(withRelations).Where("id = ?", id).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Post not found")
	}
	if err != nil {
		return nil, apperror.Internal("load post", err)
	}
	return &post, nil
}

func (s *Service) withTags(ctx context.Context, post *models.Post) (*models.Post, error) {
	posts := []models.Post{*post}
	if err := attachTags(s.db.WithContext(ctx), posts); err != nil {
		return nil, apperror.Internal("load tags", err)
	}
	return &posts[0], nil
}

// Get resolves idOrSlug as an id first, then as the slug of the most recent
// post carrying it. Drafts are only returned to their author.
func (s *Service) Get(ctx context.Context, idOrSlug string, caller *auth.Identity) (*models.Post, error) {
	post, err := s.findByID(ctx, idOrSlug)
	if apperror.Is(err, apperror.KindNotFound) {
		var bySlug models.Post
		err = s.db.WithContext(ctx).Scopes(withRelations).
			Where("slug = ?", idOrSlug).
			Order("created_at DESC").
			Take(&bySlug).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Post not found")
		}
		if err != nil {
			return nil, apperror.Internal("load post", err)
		}
		post = &bySlug
	} else if err != nil {
		return nil, err
	}

	if err := checkVisible(post, caller); err != nil {
		return nil, err
	}
	return s.withTags(ctx, post)
}

func checkVisible(post *models.Post, caller *auth.Identity) error {
	if post.IsPublished || caller.Is(post.AuthorID) {
		return nil
	}
	if caller == nil {
		return apperror.Authorization("This post is not published. Please sign in if you are the author.")
	}
	return apperror.Authorization("This post is not published and you are not the author.")
}

func (s *Service) categoryExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Create stores a new post owned by author. Every invalid field is reported.
func (s *Service) Create(ctx context.Context, in PostInput, author *auth.Identity) (*models.Post, error) {
	if author == nil {
		return nil, apperror.Authentication(apperror.ReasonMissingToken, "Access token required")
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	in.Tags = normalizeTags(in.Tags)

	fields := apperror.Check(in)
	postSlug := slug.Make(in.Title)
	if in.Title != "" && postSlug == "" {
		fields.Add("title", "must contain at least one letter or digit")
	}
	if in.CategoryID != "" {
		ok, err := s.categoryExists(ctx, in.CategoryID)
		if err != nil {
			return nil, apperror.Internal("check category", err)
		}
		if !ok {
			fields.Add("category", "must reference an existing category")
		}
	}
	if err := fields.Err("Invalid post data"); err != nil {
		return nil, err
	}

	post := models.Post{
		Title:       in.Title,
		Slug:        postSlug,
		Content:     in.Content,
		Excerpt:     in.Excerpt,
		CategoryID:  in.CategoryID,
		AuthorID:    author.ID,
		IsPublished: in.IsPublished,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return err
		}
		return replacePostTags(tx, post.ID, in.Tags)
	})
	if err != nil {
		return nil, apperror.Internal("create post", err)
	}
	slog.Info("Post created", "post_id", post.ID, "author_id", author.ID, "published", post.IsPublished)

	return s.reload(ctx, post.ID)
}

func (s *Service) reload(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withTags(ctx, post)
}

// ownedPost loads the post id and checks that caller wrote it.
func (s *Service) ownedPost(ctx context.Context, id string, caller *auth.Identity, action string) (*models.Post, error) {
	if caller == nil {
		return nil, apperror.Authentication(apperror.ReasonMissingToken, "Access token required")
	}
	post, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Is(post.AuthorID) {
		return nil, apperror.Authorization("You can only " + action + " your own posts")
	}
	return post, nil
}

// Update applies the fields present in patch. The author never changes.
func (s *Service) Update(ctx context.Context, id string, patch PostPatch, caller *auth.Identity) (*models.Post, error) {
	post, err := s.ownedPost(ctx, id, caller, "update")
	if err != nil {
		return nil, err
	}

	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	trim(patch.Title)
	trim(patch.Content)
	trim(patch.Excerpt)
	trim(patch.CategoryID)
	patch.Tags = normalizeTags(patch.Tags)

	fields := apperror.Check(patch)
	updates := map[string]any{}
	if patch.Title != nil {
		postSlug := slug.Make(*patch.Title)
		if *patch.Title != "" && postSlug == "" {
			fields.Add("title", "must contain at least one letter or digit")
		}
		updates["title"] = *patch.Title
		updates["title_fold"] = slug.Fold(*patch.Title)
		if *patch.Title != post.Title {
			updates["slug"] = postSlug
		}
	}
	if patch.Content != nil {
		updates["content"] = *patch.Content
		updates["content_fold"] = slug.Fold(*patch.Content)
	}
	if patch.Excerpt != nil {
		updates["excerpt"] = *patch.Excerpt
	}
	if patch.CategoryID != nil && *patch.CategoryID != "" {
		ok, err := s.categoryExists(ctx, *patch.CategoryID)
		if err != nil {
			return nil, apperror.Internal("check category", err)
		}
		if !ok {
			fields.Add("category", "must reference an existing category")
		}
		updates["category_id"] = *patch.CategoryID
	}
	if patch.IsPublished != nil {
		updates["is_published"] = *patch.IsPublished
	}
	if err := fields.Err("Invalid post data"); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if patch.Tags != nil {
			return replacePostTags(tx, post.ID, patch.Tags)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Internal("update post", err)
	}
	slog.Info("Post updated", "post_id", post.ID)

	return s.reload(ctx, post.ID)
}

// Delete removes the post with its comments and tag links.
func (s *Service) Delete(ctx context.Context, id string, caller *auth.Identity) error {
	post, err := s.ownedPost(ctx, id, caller, "delete")
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostTag{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", post.ID).Delete(&models.Post{}).Error
	})
	if err != nil {
		return apperror.Internal("delete post", err)
	}
	slog.Info("Post deleted", "post_id", post.ID)
	return nil
}

// SetPublished moves the post to the requested state. Repeating a call is a
// no-op.
func (s *Service) SetPublished(ctx context.Context, id string, published bool, caller *auth.Identity) (*models.Post, error) {
	post, err := s.ownedPost(ctx, id, caller, "publish/unpublish")
	if err != nil {
		return nil, err
	}

	if post.IsPublished != published {
		err := s.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ?", post.ID).
			Update("is_published", published).Error
		if err != nil {
			return nil, apperror.Internal("publish post", err)
		}
	}
	return s.reload(ctx, post.ID)
}

// AddComment appends a comment by author to a post author may read.
func (s *Service) AddComment(ctx context.Context, postID string, in CommentInput, author *auth.Identity) (*models.Comment, error) {
	if author == nil {
		return nil, apperror.Authentication(apperror.ReasonMissingToken, "Access token required")
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := apperror.Check(in).Err("Invalid comment"); err != nil {
		return nil, err
	}

	post, err := s.findByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := checkVisible(post, author); err != nil {
		return nil, err
	}

	comment := models.Comment{PostID: post.ID, UserID: author.ID, Content: in.Content}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, apperror.Internal("create comment", err)
	}

	if err := s.db.WithContext(ctx).Preload("User").Where("id = ?", comment.ID).Take(&comment).Error; err != nil {
		return nil, apperror.Internal("load comment", err)
	}
	return &comment, nil
}

// ListComments returns the post's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, postID string, caller *auth.Identity) ([]models.Comment, error) {
	post, err := s.findByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := checkVisible(post, caller); err != nil {
		return nil, err
	}

	comments := []models.Comment{}
	err = s.db.WithContext(ctx).
		Preload("User").
		Where("post_id = ?", post.ID).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, apperror.Internal("list comments", err)
	}
	return comments, nil
}
