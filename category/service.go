package category

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"inkwell/apperror"
	"inkwell/models"
	"inkwell/slug"
)

type CategoryInput struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"max=200"`
}

type CategoryPatch struct {
	Name        *string `json:"name" validate:"omitnil,min=2,max=50"`
	Description *string `json:"description" validate:"omitnil,max=200"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, apperror.Internal("list categories", err)
	}
	return categories, nil
}

// Get resolves idOrSlug and loads the category's published posts.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*models.Category, error) {
	var category models.Category
	err := s.db.WithContext(ctx).
		Preload("Posts", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_published = ?", true).Order("created_at DESC")
		}).
		Where("id = ? OR slug = ?", idOrSlug, idOrSlug).
		Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Category not found")
	}
	if err != nil {
		return nil, apperror.Internal("load category", err)
	}
	return &category, nil
}

func (s *Service) find(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Category not found")
	}
	if err != nil {
		return nil, apperror.Internal("load category", err)
	}
	return &category, nil
}

// checkUnique rejects a name or slug already used by another category.
// Names compare case-insensitively.
func (s *Service) checkUnique(ctx context.Context, name, categorySlug, exceptID string) error {
	q := s.db.WithContext(ctx).Model(&models.Category{}).
		Where("(LOWER(name) = ? OR slug = ?)", strings.ToLower(name), categorySlug)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperror.Internal("check category", err)
	}
	if count > 0 {
		return apperror.Conflict("Category with this name or slug already exists")
	}
	return nil
}

func persistError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.Conflict("Category with this name or slug already exists")
	}
	return apperror.Internal(op, err)
}

func (s *Service) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	fields := apperror.Check(in)
	categorySlug := slug.Make(in.Name)
	if in.Name != "" && categorySlug == "" {
		fields.Add("name", "must contain at least one letter or digit")
	}
	if err := fields.Err("Invalid category data"); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, in.Name, categorySlug, ""); err != nil {
		return nil, err
	}

	category := models.Category{
		Name:        in.Name,
		Description: in.Description,
		Slug:        categorySlug,
	}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, persistError("create category", err)
	}
	slog.Info("Category created", "category_id", category.ID, "slug", category.Slug)
	return &category, nil
}

// Update renames and re-slugs the category when a name is given.
func (s *Service) Update(ctx context.Context, id string, patch CategoryPatch) (*models.Category, error) {
	category, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		*patch.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		*patch.Description = strings.TrimSpace(*patch.Description)
	}

	fields := apperror.Check(patch)
	updates := map[string]any{}
	if patch.Name != nil {
		categorySlug := slug.Make(*patch.Name)
		if *patch.Name != "" && categorySlug == "" {
			fields.Add("name", "must contain at least one letter or digit")
		}
		updates["name"] = *patch.Name
		updates["slug"] = categorySlug
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if err := fields.Err("Invalid category data"); err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if err := s.checkUnique(ctx, *patch.Name, updates["slug"].(string), category.ID); err != nil {
			return nil, err
		}
	}
	if len(updates) > 0 {
		err := s.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", category.ID).Updates(updates).Error
		if err != nil {
			return nil, persistError("update category", err)
		}
	}
	return s.find(ctx, category.ID)
}

// Delete removes the category only. Posts keep their category reference.
func (s *Service) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Category{})
	if result.Error != nil {
		return apperror.Internal("delete category", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("Category not found")
	}
	slog.Info("Category deleted", "category_id", id)
	return nil
}
