package category

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"inkwell/apperror"
	"inkwell/auth"
	"inkwell/common"
	"inkwell/config"
	"inkwell/database"
	"inkwell/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := common.ConnectDb(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = common.CloseDb(db) })

	require.NoError(t, database.RunMigrations(db))
	return db
}

func TestCreateDerivesSlug(t *testing.T) {
	service := NewService(setupTestDB(t))

	category, err := service.Create(context.Background(), CategoryInput{Name: "  Health & Wellness ", Description: "Body and mind"})

	require.NoError(t, err)
	assert.Equal(t, "Health & Wellness", category.Name)
	assert.Equal(t, "health-wellness", category.Slug)
	assert.NotEmpty(t, category.ID)
}

func TestCreateRejectsNamesCollidingOnSlug(t *testing.T) {
	service := NewService(setupTestDB(t))
	ctx := context.Background()

	_, err := service.Create(ctx, CategoryInput{Name: "Health & Wellness"})
	require.NoError(t, err)

	for _, name := range []string{"health & wellness", "Health   Wellness", "HEALTH WELLNESS"} {
		t.Run(name, func(t *testing.T) {
			_, err := service.Create(ctx, CategoryInput{Name: name})
			assert.True(t, apperror.Is(err, apperror.KindConflict), "got %v", err)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	service := NewService(setupTestDB(t))
	ctx := context.Background()

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'd'
	}
	_, err := service.Create(ctx, CategoryInput{Name: "x", Description: string(long)})
	require.True(t, apperror.Is(err, apperror.KindValidation))
	assert.Len(t, apperror.From(err).Fields, 2)

	_, err = service.Create(ctx, CategoryInput{Name: "!!!"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestUpdateReslugsAndChecksConflicts(t *testing.T) {
	service := NewService(setupTestDB(t))
	ctx := context.Background()
	travel, err := service.Create(ctx, CategoryInput{Name: "Travel"})
	require.NoError(t, err)
	_, err = service.Create(ctx, CategoryInput{Name: "Food"})
	require.NoError(t, err)

	name := "Travel Notes"
	updated, err := service.Update(ctx, travel.ID, CategoryPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "travel-notes", updated.Slug)

	// renaming to its own name is not a conflict
	updated, err = service.Update(ctx, travel.ID, CategoryPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Travel Notes", updated.Name)

	food := "FOOD"
	_, err = service.Update(ctx, travel.ID, CategoryPatch{Name: &food})
	assert.True(t, apperror.Is(err, apperror.KindConflict))

	_, err = service.Update(ctx, "missing", CategoryPatch{Name: &name})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestGetListsOnlyPublishedPosts(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()
	category, err := service.Create(ctx, CategoryInput{Name: "Technology"})
	require.NoError(t, err)

	for _, published := range []bool{true, false} {
		post := models.Post{Title: "T", Slug: "t", Content: "content here", CategoryID: category.ID,
			AuthorID: "someone", IsPublished: published}
		require.NoError(t, db.Create(&post).Error)
	}

	got, err := service.Get(ctx, category.ID)
	require.NoError(t, err)
	require.Len(t, got.Posts, 1)
	assert.True(t, got.Posts[0].IsPublished)

	got, err = service.Get(ctx, "technology")
	require.NoError(t, err)
	assert.Equal(t, category.ID, got.ID)
}

func TestDeleteLeavesPosts(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()
	category, err := service.Create(ctx, CategoryInput{Name: "Ephemeral"})
	require.NoError(t, err)
	post := models.Post{Title: "T", Slug: "t", Content: "content here", CategoryID: category.ID, AuthorID: "someone"}
	require.NoError(t, db.Create(&post).Error)

	require.NoError(t, service.Delete(ctx, category.ID))

	var count int64
	db.Model(&models.Post{}).Where("category_id = ?", category.ID).Count(&count)
	assert.EqualValues(t, 1, count)

	err = service.Delete(ctx, category.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCategoryEndpoints(t *testing.T) {
	db := setupTestDB(t)
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	users := auth.NewService(db, tokens, bcrypt.MinCost, nil)
	session, err := users.Register(context.Background(), auth.RegisterInput{Name: "Jane", Email: "jane@x.com", Password: "secret1"})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(common.ErrorHandler(false))
	NewCategoryModule(NewService(db), auth.NewGate(tokens, users)).RegisterRoutes(router.Group("/api"))

	do := func(method, path string, body any, token string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req, _ := http.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/api/categories", gin.H{"name": "Health & Wellness"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(http.MethodPost, "/api/categories", gin.H{"name": "Health & Wellness"}, session.Token)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data models.Category `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "health-wellness", created.Data.Slug)

	w = do(http.MethodPost, "/api/categories", gin.H{"name": "health & wellness"}, session.Token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(http.MethodGet, "/api/categories", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Category
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(http.MethodPut, "/api/categories/"+created.Data.ID, gin.H{"description": "Feel good"}, session.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Feel good")

	w = do(http.MethodDelete, "/api/categories/"+created.Data.ID, nil, session.Token)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(http.MethodGet, "/api/categories/"+created.Data.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
