package blog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"inkwell/auth"
	"inkwell/common"
	"inkwell/models"
)

type routerFixture struct {
	*fixture
	router *gin.Engine
	tokens *auth.TokenIssuer
}

func setupTestRouter(t *testing.T) *routerFixture {
	f := setupFixture(t)
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	users := auth.NewService(f.db, tokens, bcrypt.MinCost, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(common.ErrorHandler(false))
	NewBlogModule(f.service, auth.NewGate(tokens, users)).RegisterRoutes(router.Group("/api"))

	return &routerFixture{fixture: f, router: router, tokens: tokens}
}

func (r *routerFixture) token(t *testing.T, id *auth.Identity) string {
	t.Helper()
	token, _, err := r.tokens.Issue(&models.User{ID: id.ID, Email: id.Email, Name: id.Name})
	require.NoError(t, err)
	return token
}

func (r *routerFixture) do(method, path string, body any, token string) *httptest.ResponseRecorder {
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
	r.router.ServeHTTP(w, req)
	return w
}

type listResponse struct {
	Posts      []models.Post `json:"posts"`
	Pagination struct {
		CurrentPage int    `json:"currentPage"`
		TotalPages  int    `json:"totalPages"`
		TotalPosts  int    `json:"totalPosts"`
		HasNextPage bool   `json:"hasNextPage"`
		HasPrevPage bool   `json:"hasPrevPage"`
		SearchQuery string `json:"searchQuery"`
	} `json:"pagination"`
}

func TestListEndpointHidesDraftsFromAnonymous(t *testing.T) {
	r := setupTestRouter(t)
	published := r.createPost(t, r.alice, "Visible to all", true)
	r.createPost(t, r.alice, "Only for Alice", false)

	w := r.do(http.MethodGet, "/api/posts?page=abc&limit=", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Posts, 1)
	assert.Equal(t, published.ID, body.Posts[0].ID)
	assert.Equal(t, 1, body.Pagination.CurrentPage)
	assert.Equal(t, 1, body.Pagination.TotalPages)
	assert.Equal(t, 1, body.Pagination.TotalPosts)
	assert.False(t, body.Pagination.HasNextPage)
	assert.False(t, body.Pagination.HasPrevPage)

	// an unusable token reads as anonymous
	w = r.do(http.MethodGet, "/api/posts", nil, "garbage")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Posts, 1)

	w = r.do(http.MethodGet, "/api/posts", nil, r.token(t, r.alice))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Posts, 2)
}

func TestSearchEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	r.createPost(t, r.alice, "Golang generics", true)

	w := r.do(http.MethodGet, "/api/posts/search", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = r.do(http.MethodGet, "/api/posts/search?q=+generics+", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Posts, 1)
	assert.Equal(t, "generics", body.Pagination.SearchQuery)
}

func TestCreateEndpointForcesAuthor(t *testing.T) {
	r := setupTestRouter(t)
	payload := gin.H{
		"title":    "Written by Alice",
		"content":  "Content that is long enough",
		"category": r.category.ID,
		"author":   r.bob.ID,
		"authorId": r.bob.ID,
	}

	w := r.do(http.MethodPost, "/api/posts", payload, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = r.do(http.MethodPost, "/api/posts", payload, r.token(t, r.alice))
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Message string      `json:"message"`
		Data    models.Post `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Post created successfully", body.Message)
	assert.Equal(t, r.alice.ID, body.Data.AuthorID)
	assert.Equal(t, "written-by-alice", body.Data.Slug)
	assert.False(t, body.Data.IsPublished)

	w = r.do(http.MethodPost, "/api/posts", gin.H{"title": "x"}, r.token(t, r.alice))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"errors"`)
}

func TestGetEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	draft := r.createPost(t, r.alice, "Draft only", false)

	w := r.do(http.MethodGet, "/api/posts/"+draft.ID, nil, r.token(t, r.bob))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = r.do(http.MethodGet, "/api/posts/"+draft.ID, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = r.do(http.MethodGet, "/api/posts/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = r.do(http.MethodGet, "/api/posts/draft-only?render=html", nil, r.token(t, r.alice))
	require.Equal(t, http.StatusOK, w.Code)
	var post models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &post))
	assert.Equal(t, draft.ID, post.ID)
	assert.Contains(t, post.ContentHTML, "<p>")
}

func TestMutationEndpointsCheckOwnership(t *testing.T) {
	r := setupTestRouter(t)
	post := r.createPost(t, r.alice, "Owned by Alice", false)
	bob := r.token(t, r.bob)
	alice := r.token(t, r.alice)

	w := r.do(http.MethodPut, "/api/posts/"+post.ID, gin.H{"title": "Stolen"}, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = r.do(http.MethodPatch, "/api/posts/"+post.ID+"/publish", gin.H{"isPublished": true}, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = r.do(http.MethodDelete, "/api/posts/"+post.ID, nil, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = r.do(http.MethodPatch, "/api/posts/"+post.ID+"/publish", gin.H{}, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = r.do(http.MethodPatch, "/api/posts/"+post.ID+"/publish", gin.H{"isPublished": true}, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Post published successfully")

	w = r.do(http.MethodPut, "/api/posts/"+post.ID, gin.H{"title": "Renamed by Alice"}, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "renamed-by-alice")

	w = r.do(http.MethodDelete, "/api/posts/"+post.ID, nil, alice)
	require.Equal(t, http.StatusOK, w.Code)

	w = r.do(http.MethodDelete, "/api/posts/"+post.ID, nil, alice)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentEndpoints(t *testing.T) {
	r := setupTestRouter(t)
	post := r.createPost(t, r.alice, "Discuss", true)

	w := r.do(http.MethodPost, "/api/posts/"+post.ID+"/comments", gin.H{"content": "Hi"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = r.do(http.MethodPost, "/api/posts/"+post.ID+"/comments", gin.H{"content": "Great read"}, r.token(t, r.bob))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Comment added successfully")

	w = r.do(http.MethodGet, "/api/posts/"+post.ID+"/comments", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var comments []models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comments))
	require.Len(t, comments, 1)
	assert.Equal(t, "Great read", comments[0].Content)
	require.NotNil(t, comments[0].User)
	assert.Equal(t, "Bob", comments[0].User.Name)
}

func TestMineEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	r.createPost(t, r.alice, "Alice draft", false)

	w := r.do(http.MethodGet, "/api/posts/mine", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = r.do(http.MethodGet, "/api/posts/mine", nil, r.token(t, r.alice))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Posts []models.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Posts, 1)
}
