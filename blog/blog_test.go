package blog

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func createTestUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{
		Name:         name,
		Email:        strings.ToLower(name) + "@example.com",
		PasswordHash: "hashedpassword",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestCategory(t *testing.T, db *gorm.DB, name, slug string) *models.Category {
	t.Helper()
	category := &models.Category{Name: name, Slug: slug}
	require.NoError(t, db.Create(category).Error)
	return category
}

type fixture struct {
	db       *gorm.DB
	service  *Service
	alice    *auth.Identity
	bob      *auth.Identity
	category *models.Category
}

func setupFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	return &fixture{
		db:       db,
		service:  NewService(db),
		alice:    auth.IdentityOf(createTestUser(t, db, "Alice")),
		bob:      auth.IdentityOf(createTestUser(t, db, "Bob")),
		category: createTestCategory(t, db, "Technology", "technology"),
	}
}

func (f *fixture) createPost(t *testing.T, author *auth.Identity, title string, published bool) *models.Post {
	t.Helper()
	post, err := f.service.Create(context.Background(), PostInput{
		Title:       title,
		Content:     "Some content long enough for " + title,
		CategoryID:  f.category.ID,
		IsPublished: published,
	}, author)
	require.NoError(t, err)
	return post
}

func fieldNames(err error) []string {
	var names []string
	for _, f := range apperror.From(err).Fields {
		names = append(names, f.Field)
	}
	return names
}

func postIDs(posts []models.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestCreateRoundTrip(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	in := PostInput{
		Title:      "Hello, World!",
		Content:    "# Greetings\n\nThis is the first post.",
		Excerpt:    "The first post",
		Tags:       []string{" go ", "web", "go", ""},
		CategoryID: f.category.ID,
	}
	created, err := f.service.Create(ctx, in, f.alice)
	require.NoError(t, err)

	fetched, err := f.service.Get(ctx, created.ID, f.alice)
	require.NoError(t, err)

	assert.Equal(t, in.Title, fetched.Title)
	assert.Equal(t, in.Content, fetched.Content)
	assert.Equal(t, in.Excerpt, fetched.Excerpt)
	assert.Equal(t, []string{"go", "web"}, fetched.Tags)
	assert.Equal(t, f.category.ID, fetched.CategoryID)
	assert.Equal(t, "hello-world", fetched.Slug)
	assert.Equal(t, f.alice.ID, fetched.AuthorID)
	assert.False(t, fetched.IsPublished)
	require.NotNil(t, fetched.Author)
	assert.Equal(t, "Alice", fetched.Author.Name)
	require.NotNil(t, fetched.Category)
	assert.Equal(t, "Technology", fetched.Category.Name)
}

func TestCreateReportsEveryInvalidField(t *testing.T) {
	f := setupFixture(t)

	tags := make([]string, 21)
	for i := range tags {
		tags[i] = fmt.Sprintf("tag-%d", i)
	}
	_, err := f.service.Create(context.Background(), PostInput{
		Title:      "",
		Content:    "short",
		Tags:       tags,
		CategoryID: "missing",
	}, f.alice)

	require.True(t, apperror.Is(err, apperror.KindValidation))
	assert.ElementsMatch(t, []string{"title", "content", "tags", "category"}, fieldNames(err))

	var count int64
	f.db.Model(&models.Post{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreateRequiresIdentity(t *testing.T) {
	f := setupFixture(t)

	_, err := f.service.Create(context.Background(), PostInput{
		Title: "Anonymous", Content: "Nobody wrote this one", CategoryID: f.category.ID,
	}, nil)

	assert.True(t, apperror.Is(err, apperror.KindAuthentication))
}

func TestAnonymousListNeverIncludesDrafts(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	published := f.createPost(t, f.alice, "Published post", true)
	aliceDraft := f.createPost(t, f.alice, "Alice draft", false)
	bobDraft := f.createPost(t, f.bob, "Bob draft", false)

	page, err := f.service.List(ctx, ListQuery{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{published.ID}, postIDs(page.Posts))
	assert.EqualValues(t, 1, page.Total)
	for _, p := range page.Posts {
		assert.True(t, p.IsPublished)
	}

	page, err = f.service.List(ctx, ListQuery{}, f.alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{published.ID, aliceDraft.ID}, postIDs(page.Posts))

	page, err = f.service.List(ctx, ListQuery{}, f.bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{published.ID, bobDraft.ID}, postIDs(page.Posts))
}

func TestListPaging(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		f.createPost(t, f.alice, fmt.Sprintf("Post number %d", i), true)
	}

	page, err := f.service.List(ctx, ListQuery{Page: 3, Limit: 5}, nil)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 2)
	assert.EqualValues(t, 12, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.HasNext())
	assert.True(t, page.HasPrev())

	page, err = f.service.List(ctx, ListQuery{Page: 0, Limit: -4}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, page.Page)
	assert.Equal(t, DefaultLimit, page.Limit)
	assert.Len(t, page.Posts, 10)

	page, err = f.service.List(ctx, ListQuery{Limit: 5000}, nil)
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, page.Limit)
}

func TestListCategoryFilter(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	other := createTestCategory(t, f.db, "Travel", "travel")

	tech := f.createPost(t, f.alice, "Tech post", true)
	travel, err := f.service.Create(ctx, PostInput{
		Title: "Travel post", Content: "Notes from the road trip", CategoryID: other.ID, IsPublished: true,
	}, f.alice)
	require.NoError(t, err)

	page, err := f.service.List(ctx, ListQuery{Category: f.category.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{tech.ID}, postIDs(page.Posts))

	page, err = f.service.List(ctx, ListQuery{Category: "travel"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{travel.ID}, postIDs(page.Posts))
}

func TestSearch(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	match := f.createPost(t, f.alice, "Golang tips", true)
	f.createPost(t, f.alice, "Cooking pasta", true)
	f.createPost(t, f.bob, "Golang draft", false)

	_, err := f.service.Search(ctx, SearchQuery{Q: "   "}, nil)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	page, err := f.service.Search(ctx, SearchQuery{Q: "GOLANG"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{match.ID}, postIDs(page.Posts))

	page, err = f.service.Search(ctx, SearchQuery{Q: "golang"}, f.bob)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 2)

	// wildcards are matched literally
	page, err = f.service.Search(ctx, SearchQuery{Q: "%"}, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
}

func TestGetDraftVisibility(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	draft := f.createPost(t, f.alice, "Secret draft", false)

	_, err := f.service.Get(ctx, draft.ID, nil)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	_, err = f.service.Get(ctx, draft.ID, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	post, err := f.service.Get(ctx, draft.ID, f.alice)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, post.ID)

	_, err = f.service.Get(ctx, "does-not-exist", f.alice)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestGetBySlugPrefersMostRecent(t *testing.T) {
	f := setupFixture(t)
	now := time.Now()
	older := models.Post{Title: "Same", Slug: "same", Content: "older content", CategoryID: f.category.ID,
		AuthorID: f.alice.ID, IsPublished: true, CreatedAt: now.Add(-time.Hour)}
	newer := models.Post{Title: "Same", Slug: "same", Content: "newer content", CategoryID: f.category.ID,
		AuthorID: f.alice.ID, IsPublished: true, CreatedAt: now}
	require.NoError(t, f.db.Create(&older).Error)
	require.NoError(t, f.db.Create(&newer).Error)

	post, err := f.service.Get(context.Background(), "same", nil)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, post.ID)
	assert.Equal(t, []string{}, post.Tags)
}

func TestUpdate(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	post, err := f.service.Create(ctx, PostInput{
		Title: "Original title", Content: "Original content here", CategoryID: f.category.ID, Tags: []string{"a", "b"},
	}, f.alice)
	require.NoError(t, err)

	title := "Brand New Title"
	_, err = f.service.Update(ctx, post.ID, PostPatch{Title: &title}, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	_, err = f.service.Update(ctx, "missing", PostPatch{Title: &title}, f.alice)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	short := "tiny"
	empty := ""
	_, err = f.service.Update(ctx, post.ID, PostPatch{Title: &empty, Content: &short}, f.alice)
	require.True(t, apperror.Is(err, apperror.KindValidation))
	assert.ElementsMatch(t, []string{"title", "content"}, fieldNames(err))

	updated, err := f.service.Update(ctx, post.ID, PostPatch{Title: &title, Tags: []string{"c"}}, f.alice)
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "brand-new-title", updated.Slug)
	assert.Equal(t, "Original content here", updated.Content)
	assert.Equal(t, []string{"c"}, updated.Tags)
	assert.Equal(t, f.alice.ID, updated.AuthorID)

	content := "Rewritten content body"
	updated, err = f.service.Update(ctx, post.ID, PostPatch{Content: &content}, f.alice)
	require.NoError(t, err)
	assert.Equal(t, "brand-new-title", updated.Slug)
	assert.Equal(t, []string{"c"}, updated.Tags)
}

func TestSetPublishedIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "To be published", false)

	_, err := f.service.SetPublished(ctx, post.ID, true, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	for i := 0; i < 2; i++ {
		updated, err := f.service.SetPublished(ctx, post.ID, true, f.alice)
		require.NoError(t, err)
		assert.True(t, updated.IsPublished)
	}

	updated, err := f.service.SetPublished(ctx, post.ID, false, f.alice)
	require.NoError(t, err)
	assert.False(t, updated.IsPublished)
}

func TestDeleteRemovesCommentsAndTagLinks(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	post, err := f.service.Create(ctx, PostInput{
		Title: "Doomed", Content: "This post will be deleted", CategoryID: f.category.ID,
		Tags: []string{"gone"}, IsPublished: true,
	}, f.alice)
	require.NoError(t, err)
	_, err = f.service.AddComment(ctx, post.ID, CommentInput{Content: "Nice post"}, f.bob)
	require.NoError(t, err)

	err = f.service.Delete(ctx, post.ID, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	require.NoError(t, f.service.Delete(ctx, post.ID, f.alice))

	var posts, comments, links, categories int64
	f.db.Model(&models.Post{}).Count(&posts)
	f.db.Model(&models.Comment{}).Count(&comments)
	f.db.Model(&models.PostTag{}).Count(&links)
	f.db.Model(&models.Category{}).Count(&categories)
	assert.Zero(t, posts)
	assert.Zero(t, comments)
	assert.Zero(t, links)
	assert.EqualValues(t, 1, categories)

	err = f.service.Delete(ctx, post.ID, f.alice)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestComments(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "Commentable", true)
	draft := f.createPost(t, f.alice, "Hidden", false)

	_, err := f.service.AddComment(ctx, post.ID, CommentInput{Content: "   "}, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.service.AddComment(ctx, post.ID, CommentInput{Content: strings.Repeat("x", 1001)}, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.service.AddComment(ctx, "missing", CommentInput{Content: "Hello"}, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = f.service.AddComment(ctx, draft.ID, CommentInput{Content: "Hello"}, f.bob)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	first, err := f.service.AddComment(ctx, post.ID, CommentInput{Content: "  First!  "}, f.bob)
	require.NoError(t, err)
	assert.Equal(t, "First!", first.Content)
	require.NotNil(t, first.User)
	assert.Equal(t, "Bob", first.User.Name)

	_, err = f.service.AddComment(ctx, post.ID, CommentInput{Content: "Second"}, f.alice)
	require.NoError(t, err)

	comments, err := f.service.ListComments(ctx, post.ID, nil)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "First!", comments[0].Content)
	assert.Equal(t, "Second", comments[1].Content)

	_, err = f.service.ListComments(ctx, draft.ID, nil)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	comments, err = f.service.ListComments(ctx, draft.ID, f.alice)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestListMine(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.createPost(t, f.alice, "Alice published", true)
	f.createPost(t, f.alice, "Alice draft", false)
	f.createPost(t, f.bob, "Bob published", true)

	posts, err := f.service.ListMine(ctx, f.alice)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	for _, p := range posts {
		assert.Equal(t, f.alice.ID, p.AuthorID)
	}

	_, err = f.service.ListMine(ctx, nil)
	assert.True(t, apperror.Is(err, apperror.KindAuthentication))
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("# Title\n\nThis is **bold** and https://example.com\n\n<script>alert(1)</script>")

	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, `<a href="https://example.com">`)
	assert.NotContains(t, html, "<script>")
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, normalizeTags(nil))
	assert.Equal(t, []string{}, normalizeTags([]string{" ", ""}))
	assert.Equal(t, []string{"go", "Go", "web"}, normalizeTags([]string{"go", " Go", "go ", "web"}))
}

func TestSearchFoldsCaseAndAccents(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	post := f.createPost(t, f.alice, "Édition Spéciale", true)

	for _, q := range []string{"Édition", "édition", "ÉDITION", "edition", "spéciale"} {
		page, err := f.service.Search(ctx, SearchQuery{Q: q}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{post.ID}, postIDs(page.Posts), q)
	}

	title := "Über alles"
	content := "Grüße aus München, ganz kurz"
	_, err := f.service.Update(ctx, post.ID, PostPatch{Title: &title, Content: &content}, f.alice)
	require.NoError(t, err)

	page, err := f.service.Search(ctx, SearchQuery{Q: "édition"}, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	for _, q := range []string{"ÜBER", "uber", "MÜNCHEN"} {
		page, err := f.service.Search(ctx, SearchQuery{Q: q}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{post.ID}, postIDs(page.Posts), q)
	}
}

func TestMigrationsBackfillSearchColumns(t *testing.T) {
	f := setupFixture(t)
	post := f.createPost(t, f.alice, "Ça marche", true)
	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", post.ID).
		UpdateColumns(map[string]any{"title_fold": "", "content_fold": ""}).Error)

	require.NoError(t, database.RunMigrations(f.db))

	var stored models.Post
	require.NoError(t, f.db.First(&stored, "id = ?", post.ID).Error)
	assert.Equal(t, "ca marche", stored.TitleFold)
	assert.NotEmpty(t, stored.ContentFold)
}

func TestListClampsHugePages(t *testing.T) {
	f := setupFixture(t)
	f.createPost(t, f.alice, "Only post", true)

	page, err := f.service.List(context.Background(), ListQuery{Page: math.MaxInt}, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, maxPage, page.Page)
	assert.Equal(t, int64(1), page.Total)
	assert.True(t, page.HasPrev())
	assert.False(t, page.HasNext())
}
