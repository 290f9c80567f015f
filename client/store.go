package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const DefaultPageSize = 10

// State is everything a front end renders. Values returned by the Store are
// deep copies and safe to keep.
type State struct {
	Posts            []Post
	Categories       []Category
	Page             int
	TotalPages       int
	TotalPosts       int
	PageSize         int
	SearchQuery      string
	IsSearching      bool
	IsSearchMode     bool
	SelectedCategory string
	LastError        error
}

func clonePost(p Post) Post {
	if p.Tags != nil {
		p.Tags = append([]string(nil), p.Tags...)
	}
	if p.Category != nil {
		c := *p.Category
		p.Category = &c
	}
	if p.Author != nil {
		a := *p.Author
		p.Author = &a
	}
	return p
}

func (s State) clone() State {
	if s.Posts != nil {
		posts := make([]Post, len(s.Posts))
		for i, p := range s.Posts {
			posts[i] = clonePost(p)
		}
		s.Posts = posts
	}
	if s.Categories != nil {
		s.Categories = append([]Category(nil), s.Categories...)
	}
	return s
}

// Store applies mutations to local state before the server confirms them and
// reverts them when it refuses. The mutex guards single reads and writes of
// the state only; overlapping mutations are not serialised against each
// other.
type Store struct {
	api API

	mu       sync.Mutex
	state    State
	tempSeq  int
	tempTime func() time.Time
}

func NewStore(api API, pageSize int) *Store {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Store{
		api: api,
		state: State{
			Posts:      []Post{},
			Categories: []Category{},
			Page:       1,
			TotalPages: 1,
			PageSize:   pageSize,
		},
		tempTime: time.Now,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// update runs fn under the lock and returns the resulting snapshot.
func (s *Store) update(fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	return s.state.clone()
}

func (s *Store) fail(err error) (State, error) {
	return s.update(func(st *State) { st.LastError = err }), err
}

func (s *Store) nextTempID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempSeq++
	return fmt.Sprintf("temp-%d", s.tempSeq)
}

// Load fetches the categories and the current page of posts.
func (s *Store) Load(ctx context.Context) (State, error) {
	categories, err := s.api.ListCategories(ctx)
	if err != nil {
		return s.fail(err)
	}
	s.update(func(st *State) {
		st.Categories = categories
		if st.Categories == nil {
			st.Categories = []Category{}
		}
	})
	return s.fetchPosts(ctx)
}

// fetchPosts reloads the current page in whichever mode the store is in.
func (s *Store) fetchPosts(ctx context.Context) (State, error) {
	st := s.update(func(st *State) {
		if st.IsSearchMode {
			st.IsSearching = true
		}
	})

	var page *PostPage
	var err error
	if st.IsSearchMode {
		page, err = s.api.SearchPosts(ctx, st.SearchQuery, st.Page, st.PageSize)
	} else {
		page, err = s.api.ListPosts(ctx, ListParams{Page: st.Page, Limit: st.PageSize, Category: st.SelectedCategory})
	}

	if err != nil {
		return s.update(func(st *State) {
			st.IsSearching = false
			st.LastError = err
			if st.IsSearchMode {
				st.Posts = []Post{}
			}
		}), err
	}

	return s.update(func(st *State) {
		st.IsSearching = false
		st.LastError = nil
		st.Posts = page.Posts
		if st.Posts == nil {
			st.Posts = []Post{}
		}
		if page.Pagination.CurrentPage > 0 {
			st.Page = page.Pagination.CurrentPage
		}
		st.TotalPages = max(page.Pagination.TotalPages, 1)
		st.TotalPosts = page.Pagination.TotalPosts
	}), nil
}

func removePost(posts []Post, id string) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func replacePost(posts []Post, id string, with Post) []Post {
	for i := range posts {
		if posts[i].ID == id {
			posts[i] = with
		}
	}
	return posts
}

// CreatePost shows the draft immediately under a temporary id, then swaps in
// the server's post. The temporary entry is removed if the call fails or
// panics.
func (s *Store) CreatePost(ctx context.Context, draft PostDraft) (State, error) {
	tempID := s.nextTempID()
	optimistic := Post{
		ID:          tempID,
		Title:       draft.Title,
		Content:     draft.Content,
		Excerpt:     draft.Excerpt,
		Tags:        append([]string(nil), draft.Tags...),
		CategoryID:  draft.Category,
		IsPublished: draft.IsPublished,
		CreatedAt:   s.tempTime(),
		Local:       true,
	}
	s.update(func(st *State) { st.Posts = append(st.Posts, optimistic) })

	committed := false
	defer func() {
		if !committed {
			s.update(func(st *State) { st.Posts = removePost(st.Posts, tempID) })
		}
	}()

	created, err := s.api.CreatePost(ctx, draft)
	committed = true
	if err != nil {
		return s.update(func(st *State) {
			st.Posts = removePost(st.Posts, tempID)
			st.LastError = err
		}), err
	}

	return s.update(func(st *State) {
		st.Posts = replacePost(st.Posts, tempID, clonePost(*created))
		st.Page = 1
		st.LastError = nil
	}), nil
}

func applyPostPatch(p Post, patch PostPatch) Post {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.Excerpt != nil {
		p.Excerpt = *patch.Excerpt
	}
	if patch.Tags != nil {
		p.Tags = append([]string(nil), patch.Tags...)
	}
	if patch.Category != nil {
		p.CategoryID = *patch.Category
	}
	if patch.IsPublished != nil {
		p.IsPublished = *patch.IsPublished
	}
	return p
}

// UpdatePost patches the post locally, then replaces it with the server's
// version. On failure the whole post list is restored to its prior state.
func (s *Store) UpdatePost(ctx context.Context, id string, patch PostPatch) (State, error) {
	var before []Post
	s.update(func(st *State) {
		before = st.clone().Posts
		for i := range st.Posts {
			if st.Posts[i].ID == id {
				st.Posts[i] = applyPostPatch(st.Posts[i], patch)
			}
		}
	})

	updated, err := s.api.UpdatePost(ctx, id, patch)
	if err != nil {
		return s.update(func(st *State) {
			st.Posts = before
			st.LastError = err
		}), err
	}

	return s.update(func(st *State) {
		st.Posts = replacePost(st.Posts, id, clonePost(*updated))
		st.LastError = nil
	}), nil
}

// DeletePost removes the post locally and restores the prior list if the
// server refuses.
func (s *Store) DeletePost(ctx context.Context, id string) (State, error) {
	var before []Post
	s.update(func(st *State) {
		before = st.clone().Posts
		st.Posts = removePost(st.Posts, id)
	})

	if err := s.api.DeletePost(ctx, id); err != nil {
		return s.update(func(st *State) {
			st.Posts = before
			st.LastError = err
		}), err
	}

	return s.update(func(st *State) { st.LastError = nil }), nil
}

// CreateCategory follows the same contract as CreatePost.
func (s *Store) CreateCategory(ctx context.Context, draft CategoryDraft) (State, error) {
	tempID := "temp-cat-" + strings.TrimPrefix(s.nextTempID(), "temp-")
	optimistic := Category{ID: tempID, Name: draft.Name, Description: draft.Description, Local: true}
	s.update(func(st *State) { st.Categories = append(st.Categories, optimistic) })

	committed := false
	defer func() {
		if !committed {
			s.update(func(st *State) { st.Categories = removeCategory(st.Categories, tempID) })
		}
	}()

	created, err := s.api.CreateCategory(ctx, draft)
	committed = true
	if err != nil {
		return s.update(func(st *State) {
			st.Categories = removeCategory(st.Categories, tempID)
			st.LastError = err
		}), err
	}

	return s.update(func(st *State) {
		for i := range st.Categories {
			if st.Categories[i].ID == tempID {
				st.Categories[i] = *created
			}
		}
		st.LastError = nil
	}), nil
}

func removeCategory(categories []Category, id string) []Category {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// UpdateCategory follows the same contract as UpdatePost.
func (s *Store) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (State, error) {
	var before []Category
	s.update(func(st *State) {
		before = append([]Category(nil), st.Categories...)
		for i := range st.Categories {
			if st.Categories[i].ID != id {
				continue
			}
			if patch.Name != nil {
				st.Categories[i].Name = *patch.Name
			}
			if patch.Description != nil {
				st.Categories[i].Description = *patch.Description
			}
		}
	})

	updated, err := s.api.UpdateCategory(ctx, id, patch)
	if err != nil {
		return s.update(func(st *State) {
			st.Categories = before
			st.LastError = err
		}), err
	}

	return s.update(func(st *State) {
		for i := range st.Categories {
			if st.Categories[i].ID == id {
				st.Categories[i] = *updated
			}
		}
		st.LastError = nil
	}), nil
}

// Search switches to search mode for q and clears any category filter. An
// empty q leaves search mode.
func (s *Store) Search(ctx context.Context, q string) (State, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.ClearSearch(ctx)
	}
	s.update(func(st *State) {
		st.SearchQuery = q
		st.IsSearchMode = true
		st.SelectedCategory = ""
		st.Page = 1
	})
	return s.fetchPosts(ctx)
}

func (s *Store) ClearSearch(ctx context.Context) (State, error) {
	s.update(func(st *State) {
		st.SearchQuery = ""
		st.IsSearchMode = false
		st.Page = 1
	})
	return s.fetchPosts(ctx)
}

// SelectCategory filters by category and leaves search mode. An empty id
// shows every category.
func (s *Store) SelectCategory(ctx context.Context, id string) (State, error) {
	s.update(func(st *State) {
		st.SelectedCategory = id
		st.SearchQuery = ""
		st.IsSearchMode = false
		st.Page = 1
	})
	return s.fetchPosts(ctx)
}

// GoToPage loads page n. Out-of-range pages leave the state untouched.
func (s *Store) GoToPage(ctx context.Context, n int) (State, error) {
	st := s.Snapshot()
	if n < 1 || n > st.TotalPages {
		return st, nil
	}
	s.update(func(st *State) { st.Page = n })
	return s.fetchPosts(ctx)
}

func (s *Store) NextPage(ctx context.Context) (State, error) {
	return s.GoToPage(ctx, s.Snapshot().Page+1)
}

func (s *Store) PrevPage(ctx context.Context) (State, error) {
	return s.GoToPage(ctx, s.Snapshot().Page-1)
}
