package blog

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"inkwell/apperror"
	"inkwell/auth"
	"inkwell/common"
)

type BlogModule struct {
	service *Service
	gate    *auth.Gate
}

func NewBlogModule(service *Service, gate *auth.Gate) *BlogModule {
	return &BlogModule{service: service, gate: gate}
}

func (b *BlogModule) RegisterRoutes(router gin.IRouter) {
	optional := b.gate.OptionalAuth()
	required := b.gate.RequireAuth()

	postsGroup := router.Group("/posts")
	{
		postsGroup.GET("", optional, b.list)
		postsGroup.GET("/search", optional, b.search)
		postsGroup.GET("/mine", required, b.mine)
		postsGroup.GET("/:id", optional, b.get)
		postsGroup.POST("", required, b.create)
		postsGroup.PUT("/:id", required, b.update)
		postsGroup.DELETE("/:id", required, b.delete)
		postsGroup.PATCH("/:id/publish", required, b.publish)
		postsGroup.GET("/:id/comments", optional, b.listComments)
		postsGroup.POST("/:id/comments", required, b.addComment)
	}
}

func paginationBody(p *Page) gin.H {
	return gin.H{
		"currentPage": p.Page,
		"totalPages":  p.TotalPages,
		"totalPosts":  p.Total,
		"hasNextPage": p.HasNext(),
		"hasPrevPage": p.HasPrev(),
	}
}

func (b *BlogModule) list(c *gin.Context) {
	page, err := b.service.List(c.Request.Context(), ListQuery{
		Page:     common.QueryInt(c, "page"),
		Limit:    common.QueryInt(c, "limit"),
		Category: c.Query("category"),
	}, auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":      page.Posts,
		"pagination": paginationBody(page),
	})
}

func (b *BlogModule) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	page, err := b.service.Search(c.Request.Context(), SearchQuery{
		Q:     q,
		Page:  common.QueryInt(c, "page"),
		Limit: common.QueryInt(c, "limit"),
	}, auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	pagination := paginationBody(page)
	pagination["searchQuery"] = q
	c.JSON(http.StatusOK, gin.H{
		"posts":      page.Posts,
		"pagination": pagination,
	})
}

func (b *BlogModule) mine(c *gin.Context) {
	posts, err := b.service.ListMine(c.Request.Context(), auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (b *BlogModule) get(c *gin.Context) {
	post, err := b.service.Get(c.Request.Context(), c.Param("id"), auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	if c.Query("render") == "html" {
		html, err := RenderHTML(post.Content)
		if err != nil {
			common.Fail(c, apperror.Internal("render post", err))
			return
		}
		post.ContentHTML = html
	}

	c.JSON(http.StatusOK, post)
}

func (b *BlogModule) create(c *gin.Context) {
	var in PostInput
	if err := common.BindJSON(c, &in); err != nil {
		common.Fail(c, err)
		return
	}

	post, err := b.service.Create(c.Request.Context(), in, auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"data":    post,
	})
}

func (b *BlogModule) update(c *gin.Context) {
	var patch PostPatch
	if err := common.BindJSON(c, &patch); err != nil {
		common.Fail(c, err)
		return
	}

	id := c.Param("id")
	post, err := b.service.Update(c.Request.Context(), id, patch, auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Post %s updated successfully", id),
		"data":    post,
	})
}

func (b *BlogModule) delete(c *gin.Context) {
	id := c.Param("id")
	if err := b.service.Delete(c.Request.Context(), id, auth.Current(c)); err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Post %s deleted successfully", id),
	})
}

type publishRequest struct {
	IsPublished *bool `json:"isPublished" validate:"required"`
}

func (b *BlogModule) publish(c *gin.Context) {
	var req publishRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}
	if err := apperror.Check(req).Err("Invalid publish request"); err != nil {
		common.Fail(c, err)
		return
	}

	post, err := b.service.SetPublished(c.Request.Context(), c.Param("id"), *req.IsPublished, auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	action := "unpublished"
	if post.IsPublished {
		action = "published"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Post " + action + " successfully",
		"data":    post,
	})
}

func (b *BlogModule) listComments(c *gin.Context) {
	comments, err := b.service.ListComments(c.Request.Context(), c.Param("id"), auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (b *BlogModule) addComment(c *gin.Context) {
	var in CommentInput
	if err := common.BindJSON(c, &in); err != nil {
		common.Fail(c, err)
		return
	}

	comment, err := b.service.AddComment(c.Request.Context(), c.Param("id"), in, auth.Current(c))
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Comment added successfully",
		"comment": comment,
	})
}
