package category

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"inkwell/auth"
	"inkwell/common"
)

type CategoryModule struct {
	service *Service
	gate    *auth.Gate
}

func NewCategoryModule(service *Service, gate *auth.Gate) *CategoryModule {
	return &CategoryModule{service: service, gate: gate}
}

func (m *CategoryModule) RegisterRoutes(router gin.IRouter) {
	required := m.gate.RequireAuth()

	categoriesGroup := router.Group("/categories")
	{
		categoriesGroup.GET("", m.list)
		categoriesGroup.GET("/:id", m.get)
		categoriesGroup.POST("", required, m.create)
		categoriesGroup.PUT("/:id", required, m.update)
		categoriesGroup.DELETE("/:id", required, m.delete)
	}
}

func (m *CategoryModule) list(c *gin.Context) {
	categories, err := m.service.List(c.Request.Context())
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (m *CategoryModule) get(c *gin.Context) {
	category, err := m.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (m *CategoryModule) create(c *gin.Context) {
	var in CategoryInput
	if err := common.BindJSON(c, &in); err != nil {
		common.Fail(c, err)
		return
	}

	category, err := m.service.Create(c.Request.Context(), in)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Category created successfully",
		"data":    category,
	})
}

func (m *CategoryModule) update(c *gin.Context) {
	var patch CategoryPatch
	if err := common.BindJSON(c, &patch); err != nil {
		common.Fail(c, err)
		return
	}

	id := c.Param("id")
	category, err := m.service.Update(c.Request.Context(), id, patch)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Category %s updated successfully", id),
		"data":    category,
	})
}

func (m *CategoryModule) delete(c *gin.Context) {
	id := c.Param("id")
	if err := m.service.Delete(c.Request.Context(), id); err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Category %s deleted successfully", id),
	})
}
