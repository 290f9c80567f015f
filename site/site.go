package site

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"inkwell/apperror"
	"inkwell/common"
	"inkwell/models"
)

// SiteModule serves the public, non-API surface: the banner and a sitemap
// of published content.
type SiteModule struct {
	db      *gorm.DB
	baseURL string
}

func NewSiteModule(db *gorm.DB, baseURL string) *SiteModule {
	return &SiteModule{db: db, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *SiteModule) RegisterRoutes(router gin.IRouter) {
	router.GET("/", s.index)
	router.GET("/sitemap.xml", s.sitemap)
}

func (s *SiteModule) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Inkwell blog API",
		"docs":    "/api",
		"health":  "/api/health",
	})
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// buildSitemap lists the home page, every category and every published
// post. Drafts never appear.
func (s *SiteModule) buildSitemap(ctx context.Context) ([]byte, error) {
	db := s.db.WithContext(ctx)
	set := urlSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: s.baseURL + "/", ChangeFreq: "daily", Priority: "1.0"},
		},
	}

	var categories []models.Category
	if err := db.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	for _, cat := range categories {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.baseURL + "/api/categories/" + cat.Slug,
			LastMod:    cat.UpdatedAt.UTC().Format(time.RFC3339),
			ChangeFreq: "weekly",
			Priority:   "0.7",
		})
	}

	var posts []models.Post
	err := db.Select("id", "updated_at").
		Where("is_published = ?", true).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	for _, post := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        s.baseURL + "/api/posts/" + post.ID,
			LastMod:    post.UpdatedAt.UTC().Format(time.RFC3339),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func (s *SiteModule) sitemap(c *gin.Context) {
	body, err := s.buildSitemap(c.Request.Context())
	if err != nil {
		common.Fail(c, apperror.Internal("Failed to build sitemap", err))
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", body)
}
