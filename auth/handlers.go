package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inkwell/apperror"
	"inkwell/common"
	"inkwell/models"
)

type AuthModule struct {
	service *Service
	gate    *Gate
}

func NewAuthModule(service *Service, gate *Gate) *AuthModule {
	return &AuthModule{service: service, gate: gate}
}

func (a *AuthModule) RegisterRoutes(router gin.IRouter) {
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", a.register)
		authGroup.POST("/login", a.login)
		authGroup.GET("/me", a.gate.RequireAuth(), a.me)
	}
}

// publicUser is the only user shape auth endpoints return.
func publicUser(u *models.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"createdAt": u.CreatedAt,
	}
}

func (a *AuthModule) register(c *gin.Context) {
	var in RegisterInput
	if err := common.BindJSON(c, &in); err != nil {
		common.Fail(c, err)
		return
	}

	session, err := a.service.Register(c.Request.Context(), in)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"data":    publicUser(session.User),
		"token":   session.Token,
	})
}

func (a *AuthModule) login(c *gin.Context) {
	var in LoginInput
	if err := common.BindJSON(c, &in); err != nil {
		common.Fail(c, err)
		return
	}

	session, err := a.service.Login(c.Request.Context(), in)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"data":    publicUser(session.User),
		"token":   session.Token,
	})
}

func (a *AuthModule) me(c *gin.Context) {
	id := Current(c)
	if id == nil {
		common.Fail(c, apperror.Authentication(apperror.ReasonMissingToken, "Access token required"))
		return
	}

	user, err := a.service.Lookup(c.Request.Context(), id.ID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}
