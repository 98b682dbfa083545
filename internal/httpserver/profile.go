package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront/internal/domain"
)

type profileRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	UpdateContact(ctx context.Context, id, phone, address string) error
}

func getProfileHandler(repo profileRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		prof, err := repo.GetByID(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, prof)
	}
}

func updateProfileHandler(repo profileRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Phone   string `json:"phone"`
			Address string `json:"address"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid body")
			return
		}
		if err := repo.UpdateContact(c.Request.Context(), userID(c), req.Phone, req.Address); err != nil {
			respondError(c, err)
			return
		}
		prof, err := repo.GetByID(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, prof)
	}
}
