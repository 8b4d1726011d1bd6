package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	ownerdomain "github.com/entforge/entforge/internal/owner/domain"
)

type createOwnerRequest struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

func (s *Server) CreateOwner(c *gin.Context) {
	var req createOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ownerSvc.Create(c.Request.Context(), ownerdomain.CreateRequest{
		Key:         strings.TrimSpace(req.Key),
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListOwners(c *gin.Context) {
	resp, err := s.ownerSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOwnerByKey(c *gin.Context) {
	key := strings.TrimSpace(c.Param("owner_key"))
	resp, err := s.ownerSvc.GetByKey(c.Request.Context(), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
