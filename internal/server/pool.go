package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	pooldomain "github.com/entforge/entforge/internal/pool/domain"
)

func (s *Server) ListPools(c *gin.Context) {
	resp, err := s.poolSvc.ListPools(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPoolByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.poolSvc.GetPool(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createConsumerRequest struct {
	Name string `json:"name"`
}

func (s *Server) CreateConsumer(c *gin.Context) {
	var req createConsumerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, newValidationError("name", "invalid_name", "invalid name"))
		return
	}

	resp, err := s.poolSvc.CreateConsumer(c.Request.Context(), pooldomain.CreateConsumerRequest{
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type consumeRequest struct {
	PoolID     string `json:"pool_id"`
	ConsumerID string `json:"consumer_id"`
	Quantity   int64  `json:"quantity"`
}

func (s *Server) ConsumePool(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	resp, err := s.poolSvc.Consume(c.Request.Context(), pooldomain.ConsumeRequest{
		PoolID:     strings.TrimSpace(req.PoolID),
		ConsumerID: strings.TrimSpace(req.ConsumerID),
		Quantity:   req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListEntitlements(c *gin.Context) {
	consumerID := strings.TrimSpace(c.Param("id"))
	resp, err := s.poolSvc.ListEntitlements(c.Request.Context(), consumerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEntitlementByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.poolSvc.GetEntitlement(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RevokeEntitlement(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.poolSvc.Revoke(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"revoked": true}})
}
