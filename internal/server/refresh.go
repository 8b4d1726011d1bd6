package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// RefreshOwner reconciles one owner against upstream. With ?async=true the
// call returns immediately with a job in state CREATED; otherwise it blocks
// until the run finishes and returns the full result.
func (s *Server) RefreshOwner(c *gin.Context) {
	ownerKey := strings.TrimSpace(c.Param("owner_key"))

	force, err := parseBoolQuery(c, "force")
	if err != nil {
		AbortWithError(c, newValidationError("force", "invalid_force", "invalid force"))
		return
	}
	async, err := parseBoolQuery(c, "async")
	if err != nil {
		AbortWithError(c, newValidationError("async", "invalid_async", "invalid async"))
		return
	}

	if async {
		job, err := s.jobs.Submit(c.Request.Context(), ownerKey, force)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"data": job})
		return
	}

	result, err := s.refreshSvc.Refresh(c.Request.Context(), ownerKey, force)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetJobByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}

func parseBoolQuery(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
