package util

import (
	"github.com/gin-gonic/gin"
)

// Gin context keys shared by middleware and handlers
const (
	ContextKeyRequestID = "request_id"
	ContextKeyViewerID  = "user_id"
)

// GetViewerID returns the authenticated viewer, if any. It never writes a
// response; routes that require a viewer sit behind RequireViewer.
func GetViewerID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyViewerID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetRequestID returns the request id set by the request id middleware
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
