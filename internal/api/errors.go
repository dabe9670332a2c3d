// internal/api/errors.go
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiError is a domain error carrying an explicit HTTP status. Pipeline
// stages raise it and the handler boundary converts it to the matching
// response; anything else becomes a 500.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return e.message
}

func newAPIError(status int, format string, args ...interface{}) *apiError {
	return &apiError{status: status, message: fmt.Sprintf(format, args...)}
}

// respondError converts an error into its HTTP response. Unrecognized errors
// are the last-resort 500 path and are intentionally coarse.
func respondError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.status, gin.H{"message": apiErr.message})
		return
	}
	c.String(http.StatusInternalServerError, fmt.Sprintf("%v", err))
}
