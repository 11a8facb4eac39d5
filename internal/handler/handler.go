package handler

import (
	"errors"
	"net/http"

	"p2p/internal/middleware"
	"p2p/internal/model"
	"p2p/pkg/apperror"
	"p2p/pkg/pagination"
	"p2p/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError writes err with the status and code of its kind. Unexpected errors are
// attached to the context for the request logger and reported without detail.
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		_ = c.Error(err)
		c.JSON(status, response.ErrorWithCode(status, string(kind), "Internal server error"))
		return
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	var appErr *apperror.Error
	msg := err.Error()
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	c.JSON(status, response.ErrorWithCode(status, string(kind), msg))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperror.KindValidation), msg))
}

// currentActor returns the authenticated caller or aborts with 401.
func currentActor(c *gin.Context) (model.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthorized"))
	}
	return a, ok
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}

func paging(c *gin.Context) pagination.Params {
	return pagination.Parse(c)
}
