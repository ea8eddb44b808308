package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
	"github.com/GaretJax/bmcc/internal/service"
	"github.com/GaretJax/bmcc/internal/tracking"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	Respond(c, http.StatusOK, data, meta)
}

func Respond(c *gin.Context, status int, data any, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// errorStatus maps domain errors onto HTTP statuses.
func errorStatus(err error) int {
	var resErr *tracking.ResolutionError
	switch {
	case service.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrInvalidPayload), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBackendMismatch),
		errors.As(err, &resErr),
		errors.Is(err, repository.ErrOwnershipChanged),
		errors.Is(err, tracking.ErrNoOwner),
		errors.Is(err, models.ErrLaunchSiteMission),
		errors.Is(err, models.ErrUnknownBackend):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func serviceError(c *gin.Context, err error) {
	Error(c, errorStatus(err), err.Error(), nil)
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
