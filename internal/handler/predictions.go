package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GaretJax/bmcc/internal/queue"
	"github.com/GaretJax/bmcc/internal/repository"
	"github.com/GaretJax/bmcc/internal/service"
)

type PredictionHandler struct {
	Repo  repository.Repository
	Queue queue.Queue
}

func (h *PredictionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/predictions")
	g.POST("/sweep", h.sweep)
	g.GET("/:id", h.get)
}

// @Summary Get a prediction
// @Tags predictions
// @Param id path string true "prediction id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/predictions/{id} [get]
func (h *PredictionHandler) get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusNotFound, "prediction not found", nil)
		return
	}
	p, err := h.Repo.GetPrediction(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if p == nil {
		Error(c, http.StatusNotFound, "prediction not found", nil)
		return
	}
	Ok(c, p, nil)
}

// @Summary Enqueue a prediction sweep
// @Tags predictions
// @Success 202 {object} apiResponse
// @Router /api/predictions/sweep [post]
func (h *PredictionHandler) sweep(c *gin.Context) {
	jobID, err := h.Queue.Submit(c.Request.Context(), service.JobPredictionSweep, struct{}{})
	if err != nil {
		Error(c, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}
	Respond(c, http.StatusAccepted, gin.H{"job_id": jobID}, nil)
}
