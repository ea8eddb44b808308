package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GaretJax/bmcc/internal/models"
	"github.com/GaretJax/bmcc/internal/repository"
	"github.com/GaretJax/bmcc/internal/service"
)

type MissionHandler struct {
	Missions    *service.MissionService
	Predictions *service.PredictionService
}

func (h *MissionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/missions/:mission_id")
	g.PUT("/parameters", h.putParameters)
	g.POST("/launch-sites/:site_id/predictions", h.requestPrediction)
	g.POST("/assets/:asset_id/launched", h.launched)
	g.POST("/assets/:asset_id/landed", h.landed)
}

type missionParametersRequest struct {
	AscentRate    *float64 `json:"ascent_rate"`
	BurstAltitude *float64 `json:"burst_altitude" binding:"omitempty,gt=0"`
	DescentRate   *float64 `json:"descent_rate"`
}

// @Summary Replace the mission flight profile
// @Tags missions
// @Accept json
// @Param mission_id path string true "mission id"
// @Param body body missionParametersRequest true "flight profile"
// @Success 200 {object} apiResponse
// @Router /api/missions/{mission_id}/parameters [put]
func (h *MissionHandler) putParameters(c *gin.Context) {
	missionID, ok := uuidParam(c, "mission_id")
	if !ok {
		Error(c, http.StatusNotFound, service.ErrMissionNotFound.Error(), nil)
		return
	}
	var req missionParametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	mission, err := h.Missions.UpdateParameters(c.Request.Context(), missionID, repository.MissionParameters{
		AscentRate:    req.AscentRate,
		BurstAltitude: req.BurstAltitude,
		DescentRate:   req.DescentRate,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, mission, nil)
}

type predictionRequest struct {
	Parameters map[string]any `json:"parameters"`
}

// @Summary Request a prediction for a launch site
// @Description Returns 202 with the queued prediction, or 200 with submitted=false when the mission flight profile is incomplete.
// @Tags predictions
// @Accept json
// @Param mission_id path string true "mission id"
// @Param site_id path string true "launch site id"
// @Param body body predictionRequest false "parameter overrides"
// @Success 200 {object} apiResponse
// @Success 202 {object} apiResponse
// @Router /api/missions/{mission_id}/launch-sites/{site_id}/predictions [post]
func (h *MissionHandler) requestPrediction(c *gin.Context) {
	missionID, ok := uuidParam(c, "mission_id")
	if !ok {
		Error(c, http.StatusNotFound, service.ErrMissionNotFound.Error(), nil)
		return
	}
	siteID, ok := uuidParam(c, "site_id")
	if !ok {
		Error(c, http.StatusNotFound, models.ErrLaunchSiteNotFound.Error(), nil)
		return
	}
	var req predictionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	p, err := h.Predictions.RequestForLaunchSite(c.Request.Context(), missionID, siteID, req.Parameters)
	if err != nil {
		serviceError(c, err)
		return
	}
	if p == nil {
		Ok(c, gin.H{"submitted": false}, nil)
		return
	}
	Respond(c, http.StatusAccepted, p, map[string]any{"submitted": true})
}

type launchedRequest struct {
	LaunchSiteID *uuid.UUID `json:"launch_site_id"`
	LaunchedAt   *time.Time `json:"launched_at"`
}

// @Summary Mark an asset launched
// @Tags missions
// @Accept json
// @Param mission_id path string true "mission id"
// @Param asset_id path string true "asset id"
// @Param body body launchedRequest false "launch details"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/missions/{mission_id}/assets/{asset_id}/launched [post]
func (h *MissionHandler) launched(c *gin.Context) {
	missionID, assetID, ok := h.assetParams(c)
	if !ok {
		return
	}
	var req launchedRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	asset, err := h.Missions.MarkLaunched(c.Request.Context(), missionID, assetID, req.LaunchSiteID, req.LaunchedAt)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, asset, nil)
}

type landedRequest struct {
	LandedAt  *time.Time `json:"landed_at"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
}

// @Summary Mark an asset landed
// @Tags missions
// @Accept json
// @Param mission_id path string true "mission id"
// @Param asset_id path string true "asset id"
// @Param body body landedRequest false "landing details"
// @Success 200 {object} apiResponse
// @Router /api/missions/{mission_id}/assets/{asset_id}/landed [post]
func (h *MissionHandler) landed(c *gin.Context) {
	missionID, assetID, ok := h.assetParams(c)
	if !ok {
		return
	}
	var req landedRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		Error(c, http.StatusBadRequest, "latitude and longitude go together", nil)
		return
	}
	var location *models.Point
	if req.Latitude != nil {
		pt := models.NewPoint(*req.Longitude, *req.Latitude)
		location = &pt
	}
	asset, err := h.Missions.MarkLanded(c.Request.Context(), missionID, assetID, req.LandedAt, location)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, asset, nil)
}

func (h *MissionHandler) assetParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	missionID, ok := uuidParam(c, "mission_id")
	if !ok {
		Error(c, http.StatusNotFound, service.ErrMissionNotFound.Error(), nil)
		return uuid.Nil, uuid.Nil, false
	}
	assetID, ok := uuidParam(c, "asset_id")
	if !ok {
		Error(c, http.StatusNotFound, service.ErrAssetNotFound.Error(), nil)
		return uuid.Nil, uuid.Nil, false
	}
	return missionID, assetID, true
}
