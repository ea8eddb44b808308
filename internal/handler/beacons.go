package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GaretJax/bmcc/internal/service"
)

type BeaconHandler struct {
	Missions *service.MissionService
}

func (h *BeaconHandler) Register(r *gin.Engine) {
	g := r.Group("/api/beacons/:beacon_id")
	g.POST("/messages", h.queueMessage)
	g.GET("/backend", h.backend)
	g.GET("/pings/latest", h.latestPing)
}

// @Summary Queue a message for an OwnTracks beacon
// @Description The message is delivered in the response to the beacon's next report.
// @Tags beacons
// @Accept json
// @Param beacon_id path string true "beacon id"
// @Success 201 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/beacons/{beacon_id}/messages [post]
func (h *BeaconHandler) queueMessage(c *gin.Context) {
	beaconID, ok := uuidParam(c, "beacon_id")
	if !ok {
		Error(c, http.StatusNotFound, service.ErrBeaconNotFound.Error(), nil)
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable body", nil)
		return
	}
	msg, err := h.Missions.QueueMessage(c.Request.Context(), beaconID, raw)
	if err != nil {
		serviceError(c, err)
		return
	}
	Respond(c, http.StatusCreated, msg, nil)
}

// @Summary Beacon backend diagnostics
// @Tags beacons
// @Param beacon_id path string true "beacon id"
// @Success 200 {object} apiResponse
// @Router /api/beacons/{beacon_id}/backend [get]
func (h *BeaconHandler) backend(c *gin.Context) {
	beaconID, ok := uuidParam(c, "beacon_id")
	if !ok {
		Error(c, http.StatusNotFound, service.ErrBeaconNotFound.Error(), nil)
		return
	}
	status, err := h.Missions.BackendStatus(c.Request.Context(), beaconID)
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, status, nil)
}

// @Summary Latest ping of a beacon
// @Tags beacons
// @Param beacon_id path string true "beacon id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/beacons/{beacon_id}/pings/latest [get]
func (h *BeaconHandler) latestPing(c *gin.Context) {
	beaconID, ok := uuidParam(c, "beacon_id")
	if !ok {
		Error(c, http.StatusNotFound, service.ErrBeaconNotFound.Error(), nil)
		return
	}
	ping, err := h.Missions.LatestPing(c.Request.Context(), beaconID)
	if err != nil {
		serviceError(c, err)
		return
	}
	if ping == nil {
		Error(c, http.StatusNotFound, "no pings yet", nil)
		return
	}
	Ok(c, ping, nil)
}
