package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/service"
	"github.com/GaretJax/bmcc/internal/tracking"
)

// TrackingHandler serves the device-facing endpoints. Their bodies follow
// the device protocols rather than the API envelope.
type TrackingHandler struct {
	Ingest *service.IngestService
	Logger *zap.Logger
}

func (h *TrackingHandler) Register(r *gin.Engine) {
	g := r.Group("/tracking")
	g.POST("/owntracks/", h.ownTracks)
	g.POST("/api/:beacon_id/ping/", h.apiPing)
}

// @Summary OwnTracks HTTP webhook
// @Description Stores a location report and answers with the messages queued for the device. Reports that are not locations, or from unknown beacons, get an empty 200.
// @Tags tracking
// @Accept json
// @Produce json
// @Param X-Limit-U header string false "OwnTracks user"
// @Param X-Limit-D header string false "OwnTracks device"
// @Success 200 {array} object
// @Failure 400 {object} map[string]string
// @Router /tracking/owntracks/ [post]
func (h *TrackingHandler) ownTracks(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	res, err := h.Ingest.HandleOwnTracks(c.Request.Context(), raw, c.GetHeader("X-Limit-U"), c.GetHeader("X-Limit-D"))
	if err != nil {
		status := ownTracksStatus(err)
		if status == http.StatusInternalServerError {
			h.logger().Error("owntracks ingest failed", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if res.Ping == nil && len(res.Outbound) == 0 {
		c.Status(http.StatusOK)
		return
	}

	body, err := json.Marshal(res.Outbound)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode response"})
		return
	}
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	if _, err := c.Writer.Write(body); err != nil {
		h.logger().Warn("owntracks response not delivered", zap.Error(err))
		return
	}
	if err := h.Ingest.ConfirmDelivery(c.Request.Context(), res.Queued); err != nil {
		h.logger().Warn("failed to confirm outbound delivery", zap.Error(err))
	}
}

// @Summary Direct beacon report
// @Tags tracking
// @Accept json
// @Produce json
// @Param beacon_id path string true "beacon id"
// @Param body body tracking.APIPing true "position"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tracking/api/{beacon_id}/ping/ [post]
func (h *TrackingHandler) apiPing(c *gin.Context) {
	beaconID, ok := uuidParam(c, "beacon_id")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrBeaconNotFound.Error()})
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	ping, err := h.Ingest.HandleDirectPing(c.Request.Context(), beaconID, raw)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger().Error("api ping failed", zap.String("beacon_id", beaconID.String()), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "ping": ping.ID})
}

// ownTracksStatus maps webhook failures. The device can only fix a malformed
// report; anything else is a server-side failure.
func ownTracksStatus(err error) int {
	if errors.Is(err, tracking.ErrInvalidPayload) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *TrackingHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
