package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/pkg/response"
)

type recognitionService interface {
	Cameras(ctx context.Context) (json.RawMessage, error)
	CameraStatus(ctx context.Context) (json.RawMessage, error)
	StartCamera(ctx context.Context, req models.StartCameraRequest) (json.RawMessage, error)
	StopCamera(ctx context.Context) (json.RawMessage, error)
	Frame(ctx context.Context) (json.RawMessage, error)
	ClearTrackers(ctx context.Context) (json.RawMessage, error)
	ProcessFrame(ctx context.Context, req models.ProcessFrameRequest) (*models.ProcessFrameResponse, error)
}

// RecognitionHandler proxies the face recognition service.
type RecognitionHandler struct {
	service recognitionService
}

// NewRecognitionHandler constructs the handler.
func NewRecognitionHandler(service recognitionService) *RecognitionHandler {
	return &RecognitionHandler{service: service}
}

// Cameras godoc
// @Summary List cameras on the recognition host
// @Tags Recognition
// @Produce json
// @Success 200 {object} object
// @Failure 503 {object} response.Envelope
// @Router /facial-recognition/camera/list [get]
func (h *RecognitionHandler) Cameras(c *gin.Context) {
	h.passthrough(c, h.service.Cameras)
}

// CameraStatus godoc
// @Summary Camera status
// @Tags Recognition
// @Produce json
// @Success 200 {object} object
// @Router /facial-recognition/camera/status [get]
func (h *RecognitionHandler) CameraStatus(c *gin.Context) {
	h.passthrough(c, h.service.CameraStatus)
}

// StartCamera godoc
// @Summary Start a camera
// @Tags Recognition
// @Accept json
// @Produce json
// @Param payload body models.StartCameraRequest false "Camera index"
// @Success 200 {object} object
// @Router /facial-recognition/camera/start [post]
func (h *RecognitionHandler) StartCamera(c *gin.Context) {
	var req models.StartCameraRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req, "invalid camera payload") {
			return
		}
	}
	body, err := h.service.StartCamera(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// StopCamera godoc
// @Summary Stop the camera
// @Tags Recognition
// @Produce json
// @Success 200 {object} object
// @Router /facial-recognition/camera/stop [post]
func (h *RecognitionHandler) StopCamera(c *gin.Context) {
	h.passthrough(c, h.service.StopCamera)
}

// Frame godoc
// @Summary Latest annotated camera frame
// @Tags Recognition
// @Produce json
// @Success 200 {object} object
// @Router /facial-recognition/camera/frame [get]
func (h *RecognitionHandler) Frame(c *gin.Context) {
	h.passthrough(c, h.service.Frame)
}

// ClearTrackers godoc
// @Summary Reset face trackers
// @Tags Recognition
// @Produce json
// @Success 200 {object} object
// @Router /facial-recognition/clear-trackers [post]
func (h *RecognitionHandler) ClearTrackers(c *gin.Context) {
	h.passthrough(c, h.service.ClearTrackers)
}

// ProcessFrame godoc
// @Summary Recognise faces in an uploaded frame
// @Description With session_id, confirmed faces matching enrolled students are recorded as onsite attendance
// @Tags Recognition
// @Accept json
// @Produce json
// @Param payload body models.ProcessFrameRequest true "Base64 frame"
// @Success 200 {object} models.ProcessFrameResponse
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /facial-recognition/process-frame [post]
func (h *RecognitionHandler) ProcessFrame(c *gin.Context) {
	var req models.ProcessFrameRequest
	if !bindJSON(c, &req, "No frame data provided") {
		return
	}
	result, err := h.service.ProcessFrame(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RecognitionHandler) passthrough(c *gin.Context, call func(context.Context) (json.RawMessage, error)) {
	body, err := call(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
