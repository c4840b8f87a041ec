package models

// ProcessFrameRequest uploads a captured frame for recognition.
type ProcessFrameRequest struct {
	Frame     string  `json:"frame" validate:"required"`
	SessionID *string `json:"session_id" validate:"omitempty,uuid"`
}

// StartCameraRequest selects the camera on the recognition host.
type StartCameraRequest struct {
	CameraIndex int `json:"camera_index" validate:"gte=0,lte=16"`
}

// FaceLocation is a face bounding box in frame pixels.
type FaceLocation struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// DetectedFace is one face in a processed frame.
type DetectedFace struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Confidence  float64      `json:"confidence"`
	IsConfirmed bool         `json:"is_confirmed"`
	Location    FaceLocation `json:"location"`
}

// ProcessFrameResponse carries the detections and any attendance recorded from them.
type ProcessFrameResponse struct {
	DetectedFaces []DetectedFace `json:"detected_faces"`
	TotalFaces    int            `json:"total_faces"`
	Recorded      []string       `json:"recorded"`
}
