package session

import (
	"time"

	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Status is a point-in-time view of a session for display.
type Status struct {
	ID         string                  `json:"id"`
	Running    bool                    `json:"running"`
	Facing     camera.Facing           `json:"facing"`
	Audio      bool                    `json:"audio"`
	Phase      detect.Phase            `json:"phase"`
	Label      string                  `json:"label,omitempty"`
	Confidence float64                 `json:"confidence,omitempty"`
	Message    string                  `json:"message"`
	Error      string                  `json:"error,omitempty"`
	Scene      *detect.SceneAssessment `json:"scene,omitempty"`

	Ticks           uint64 `json:"ticks"`
	Skipped         uint64 `json:"skipped"`
	InferenceErrors uint64 `json:"inference_errors"`
	DecodeErrors    uint64 `json:"decode_errors"`
	Announcements   uint64 `json:"announcements"`

	UpdatedAt time.Time `json:"updated_at"`
}
