package protocol

import (
	"github.com/zeusync/scenesync/internal/core/scene"
)

// SubjectReady is sent by a context once it can process messages.
const SubjectReady = "ready"

// Input subjects, forwarded from the host's devices.
const (
	SubjectPointerDown = "pointer_down"
	SubjectPointerUp   = "pointer_up"
	SubjectPointerMove = "pointer_move"
	SubjectWheel       = "wheel"
	SubjectKeyDown     = "key_down"
	SubjectKeyUp       = "key_up"
	SubjectTouchStart  = "touch_start"
	SubjectTouchMove   = "touch_move"
	SubjectTouchEnd    = "touch_end"
)

// Physics control subjects.
const (
	SubjectStart       = "start"
	SubjectStop        = "stop"
	SubjectRespawn     = "respawn"
	SubjectSetControls = "set_controls"
)

var (
	inputSubjects = []string{
		SubjectPointerDown, SubjectPointerUp, SubjectPointerMove, SubjectWheel,
		SubjectKeyDown, SubjectKeyUp, SubjectTouchStart, SubjectTouchMove, SubjectTouchEnd,
	}
	controlSubjects = []string{SubjectStart, SubjectStop, SubjectRespawn, SubjectSetControls}
	known           = make(map[string]struct{})
)

func init() {
	for _, group := range [][]string{inputSubjects, controlSubjects, scene.Subjects(), {SubjectReady}} {
		for _, s := range group {
			known[s] = struct{}{}
		}
	}
}

func InputSubjects() []string   { return append([]string(nil), inputSubjects...) }
func ControlSubjects() []string { return append([]string(nil), controlSubjects...) }

// Known reports whether subject belongs to any channel's enumerated set.
func Known(subject string) bool {
	_, ok := known[subject]
	return ok
}

// PointerEvent is the payload of the pointer subjects. Coordinates are
// normalized to [-1, 1] across the viewport.
type PointerEvent struct {
	PointerID int     `json:"pointerId"`
	Button    int     `json:"button"`
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
}

type WheelEvent struct {
	DeltaX float32 `json:"deltaX"`
	DeltaY float32 `json:"deltaY"`
}

type KeyEvent struct {
	Code   string `json:"code"`
	Repeat bool   `json:"repeat,omitempty"`
}

type TouchEvent struct {
	ID int     `json:"id"`
	X  float32 `json:"x"`
	Y  float32 `json:"y"`
}

// Controls is the payload of set_controls. Forward and Right are in [-1, 1].
type Controls struct {
	Forward float32 `json:"forward"`
	Right   float32 `json:"right"`
	Yaw     float32 `json:"yaw"`
	Jump    bool    `json:"jump,omitempty"`
	Sprint  bool    `json:"sprint,omitempty"`
}

// Respawn is the payload of respawn. Without a position the player returns to
// the first spawn point, or the origin when the scene has none.
type Respawn struct {
	Position *[3]float32 `json:"position,omitempty"`
}
