package types

import (
	"time"

	"github.com/google/uuid"
)

// Event types written to the journal.
const (
	EventPose            = "pose"
	EventPluginLocked    = "plugin_locked"
	EventPluginUnlocked  = "plugin_unlocked"
	EventPluginRejected  = "plugin_rejected"
	EventOverlayDecision = "overlay_decision"
	EventHookInstalled   = "hook_installed"
	EventHookFailed      = "hook_failed"
)

// Vec3 is a world-space vector; one unit is one metre.
type Vec3 [3]float32

// IsZero reports whether every component is zero.
func (v Vec3) IsZero() bool {
	return v == Vec3{}
}

// Frame is a position plus orientation.
type Frame struct {
	Position Vec3 `json:"position"`
	Front    Vec3 `json:"front"`
	Top      Vec3 `json:"top"`
}

// IsZero reports whether the frame carries no data.
func (f Frame) IsZero() bool {
	return f.Position.IsZero() && f.Front.IsZero() && f.Top.IsZero()
}

// PoseInfo is one reading published by a telemetry plugin.
type PoseInfo struct {
	Avatar Frame `json:"avatar"`
	Camera Frame `json:"camera"`

	// Context is namespaced by the plugin short name and may contain NUL.
	Context  string `json:"context,omitempty"`
	Identity string `json:"identity,omitempty"`
}

// DecisionInfo records an overlay activation decision.
type DecisionInfo struct {
	Enabled  bool   `json:"enabled"`
	Mode     string `json:"mode"`
	Reason   string `json:"reason"`
	Rule     string `json:"rule,omitempty"`
	Ancestor string `json:"ancestor,omitempty"`
}

// HookInfo records a hook install attempt.
type HookInfo struct {
	Name       string `json:"name"`
	Target     uint64 `json:"target"`
	Trampoline uint64 `json:"trampoline,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Event struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	PID       int       `json:"pid,omitempty"`
	Exe       string    `json:"exe,omitempty"`
	Plugin    string    `json:"plugin,omitempty"`

	Pose     *PoseInfo     `json:"pose,omitempty"`
	Decision *DecisionInfo `json:"decision,omitempty"`
	Hook     *HookInfo     `json:"hook,omitempty"`

	Fields map[string]any `json:"fields,omitempty"`
}

// NewEvent stamps a fresh event of the given type.
func NewEvent(eventType string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

type EventQuery struct {
	Types  []string
	Plugin string
	PID    int
	Since  *time.Time
	Until  *time.Time

	Limit  int
	Offset int
	Asc    bool
}
