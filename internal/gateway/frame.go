package gateway

import (
	"encoding/json"

	"rpworld/backend/internal/session"
)

// Frame types sent by the runtime.
const (
	FrameLogin   = "login"
	FrameLogout  = "logout"
	FrameCommand = "command"
	FrameChat    = "chat"

	// FrameVehicleState carries fuel, health and position of one vehicle.
	FrameVehicleState = "vehicle_state"
)

// Frame types sent to the runtime.
const (
	FrameMessage     = "message"
	FrameDisconnect  = "disconnect"
	FrameBroadcast   = "broadcast"
	FrameLoginResult = "login_result"
	FrameChatResult  = "chat_result"
)

// Frame is one JSON message on the runtime connection, in either direction.
type Frame struct {
	Type       string        `json:"type"`
	RequestID  string        `json:"request_id,omitempty"`
	ActorID    uint          `json:"actor_id,omitempty"`
	Account    string        `json:"account,omitempty"`
	Name       string        `json:"name,omitempty"`
	Text       string        `json:"text,omitempty"`
	Style      session.Style `json:"style,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OK         bool          `json:"ok,omitempty"`
	AdminLevel int           `json:"admin_level,omitempty"`

	VehicleID    uint            `json:"vehicle_id,omitempty"`
	Fuel         int             `json:"fuel,omitempty"`
	EngineHealth int             `json:"engine_health,omitempty"`
	BodyHealth   int             `json:"body_health,omitempty"`
	Position     json.RawMessage `json:"position,omitempty"`
}
