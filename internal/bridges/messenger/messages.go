package messenger

import (
	"errors"
	"time"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
	"github.com/nerrad567/limitimer-bridge/internal/transport"
)

// ActionFullStatus requests a state republish. It is handled by the bridge
// and never reaches the device.
const ActionFullStatus = "fullStatus"

// defaultSource tags commands whose payload does not name a requester.
const defaultSource = "mqtt"

// CommandMessage is the optional payload of a command topic.
// Topic: {prefix}/command/{device}/{action}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id,omitempty"`

	// Source names the requester. Defaults to "mqtt".
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was written to the device link.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: {prefix}/ack/{device}
type AckMessage struct {
	CommandID string    `json:"command_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	DeviceKey string    `json:"device"`
	Action    string    `json:"action"`
	Source    string    `json:"source,omitempty"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the machine-readable error code, e.g. "NOT_SUPPORTED".
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeNotSupported      = "NOT_SUPPORTED"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidPayload    = "INVALID_PAYLOAD"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// errorCode maps a driver error to an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, limitimer.ErrUnsupportedAction):
		return ErrCodeNotSupported
	case errors.Is(err, limitimer.ErrUnknownAction):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrUnknownDevice):
		return ErrCodeNotConfigured
	case errors.Is(err, limitimer.ErrNotConnected):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// StateMessage is the full device state.
// Topic: {prefix}/state/{device}
// QoS: configured, Retained: yes (except beep messages)
type StateMessage struct {
	limitimer.Snapshot

	// Beep is true only on the message published for a beep pulse.
	Beep bool `json:"beep"`
}

// EventMessage reports a momentary device event.
// Topic: {prefix}/event/{device}/{event}
type EventMessage struct {
	DeviceKey string    `json:"device"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus summarises a device for health consumers.
type HealthStatus string

const (
	// HealthHealthy indicates the device is online and talking.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the device has been quiet past the warning
	// timeout, or the bridge has lost the broker.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the device is unreachable or silent past the
	// error timeout.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline indicates the bridge is not serving the device.
	HealthOffline HealthStatus = "offline"
)

// HealthMessage reports the operational status of one device.
// Topic: {prefix}/health/{device}
// QoS: 1, Retained: yes
type HealthMessage struct {
	DeviceKey     string                 `json:"device"`
	Name          string                 `json:"name"`
	Timestamp     time.Time              `json:"timestamp"`
	Status        HealthStatus           `json:"status"`
	DeviceStatus  string                 `json:"device_status"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Transport     *transport.Stats       `json:"transport,omitempty"`
	Queue         limitimer.QueueStats   `json:"queue"`
	Decoder       limitimer.DecoderStats `json:"decoder"`
	ActionsSent   uint64                 `json:"actions_sent"`
	ActionsFailed uint64                 `json:"actions_failed"`
	Reason        string                 `json:"reason,omitempty"`
}

// healthFor maps a connection status to a health status.
func healthFor(s limitimer.ConnectionStatus) (HealthStatus, string) {
	switch s {
	case limitimer.StatusOnline:
		return HealthHealthy, ""
	case limitimer.StatusWarning:
		return HealthDegraded, "device quiet past warning timeout"
	case limitimer.StatusError:
		return HealthUnhealthy, "device silent past error timeout"
	case limitimer.StatusConnecting:
		return HealthUnhealthy, "device link down"
	default:
		return HealthOffline, "device stopped"
	}
}
