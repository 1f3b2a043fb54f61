package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when config leaves topic_prefix empty.
const DefaultTopicPrefix = "limitimer"

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers keeps topic naming consistent across publishers,
// subscribers, and tests.
//
// Layout, with {p} the configured prefix:
//
//	{p}/status                          bridge online/offline (retained, LWT)
//	{p}/command/{device}/{action}       inbound action requests
//	{p}/state/{device}                  full device state (retained)
//	{p}/event/{device}/{event}          transient events such as beep
//	{p}/ack/{device}                    command acknowledgements
//	{p}/health/{device}                 periodic device health (retained)
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, trimming stray slashes.
// An empty prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// Status returns the bridge status topic.
//
// Example: limitimer/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

// Command returns the topic for an action request to a device.
//
// Example: limitimer/command/stage-timer/startStop
func (t Topics) Command(deviceKey, action string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.Prefix, deviceKey, action)
}

// State returns the retained full-state topic for a device.
//
// Example: limitimer/state/stage-timer
func (t Topics) State(deviceKey string) string {
	return fmt.Sprintf("%s/state/%s", t.Prefix, deviceKey)
}

// Event returns the topic for a transient device event.
//
// Example: limitimer/event/stage-timer/beep
func (t Topics) Event(deviceKey, event string) string {
	return fmt.Sprintf("%s/event/%s/%s", t.Prefix, deviceKey, event)
}

// Ack returns the command acknowledgement topic for a device.
//
// Example: limitimer/ack/stage-timer
func (t Topics) Ack(deviceKey string) string {
	return fmt.Sprintf("%s/ack/%s", t.Prefix, deviceKey)
}

// Health returns the retained health topic for a device.
//
// Example: limitimer/health/stage-timer
func (t Topics) Health(deviceKey string) string {
	return fmt.Sprintf("%s/health/%s", t.Prefix, deviceKey)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: limitimer/command/+/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/+", t.Prefix)
}

// AllStates returns a pattern matching every device state topic.
//
// Pattern: limitimer/state/+
func (t Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+", t.Prefix)
}

// All returns a pattern matching every topic under the prefix.
// Use with caution - this receives ALL bridge traffic.
//
// Pattern: limitimer/#
func (t Topics) All() string {
	return t.Prefix + "/#"
}

// ParseCommand splits a command topic into device key and action.
// ok is false when topic is not {prefix}/command/{device}/{action}.
func (t Topics) ParseCommand(topic string) (deviceKey, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
