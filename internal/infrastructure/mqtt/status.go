package mqtt

import (
	"encoding/json"
	"time"
)

// Bridge status values published on {prefix}/status.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonShutdown   = "graceful_shutdown"
	reasonUnexpected = "unexpected_disconnect"
)

// BridgeStatus is the retained message on {prefix}/status.
type BridgeStatus struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(status, clientID, reason string, at time.Time) []byte {
	// Marshalling a struct of strings cannot fail
	b, _ := json.Marshal(BridgeStatus{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
	return b
}
