package app

import (
	"encoding/json"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

type MediaReadyEvent struct {
	MediaID int  `json:"mediaId"`
	Stale   bool `json:"stale,omitempty"`
}

type ListUpdatedEvent struct {
	Source string        `json:"source"` // local | push | pull | resolve
	Entry  *ListEntryDTO `json:"entry,omitempty"`
	Pull   *PullReport   `json:"pull,omitempty"`
}

type AuthRequiredEvent struct {
	Reason string `json:"reason"`
}

type SyncErrorEvent struct {
	LocalID  int64  `json:"localId"`
	MediaID  int    `json:"mediaId"`
	Kind     string `json:"kind"`
	Attempts int    `json:"attempts"`
	Message  string `json:"message"`
}

func publish(bus ports.EventBus, topic string, payload any) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}
