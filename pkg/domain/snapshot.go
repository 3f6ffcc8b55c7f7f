package domain

import "time"

// EngineState captures the mutable conversation state of one domain engine.
type EngineState struct {
	Domain      string   `json:"domain"`
	CurrentRule string   `json:"current_rule,omitempty"`
	Query       string   `json:"query,omitempty"`
	Pending     []Group  `json:"pending,omitempty"`
	Results     []Result `json:"results,omitempty"`
}

// Snapshot is the serialisable state of a whole conversation.
// Grammars are not part of it: restoring requires the same domains to be registered.
type Snapshot struct {
	InConversation bool          `json:"in_conversation"`
	Active         string        `json:"active,omitempty"`
	Engines        []EngineState `json:"engines"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Sealed carries an encrypted snapshot written by a sealing store.
	// When set, Active and Engines are empty.
	Sealed string `json:"sealed,omitempty"`
}

// Engine returns the state recorded for a domain.
func (s *Snapshot) Engine(domain string) (EngineState, bool) {
	for _, e := range s.Engines {
		if e.Domain == domain {
			return e, true
		}
	}
	return EngineState{}, false
}
