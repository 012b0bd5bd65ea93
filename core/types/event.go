package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Receipt records the outcome of a committed transaction.
type Receipt struct {
	TxHash    []byte   `json:"txHash"`
	Slot      uint64   `json:"slot"`
	Timestamp int64    `json:"timestamp"`
	StateRoot []byte   `json:"stateRoot"`
	Events    []Event  `json:"events"`
	Logs      []string `json:"logs,omitempty"`
}
