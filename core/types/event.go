package types

// Event is the structured record emitted whenever a sale changes state.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
