package types

// Event is the flattened form of a module event as buffered by the node and
// served over RPC. Type is the dotted module event name (e.g.
// "market.listing.sold"); Attributes hold the payload as decimal or hex
// strings so the buffer stays encoding-agnostic.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named payload field, or "" when absent.
func (e Event) Attribute(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
