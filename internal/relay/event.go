// Package relay implements the message ingestion-and-broadcast pipeline: an
// inbound chat event is fanned out to every live session immediately and,
// independently, appended to a time-series container. Broadcast and
// persistence are decoupled side effects of the same event; neither gates
// the other.
package relay

// TapEvent is the JSON payload published to the NATS event tap for each
// ingested chat message. Out-of-process consumers (cmd/archiver) replay it
// into the store; the archiver's writer assigns its own storage timestamp.
type TapEvent struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"` // unix seconds at ingestion
}
