package domain

// ConnectionStatus is the backend liveness derived from the most recent
// health probe.
type ConnectionStatus string

const (
	ConnectionConnecting ConnectionStatus = "connecting"
	ConnectionOnline     ConnectionStatus = "online"
	ConnectionOffline    ConnectionStatus = "offline"
)

// LiveState is the state of the push channel's connection state machine.
type LiveState string

const (
	LiveConnecting   LiveState = "connecting"
	LiveConnected    LiveState = "connected"
	LiveDisconnected LiveState = "disconnected"
	LiveClosed       LiveState = "closed"
)
