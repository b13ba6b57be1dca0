package domain

import "time"

// ConnectionTTL bounds how long a subscription record may outlive its
// transport session.
const ConnectionTTL = 24 * time.Hour

// Connection is an ephemeral subscription record tying a transport
// connection to a game within a tenant. Records self-expire.
type Connection struct {
	ID          string    `json:"connection_id"`
	GameID      string    `json:"game_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// AuthContext is the verified identity attached to every request. The core
// trusts it completely and never re-derives tenant from request bodies.
type AuthContext struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}
