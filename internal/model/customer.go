package model

import "time"

// BlockedCustomer is a blocklist entry.
type BlockedCustomer struct {
	CustomerID string    `json:"customerId"`
	BlockedAt  time.Time `json:"blockedAt"`
	Reason     string    `json:"reason,omitempty"`
	BlockedBy  string    `json:"blockedBy,omitempty"`
}
