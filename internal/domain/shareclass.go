package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ShareClass represents a fund-style client entity with its own currency
// denomination and external-API credentials. ShareClasses are created
// out-of-band (seed/admin tooling) and are read-only to the sync pipeline.
type ShareClass struct {
	ID           uuid.UUID
	Name         string
	Currency     string // denomination currency, e.g. "USD"
	ClientID     string
	ClientSecret string
	Audience     string // optional OAuth audience
}

// HasCredentials reports whether the share class carries a usable
// prime-broker credential pair.
func (s *ShareClass) HasCredentials() bool {
	return strings.TrimSpace(s.ClientID) != "" && strings.TrimSpace(s.ClientSecret) != ""
}

// Counterparty represents a known external venue (exchange or custodian)
// that trading and triparty accounts can be linked to.
type Counterparty struct {
	ID   uuid.UUID
	Name string
}
