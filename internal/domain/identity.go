// Package domain contains core domain types for the TalentLink real-time core.
package domain

import "time"

// Role tags an identity as a student or recruiter account.
type Role string

const (
	RoleStudent   Role = "student"
	RoleRecruiter Role = "recruiter"
)

// Identity references a student or recruiter account. The account itself is
// owned by the external account system; the real-time core only carries the
// ID and role tag.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// PresenceStatus is the payload of an identityStatus event.
type PresenceStatus struct {
	Identity string    `json:"identity"`
	IsOnline bool      `json:"isOnline"`
	At       time.Time `json:"at,omitzero"`
}
