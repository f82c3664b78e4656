// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"fmt"
	"time"
)

// EmergencyContact is owned by the contact store; sessions only read snapshots of it.
type EmergencyContact struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Phone    string `json:"phone" yaml:"phone"`
	Relation string `json:"relation,omitempty" yaml:"relation,omitempty"`
}

// DisplayName falls back to the contact ID when no name is set.
func (c EmergencyContact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Coordinates is a WGS84 position fix.
type Coordinates struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	FixedAt   time.Time `json:"fixedAt,omitempty"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// MapURL renders a map link that recipients can open on any phone.
func (c Coordinates) MapURL() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", c.Latitude, c.Longitude)
}
