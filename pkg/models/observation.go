package models

import "time"

// Observation is a single timestamped price reading for a market category.
// The store owns the canonical record; everything downstream works on copies.
type Observation struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Price      string    `json:"price"` // decimal encoded as string, never float
	ObservedAt time.Time `json:"observedAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
