package models

import "time"

// Location is a lat/lng pair. It is copied by value everywhere; events carry
// their own copy so a later update can never mutate one already published.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Role identifies which side of a trip a connection represents.
type Role string

const (
	RoleDriver Role = "driver"
	RoleUser   Role = "user"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool { return r == RoleDriver || r == RoleUser }

// TripStatus is the lifecycle state of a trip record.
type TripStatus string

const (
	StatusPending      TripStatus = "pending"
	StatusDriverJoined TripStatus = "driver_joined"
	StatusReached      TripStatus = "reached"
	StatusClosed       TripStatus = "closed"
)

// Trip is the durable record owned by the trip store. The tracking core never
// caches its fields beyond the scope of a single operation; the store is the
// single source of truth.
type Trip struct {
	TripID                string
	Status                TripStatus
	DriverID              string
	CustomerID            string
	UserLocation          *Location
	CurrentDriverLocation *Location
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
