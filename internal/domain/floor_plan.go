package domain

import "time"

type FloorPlan struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Seats       []Seat    `json:"seats"`
	CreatedAt   time.Time `json:"createdAt"`
	Version     int32     `json:"-"`
}
