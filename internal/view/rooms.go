package view

import "time"

//go:generate templ generate

// RoomRow is one line of the rooms table
type RoomRow struct {
	Key         string
	Connections int
	Users       int
}

// RoomsPageData is everything the rooms page renders
type RoomsPageData struct {
	Rooms       []RoomRow
	Connections int
	GeneratedAt time.Time
}
