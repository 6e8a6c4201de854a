// Package store contains the persistence layer for jobwatch.
package store

import "time"

// LogLine is one stored line of a job's log.
type LogLine struct {
	// Index is the 0-based position of the line in the job's log
	Index     int
	Line      string
	IsError   bool
	CreatedAt time.Time
}

// LogPage is a contiguous window of a job's log.
type LogPage struct {
	// First is the index of Lines[0]
	First int
	// Total is the number of lines in the whole log
	Total int
	Lines []LogLine
}
