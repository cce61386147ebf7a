package model

import "github.com/oklog/ulid/v2"

// NewID returns a fresh registration identifier. ULIDs sort by creation time,
// which keeps registration streams for the same job ordered in logs.
func NewID() string {
	return ulid.Make().String()
}
