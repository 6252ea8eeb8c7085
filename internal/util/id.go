package util

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewRunID returns an identifier of a run, sortable by its start time.
func NewRunID(startedAt time.Time) string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return startedAt.UTC().Format("20060102-150405") + "-" + hex.EncodeToString(bytes)
}
