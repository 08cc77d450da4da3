// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid generates the platform's time-ordered identifiers.

It wraps the standard UUID library to emit Version 7 values only: sortable by
creation time, B-tree friendly in PostgreSQL, stored in standard 'uuid'
columns. Every primary key minted by this service goes through here.
*/
package uuid

import "github.com/google/uuid"

// New generates a new UUIDv7 string.
func New() string {
	id, err := uuid.NewV7()

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}

	return id.String()
}
