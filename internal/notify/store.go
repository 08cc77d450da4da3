// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import "context"

// Store defines the data access contract for notifications.
type Store interface {
	// CreateBatch inserts notifications, silently skipping any that already
	// exist on the (user, logical chapter, type) natural key.
	//
	// Returns:
	//   - int: How many rows were actually inserted.
	CreateBatch(ctx context.Context, notifications []Notification) (int, error)
}
