// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// NotifyNotificationTable represents the 'notify.notification' table
type NotifyNotificationTable struct {
	Table            string
	ID               string
	UserID           string
	NotifyType       string
	SeriesID         string
	LogicalChapterID string
	Metadata         string
	ReadAt           string
	CreatedAt        string
}

// NotifyNotification is the schema definition for notify.notification
var NotifyNotification = NotifyNotificationTable{
	Table:            "notify.notification",
	ID:               "id",
	UserID:           "userid",
	NotifyType:       "notifytype",
	SeriesID:         "seriesid",
	LogicalChapterID: "logicalchapterid",
	Metadata:         "metadata",
	ReadAt:           "readat",
	CreatedAt:        "createdat",
}

func (t NotifyNotificationTable) Columns() []string {
	return []string{
		t.ID, t.UserID, t.NotifyType, t.SeriesID, t.LogicalChapterID,
		t.Metadata, t.ReadAt, t.CreatedAt,
	}
}
