// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// UsersAccountTable represents the 'users.account' table
type UsersAccountTable struct {
	Table            string
	ID               string
	Username         string
	IsPremium        string
	MaxContentRating string
	CreatedAt        string
}

// UsersAccount is the schema definition for users.account
var UsersAccount = UsersAccountTable{
	Table:            "users.account",
	ID:               "id",
	Username:         "username",
	IsPremium:        "ispremium",
	MaxContentRating: "maxcontentrating",
	CreatedAt:        "createdat",
}

func (t UsersAccountTable) Columns() []string {
	return []string{t.ID, t.Username, t.IsPremium, t.MaxContentRating, t.CreatedAt}
}
