// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package data embeds the SQL migration files so worker images carry their
// own schema and need no filesystem layout at deploy time.
package data

import "embed"

// Migrations holds the golang-migrate .sql files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsPath is the directory inside [Migrations] passed to the runner.
const MigrationsPath = "migrations"
