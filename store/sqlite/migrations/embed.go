// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package migrations

import "embed"

// FS contains the embedded SQLite migrations for the launch cache.
//
//go:embed *.sql
var FS embed.FS
