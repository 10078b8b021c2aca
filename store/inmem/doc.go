// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

/*
Package inmem implements the store DAO interface. This implementation is meant
to help get an instance of launchcache up and running quickly without a file on
disk. Nothing survives a restart, so it is recommended for tests and local
development only.
*/
package inmem
