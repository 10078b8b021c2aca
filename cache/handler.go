// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
)

type Handler http.Handler

func newGetLaunchesHandler(l Lister, config Config) Handler {
	return kithttp.NewServer(
		newGetLaunchesEndpoint(l, config),
		launchesRequestDecoder(config),
		encodeLaunchesResponse,
		kithttp.ServerErrorEncoder(EncodeError),
	)
}

func newRefreshLaunchesHandler(l Lister, config Config) Handler {
	return kithttp.NewServer(
		newRefreshLaunchesEndpoint(l, config),
		launchesRequestDecoder(config),
		encodeLaunchesResponse,
		kithttp.ServerErrorEncoder(EncodeError),
	)
}
