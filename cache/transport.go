// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/spf13/cast"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// query parameter keys
const (
	limitParam  = "limit"
	offsetParam = "offset"
)

// ErrorHeaderKey carries the error message on failed responses.
const ErrorHeaderKey = "X-Launchcache-Error"

const contentTypeJSON = "application/json"

type launchesRequest struct {
	limit  int
	offset int
	self   *url.URL
}

type launchesResponse struct {
	result Result
	self   *url.URL
}

type errorBody struct {
	Detail string `json:"detail"`
}

func launchesRequestDecoder(config Config) kithttp.DecodeRequestFunc {
	return func(ctx context.Context, r *http.Request) (interface{}, error) {
		query := r.URL.Query()
		limit, err := intParam(query, limitParam, config.DefaultLimit)
		if err != nil {
			return nil, err
		}
		offset, err := intParam(query, offsetParam, 0)
		if err != nil {
			return nil, err
		}

		sallust.Get(ctx).Debug("launches request",
			zap.String("method", r.Method), zap.Int(limitParam, limit), zap.Int(offsetParam, offset))

		self := *r.URL
		return &launchesRequest{
			limit:  limit,
			offset: offset,
			self:   &self,
		}, nil
	}
}

func intParam(query url.Values, name string, fallback int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return fallback, nil
	}
	if strings.HasPrefix(raw, "-") {
		return 0, &BadRequestErr{Message: name + " must not be negative"}
	}
	if strings.TrimLeft(raw, "0123456789") != "" {
		return 0, &BadRequestErr{Message: name + " must be an integer"}
	}
	// cast reads a leading 0 as octal
	digits := strings.TrimLeft(raw, "0")
	if digits == "" {
		return 0, nil
	}
	v, err := cast.ToIntE(digits)
	if err != nil {
		return 0, &BadRequestErr{Message: name + " must be an integer"}
	}
	return v, nil
}

func encodeLaunchesResponse(ctx context.Context, rw http.ResponseWriter, response interface{}) error {
	r, ok := response.(*launchesResponse)
	if !ok {
		return ErrCasting
	}
	return encodeJSON(rw, http.StatusOK, NewEnvelope(r.result, r.self))
}

func encodeJSON(rw http.ResponseWriter, code int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rw.Header().Set("Content-Type", contentTypeJSON)
	rw.WriteHeader(code)
	_, err = rw.Write(data)
	return err
}

// EncodeError writes err as a JSON detail body, taking the status code from
// StatusCoder errors in the chain.
func EncodeError(ctx context.Context, err error, w http.ResponseWriter) {
	w.Header().Set(ErrorHeaderKey, err.Error())

	var headerer kithttp.Headerer
	if errors.As(err, &headerer) {
		for k, values := range headerer.Headers() {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
	}

	code := http.StatusInternalServerError
	var sc kithttp.StatusCoder
	if errors.As(err, &sc) {
		code = sc.StatusCode()
	}

	detail := err.Error()
	if code == http.StatusInternalServerError {
		detail = http.StatusText(code)
	}
	encodeJSON(w, code, errorBody{Detail: detail})
}
