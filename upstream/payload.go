// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xmidt-org/launchcache/model"
)

// page is the upstream list response. Only results is required.
type page struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []wireLaunch `json:"results" validate:"required,dive"`
}

type wireLaunch struct {
	ID       string         `json:"id" validate:"required"`
	Name     string         `json:"name"`
	Net      time.Time      `json:"net" validate:"required"`
	Status   model.Status   `json:"status"`
	Provider model.Provider `json:"launch_service_provider"`
	Vehicle  model.Vehicle  `json:"rocket"`
	Mission  *model.Mission `json:"mission"`

	// Older API versions send the image as a bare URL string.
	Image json.RawMessage `json:"image"`
}

func (w wireLaunch) launch() (model.Launch, error) {
	l := model.Launch{
		ID:       w.ID,
		Name:     w.Name,
		Net:      w.Net.UTC(),
		Status:   w.Status,
		Provider: w.Provider,
		Vehicle:  w.Vehicle,
		Mission:  w.Mission,
	}
	img, err := decodeImage(w.Image)
	if err != nil {
		return model.Launch{}, err
	}
	l.Image = img
	return l, nil
}

func decodeImage(raw json.RawMessage) (*model.Image, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var url string
		if err := json.Unmarshal(raw, &url); err != nil {
			return nil, err
		}
		if url == "" {
			return nil, nil
		}
		return &model.Image{URL: url}, nil
	}
	var img model.Image
	if err := json.Unmarshal(raw, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// decodePage parses and validates an upstream body into launches.
func decodePage(body []byte, validate *validator.Validate) ([]model.Launch, error) {
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if err := validate.Struct(p); err != nil {
		return nil, err
	}
	launches := make([]model.Launch, 0, len(p.Results))
	for _, w := range p.Results {
		l, err := w.launch()
		if err != nil {
			return nil, err
		}
		launches = append(launches, l)
	}
	return launches, nil
}
