// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package render produces the standalone Leaflet page of an itinerary.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/tourvisual/timedgeo/itinerary"
)

// DefaultTitle is used when no title is given.
const DefaultTitle = "Timed Geo Visual"

const (
	leafletCSS = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
	leafletJS  = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
)

//go:embed templates
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/map.html"))

type pageData struct {
	Title      string
	LeafletCSS string
	LeafletJS  string
	Style      template.CSS
	Script     template.JS
	Events     template.JS
}

// HTML renders events into a self-contained page. The output only depends on
// the arguments.
func HTML(events []itinerary.RenderEvent, title string) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, events, title); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Write renders the page of events into w.
func Write(w io.Writer, events []itinerary.RenderEvent, title string) error {
	if title == "" {
		title = DefaultTitle
	}

	if events == nil {
		events = []itinerary.RenderEvent{}
	}

	// json.Marshal escapes <, > and & so the data cannot close the script.
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}

	style, err := templates.ReadFile("templates/map.css")
	if err != nil {
		return fmt.Errorf("reading stylesheet: %w", err)
	}

	script, err := templates.ReadFile("templates/map.js")
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	err = page.Execute(w, pageData{
		Title:      title,
		LeafletCSS: leafletCSS,
		LeafletJS:  leafletJS,
		Style:      template.CSS(style),
		Script:     template.JS(script),
		Events:     template.JS(data),
	})
	if err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}

	return nil
}
