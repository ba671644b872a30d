// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

// Package server serves a rendered itinerary over HTTP.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tourvisual/timedgeo/itinerary"
	"github.com/tourvisual/timedgeo/render"
)

type Server struct {
	events []itinerary.RenderEvent
	title  string
	page   string
}

// New renders the page once; events are served as given.
func New(events []itinerary.RenderEvent, title string) (*Server, error) {
	if events == nil {
		events = []itinerary.RenderEvent{}
	}

	page, err := render.HTML(events, title)
	if err != nil {
		return nil, err
	}

	return &Server{events: events, title: title, page: page}, nil
}

// Router returns the routes of s.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/", s.mapView)
	r.GET("/api/events", s.listEvents)
	r.GET("/api/events/:index", s.getEvent)

	return r
}

func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *Server) mapView(ctx *gin.Context) {
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", []byte(s.page))
}

func (s *Server) listEvents(ctx *gin.Context) {
	markers := 0

	for _, e := range s.events {
		if e.HasMarker() {
			markers++
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"title":   s.title,
		"count":   len(s.events),
		"markers": markers,
		"events":  s.events,
	})
}

func (s *Server) getEvent(ctx *gin.Context) {
	var uri struct {
		Index int `uri:"index" binding:"min=0"`
	}

	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non negative integer"})

		return
	}

	if uri.Index >= len(s.events) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "event not found"})

		return
	}

	ctx.JSON(http.StatusOK, s.events[uri.Index])
}
