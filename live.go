package main

import (
	"net/http"

	"github.com/hyperkishore/home-internet/livefeed"
)

// newLiveFeed starts the hub that fans committed records out to dashboards
// and returns the websocket handler mounted at /api/live.
func newLiveFeed(corsOrigin string) (*livefeed.Hub, http.Handler) {
	hub := livefeed.NewHub()
	return hub, livefeed.Handler(hub, originChecker(corsOrigin))
}

// originChecker applies the CORS policy to websocket upgrades. "*" or an
// empty policy allows any origin; requests without an Origin header are
// not from a browser and are always allowed.
func originChecker(allowed string) func(*http.Request) bool {
	if allowed == "" || allowed == "*" {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}
