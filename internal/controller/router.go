package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playbridge/server/pkg/wsrouter"
)

func (c *controller) Mux() http.Handler {
	r := chi.NewRouter()

	r.Use(c.requestIdMw)

	r.HandleFunc("/ws/session", c.hostSession)
	r.HandleFunc("/ws/embed/{session-id}", c.embedSession)

	r.Get("/api/sessions", c.listSessions)

	return r
}

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Handle("ALIVE", c.handleAlive)

	// source
	mux.Handle("LOAD_SOURCE", c.handleLoadSource)

	// playback
	mux.Handle("PLAY", c.handlePlay)
	mux.Handle("PAUSE", c.handlePause)
	mux.Handle("SEEK_TO", c.handleSeekTo)
	mux.Handle("SET_VOLUME", c.handleSetVolume)
	mux.Handle("SET_MUTED", c.handleSetMuted)
	mux.Handle("SET_RATE", c.handleSetRate)

	// queries
	mux.Handle("GET_TITLE", c.handleGetTitle)
	mux.Handle("GET_STATE", c.handleGetState)

	return mux
}
