package handlers

import (
	"net/http"

	"mediaFetcher/api/dto"
)

type PoolStats interface {
	Active() int64
	Queued() int64
}

func Health(stats PoolStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, dto.HealthResponse{
			Status: "ok",
			Active: stats.Active(),
			Queued: stats.Queued(),
		})
	}
}

func Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the media download API",
	})
}
