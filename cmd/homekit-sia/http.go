package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	sia "github.com/caarlos0/homekit-sia"
)

type stateReader interface {
	State(id sia.ZoneID) (sia.ZoneState, error)
	States() []sia.ZoneState
}

// zonesHandler serves every zone state, or a single one when both account
// and zone are given as query parameters.
func zonesHandler(registry stateReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		account := r.URL.Query().Get("account")
		zone := r.URL.Query().Get("zone")
		if account == "" && zone == "" {
			writeJSON(w, registry.States())
			return
		}

		n, err := strconv.Atoi(zone)
		if account == "" || err != nil {
			http.Error(w, "account and numeric zone are required", http.StatusBadRequest)
			return
		}
		state, err := registry.State(sia.ZoneID{Account: account, Zone: n})
		if errors.Is(err, sia.ErrUnknownZone) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, state)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("could not write response", "err", err)
	}
}
