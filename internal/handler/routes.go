package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers the API routes. events serves /events when not nil;
// metricsPath serves Prometheus metrics when not empty.
func NewRouter(h *TrustHandler, events http.Handler, metricsPath string) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()

	// Peers
	api.HandleFunc("/peers/connected", h.GetConnectedPeers).Methods(http.MethodGet)
	api.HandleFunc("/peers/connected", h.StoreConnectedPeers).Methods(http.MethodPut)
	api.HandleFunc("/peers/recommenders", h.ListRecommenders).Methods(http.MethodGet)
	api.HandleFunc("/peers", h.ListPeersByOrganisation).Methods(http.MethodGet)

	// Trust records
	api.HandleFunc("/trust/matrix", h.StoreTrustMatrix).Methods(http.MethodPost)
	api.HandleFunc("/trust/query", h.QueryTrustMatrix).Methods(http.MethodPost)
	api.HandleFunc("/trust/{id}", h.GetPeerTrust).Methods(http.MethodGet)
	api.HandleFunc("/trust/{id}", h.PutPeerTrust).Methods(http.MethodPut)
	api.HandleFunc("/trust/{id}", h.DeletePeerTrust).Methods(http.MethodDelete)

	// Opinions
	api.HandleFunc("/opinions/{target:.+}", h.GetCachedOpinion).Methods(http.MethodGet)
	api.HandleFunc("/opinions/{target:.+}", h.ComputeOpinion).Methods(http.MethodPost)

	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)

	if events != nil {
		r.Handle("/events", events).Methods(http.MethodGet)
	}
	if metricsPath != "" {
		r.Handle(metricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}

	return r
}
