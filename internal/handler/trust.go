package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"peertrust/internal/domain"
	"peertrust/internal/repository"
	"peertrust/internal/service"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peertrust/handler")

// TrustHandler handles the trust API
type TrustHandler struct {
	svc *service.TrustService
}

// NewTrustHandler creates a new trust handler
func NewTrustHandler(svc *service.TrustService) *TrustHandler {
	return &TrustHandler{svc: svc}
}

// MatrixResponse is returned after a trust matrix write
type MatrixResponse struct {
	Written int `json:"written"`
	Total   int `json:"total"`
}

// QueryRequest selects the peers of a trust matrix
type QueryRequest struct {
	Peers []domain.PeerID `json:"peers"`
}

// OpinionRequest carries the reports used when no cached opinion exists
type OpinionRequest struct {
	Reports []domain.Report `json:"reports"`
}

// SettingsResponse describes the thresholds in effect
type SettingsResponse struct {
	MinRecommendationTrust float64 `json:"min_recommendation_trust"`
	MinAggregationWeight   float64 `json:"min_aggregation_weight"`
	CacheTTL               string  `json:"cache_ttl"`
}

// GetConnectedPeers returns the connected-peer list
func (h *TrustHandler) GetConnectedPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := h.svc.GetConnectedPeers(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to get connected peers", err)
		return
	}
	writeJSON(w, peers, http.StatusOK)
}

// StoreConnectedPeers replaces the connected-peer list
func (h *TrustHandler) StoreConnectedPeers(w http.ResponseWriter, r *http.Request) {
	var peers []domain.PeerInfo
	if err := json.NewDecoder(r.Body).Decode(&peers); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.StoreConnectedPeers(r.Context(), peers); err != nil {
		writeServiceError(w, "Failed to store connected peers", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPeersByOrganisation returns connected peers of the organisations named
// by the org query parameter, repeated or comma separated
func (h *TrustHandler) ListPeersByOrganisation(w http.ResponseWriter, r *http.Request) {
	var orgs []domain.OrganisationID
	for _, v := range r.URL.Query()["org"] {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				orgs = append(orgs, domain.OrganisationID(o))
			}
		}
	}
	if len(orgs) == 0 {
		writeError(w, "Invalid query", "at least one org is required", http.StatusBadRequest)
		return
	}

	peers, err := h.svc.GetPeersWithOrganisation(r.Context(), domain.NewOrganisationSet(orgs...))
	if err != nil {
		writeServiceError(w, "Failed to list peers", err)
		return
	}
	writeJSON(w, peers, http.StatusOK)
}

// ListRecommenders returns connected peers whose recommendation trust reaches
// the min query parameter, or the configured minimum when it is absent
func (h *TrustHandler) ListRecommenders(w http.ResponseWriter, r *http.Request) {
	var (
		peers []domain.PeerInfo
		err   error
	)
	if raw := r.URL.Query().Get("min"); raw != "" {
		threshold, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			writeError(w, "Invalid query", fmt.Sprintf("min: %v", perr), http.StatusBadRequest)
			return
		}
		peers, err = h.svc.GetPeersWithMinRecommendationTrust(r.Context(), threshold)
	} else {
		peers, err = h.svc.GetRecommenders(r.Context())
	}
	if err != nil {
		writeServiceError(w, "Failed to list recommenders", err)
		return
	}
	writeJSON(w, peers, http.StatusOK)
}

// GetPeerTrust returns the trust record of one peer
func (h *TrustHandler) GetPeerTrust(w http.ResponseWriter, r *http.Request) {
	id := domain.PeerID(mux.Vars(r)["id"])

	data, err := h.svc.GetPeerTrust(r.Context(), domain.ByPeerID(id))
	if err != nil {
		writeServiceError(w, "Failed to get peer trust", err)
		return
	}
	if data == nil {
		writeError(w, "Not found", fmt.Sprintf("no trust recorded for peer %s", id), http.StatusNotFound)
		return
	}
	writeJSON(w, data, http.StatusOK)
}

// PutPeerTrust overwrites the trust record of one peer
func (h *TrustHandler) PutPeerTrust(w http.ResponseWriter, r *http.Request) {
	id := domain.PeerID(mux.Vars(r)["id"])

	var data domain.PeerTrustData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if data.ID != "" && data.ID != id {
		writeError(w, "Invalid request body", fmt.Sprintf("body id %s does not match path id %s", data.ID, id), http.StatusBadRequest)
		return
	}
	data.ID = id

	stored, err := h.svc.RecordPeerTrust(r.Context(), data)
	if err != nil {
		writeServiceError(w, "Failed to record peer trust", err)
		return
	}
	writeJSON(w, stored, http.StatusOK)
}

// DeletePeerTrust evicts the trust record of one peer
func (h *TrustHandler) DeletePeerTrust(w http.ResponseWriter, r *http.Request) {
	id := domain.PeerID(mux.Vars(r)["id"])

	if err := h.svc.DeletePeerTrust(r.Context(), domain.ByPeerID(id)); err != nil {
		writeServiceError(w, "Failed to delete peer trust", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StoreTrustMatrix overwrites the trust records in the request body. The write
// is not atomic; a failure reports how many records were written.
func (h *TrustHandler) StoreTrustMatrix(w http.ResponseWriter, r *http.Request) {
	var records []domain.PeerTrustData
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	m := make(domain.TrustMatrix, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			writeError(w, "Invalid request body", "every record needs an id", http.StatusBadRequest)
			return
		}
		if _, dup := m[rec.ID]; dup {
			writeError(w, "Invalid request body", fmt.Sprintf("peer %s appears twice", rec.ID), http.StatusBadRequest)
			return
		}
		m[rec.ID] = rec
	}

	if err := h.svc.RecordTrustMatrix(r.Context(), m); err != nil {
		var mwe *repository.MatrixWriteError
		if errors.As(err, &mwe) {
			status := errorStatus(mwe.Err)
			if status >= http.StatusInternalServerError {
				log.Errorf("trust matrix write failed: %v", err)
			}
			writeJSON(w, struct {
				ErrorResponse
				MatrixResponse
			}{
				ErrorResponse{Error: "Trust matrix partially written", Details: err.Error()},
				MatrixResponse{Written: mwe.Written, Total: mwe.Total},
			}, status)
			return
		}
		writeServiceError(w, "Failed to store trust matrix", err)
		return
	}
	writeJSON(w, MatrixResponse{Written: len(m), Total: len(m)}, http.StatusOK)
}

// QueryTrustMatrix returns the trust records of the requested peers; peers
// without a record are omitted
func (h *TrustHandler) QueryTrustMatrix(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.svc.GetPeersTrust(r.Context(), domain.RefsByID(req.Peers))
	if err != nil {
		writeServiceError(w, "Failed to query trust matrix", err)
		return
	}
	writeJSON(w, m, http.StatusOK)
}

// GetCachedOpinion returns the cached opinion for a target without computing one
func (h *TrustHandler) GetCachedOpinion(w http.ResponseWriter, r *http.Request) {
	target := domain.Target(mux.Vars(r)["target"])

	op, err := h.svc.GetCachedNetworkOpinion(r.Context(), target)
	if err != nil {
		writeServiceError(w, "Failed to get cached opinion", err)
		return
	}
	if op == nil {
		writeError(w, "Not found", fmt.Sprintf("no fresh opinion cached for %s", target), http.StatusNotFound)
		return
	}
	writeJSON(w, op, http.StatusOK)
}

// ComputeOpinion returns the cached opinion for a target or aggregates the
// reports in the request body
func (h *TrustHandler) ComputeOpinion(w http.ResponseWriter, r *http.Request) {
	target := domain.Target(mux.Vars(r)["target"])

	var req OpinionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	op, err := h.svc.GetOrComputeNetworkOpinion(r.Context(), target, req.Reports)
	if err != nil {
		writeServiceError(w, "Failed to compute opinion", err)
		return
	}
	writeJSON(w, op, http.StatusOK)
}

// GetSettings returns the thresholds in effect
func (h *TrustHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, ttl := h.svc.Settings()
	writeJSON(w, SettingsResponse{
		MinRecommendationTrust: settings.MinRecommendationTrust,
		MinAggregationWeight:   settings.MinAggregationWeight,
		CacheTTL:               ttl.String(),
	}, http.StatusOK)
}
