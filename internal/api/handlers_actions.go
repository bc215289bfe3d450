// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/tandem/internal/collector"
)

// CollectAction ingests one user action and answers 202 Accepted. The
// normalized action is echoed back.
func (h *Handler) CollectAction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ActionRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	action := req.toModel()
	ctx := collector.WithTransport(r.Context(), collector.TransportHTTP)
	if err := h.deps.Collector.Collect(ctx, action); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondData(w, r, http.StatusAccepted, action, 1, start)
}
