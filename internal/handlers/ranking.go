package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/quizgate/internal/models"
	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
)

// RankingServiceInterface defines the percentile conversion contract
type RankingServiceInterface interface {
	Rank(scores map[string]json.RawMessage) (map[string]int, error)
}

// RankingHandler converts raw quiz scores into percentiles
type RankingHandler struct {
	service RankingServiceInterface
}

// NewRankingHandler creates a new RankingHandler
func NewRankingHandler(service RankingServiceInterface) *RankingHandler {
	return &RankingHandler{service: service}
}

// Rank handles POST /api/rankings
func (h *RankingHandler) Rank(w http.ResponseWriter, r *http.Request) {
	var scores map[string]json.RawMessage
	if err := decodeJSON(w, r, &scores); err != nil || scores == nil {
		pkghttp.WriteBadRequest(w, "Request body must be a JSON object of dimension scores")
		return
	}

	rankings, err := h.service.Rank(scores)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Invalid dimension scores", err.Error())
			return
		}
		pkghttp.WriteInternalError(w, "Failed to compute rankings")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, rankings)
}
