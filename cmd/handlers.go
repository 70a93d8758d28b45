package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/model"
	"github.com/streetcomplete/sc-statistics-service/internal/ranks"
)

// requiredUserAgentPrefix gates the statistics endpoint to the app itself.
const requiredUserAgentPrefix = "StreetComplete"

type statisticsSource interface {
	QuestCounts(ctx context.Context, userID int64) (map[string]int, error)
	SolvedByCountry(ctx context.Context, userID int64) (map[string]int, error)
	DaysActive(ctx context.Context, userID int64) (int, error)
}

type walkStateSource interface {
	Read(ctx context.Context, userID int64) (model.WalkState, error)
}

type userAnalyzer interface {
	AnalyzeUser(ctx context.Context, userID int64, budget time.Duration) error
}

type rankSource interface {
	ForUser(ctx context.Context, userID int64) (*ranks.UserRanks, error)
}

// apiServer serves the statistics and rank endpoints.
type apiServer struct {
	stats  statisticsSource
	states walkStateSource
	ranks  rankSource
	walker userAnalyzer

	analyzeBudget time.Duration
	minDelay      time.Duration
	now           func() time.Time
}

func (s *apiServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/statistics", s.handleStatistics)
	r.Get("/rank", s.handleRank)
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statisticsResponse is the payload consumed by the app's statistics screen.
type statisticsResponse struct {
	QuestTypes  map[string]int `json:"questTypes"`
	Countries   map[string]int `json:"countries"`
	DaysActive  int            `json:"daysActive"`
	LastUpdate  string         `json:"lastUpdate"`
	IsAnalyzing bool           `json:"isAnalyzing"`
}

// handleStatistics brings the user's statistics up to date within the
// request-time budget and returns them. A user re-requesting within the
// minimum delay gets the stored statistics without a new walk.
func (s *apiServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.UserAgent(), requiredUserAgentPrefix) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}

	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	state, err := s.states.Read(ctx, userID)
	if err != nil {
		serverError(w, "read walk state", err)
		return
	}
	if s.now().Sub(state.LastUpdate) >= s.minDelay {
		if err := s.walker.AnalyzeUser(ctx, userID, s.analyzeBudget); err != nil {
			serverError(w, "analyze user", err)
			return
		}
		state, err = s.states.Read(ctx, userID)
		if err != nil {
			serverError(w, "read walk state", err)
			return
		}
	}

	questTypes, err := s.stats.QuestCounts(ctx, userID)
	if err != nil {
		serverError(w, "quest counts", err)
		return
	}
	countries, err := s.stats.SolvedByCountry(ctx, userID)
	if err != nil {
		serverError(w, "countries", err)
		return
	}
	daysActive, err := s.stats.DaysActive(ctx, userID)
	if err != nil {
		serverError(w, "days active", err)
		return
	}

	lastUpdate := state.LastUpdate
	if lastUpdate.IsZero() {
		lastUpdate = s.now()
	}

	writeJSON(w, http.StatusOK, statisticsResponse{
		QuestTypes:  questTypes,
		Countries:   countries,
		DaysActive:  daysActive,
		LastUpdate:  lastUpdate.UTC().Format(time.RFC3339),
		IsAnalyzing: state.InProgress(),
	})
}

func (s *apiServer) handleRank(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	userRanks, err := s.ranks.ForUser(r.Context(), userID)
	if err != nil {
		serverError(w, "user ranks", err)
		return
	}
	writeJSON(w, http.StatusOK, userRanks)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, msg string, err error) {
	zap.L().Error(msg, zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}
