package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rshade/ecohabit/internal/auth"
	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/habits"
	"github.com/rshade/ecohabit/internal/observability"
)

const dayLayout = "2006-01-02"

type calculateResponse struct {
	ImpactKg        float64                `json:"impact_kg"`
	Formatted       string                 `json:"formatted"`
	Description     string                 `json:"description"`
	Breakdown       carbon.ImpactBreakdown `json:"breakdown"`
	Equivalencies   []carbon.Equivalency   `json:"equivalencies,omitempty"`
	EquivalencyText string                 `json:"equivalency_text,omitempty"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var entry carbon.ActivityEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	b := s.calc.Breakdown(entry)
	observability.RecordCalculation(string(entry.Category), b.CategoryFallback || b.SubKeyFallback)

	s.writeJSON(w, http.StatusOK, calculateResponse{
		ImpactKg:        b.ImpactKg,
		Formatted:       carbon.FormatImpact(b.ImpactKg),
		Description:     carbon.DescribeEntry(entry),
		Breakdown:       b,
		Equivalencies:   carbon.Equivalencies(b.ImpactKg),
		EquivalencyText: carbon.EquivalencyText(b.ImpactKg),
	})
}

func (s *Server) handleFactors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.calc.Table())
}

type signUpRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.SignUp(r.Context(), auth.UserID(r.Context()), req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newProfileResponse(p))
}

type profileResponse struct {
	habits.Profile
	LevelProgress float64 `json:"level_progress"`
}

func newProfileResponse(p habits.Profile) profileResponse {
	return profileResponse{Profile: p, LevelProgress: habits.LevelProgress(p.EcoPoints)}
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProfile(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newProfileResponse(p))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update habits.ProfileUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.UpdateProfile(r.Context(), auth.UserID(r.Context()), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newProfileResponse(p))
}

type trackResponse struct {
	habits.TrackResult
	Formatted   string `json:"formatted"`
	Description string `json:"description"`
}

func (s *Server) handleTrackHabit(w http.ResponseWriter, r *http.Request) {
	var entry carbon.ActivityEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.TrackHabit(r.Context(), auth.UserID(r.Context()), entry)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, trackResponse{
		TrackResult: res,
		Formatted:   carbon.FormatImpact(res.Habit.CO2Impact),
		Description: carbon.DescribeEntry(entry),
	})
}

func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		limit = n
	}
	list, err := s.svc.ListHabits(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []habits.Habit{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"habits": list})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse(dayLayout, raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: day must be YYYY-MM-DD", errBadRequest))
			return
		}
		day = parsed
	}
	summary, err := s.svc.DailySummary(r.Context(), auth.UserID(r.Context()), day)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListActiveChallenges(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []habits.Challenge{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"challenges": list})
}

func (s *Server) handleListUserChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListUserChallenges(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []habits.UserChallenge{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"challenges": list})
}

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	uc, err := s.svc.JoinChallenge(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, uc)
}

type progressRequest struct {
	Progress *int `json:"progress"`
}

func (s *Server) handleChallengeProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Progress == nil {
		s.writeError(w, r, fmt.Errorf("%w: progress is required", errBadRequest))
		return
	}
	uc, err := s.svc.UpdateChallengeProgress(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"], *req.Progress)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, uc)
}

func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	uc, err := s.svc.CompleteChallenge(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, uc)
}
