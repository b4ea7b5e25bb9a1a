package http

import (
	"log/slog"
	"net/http"
	"strings"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
	"ikpa/internal/gps"
	"ikpa/internal/simulation"
)

type goalRequest struct {
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	TargetAmount  core.Money `json:"target_amount"`
	CurrentAmount core.Money `json:"current_amount"`
	TargetDate    string     `json:"target_date"`
	Priority      int        `json:"priority"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := parseDate("target_date", req.TargetDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if target.IsZero() {
		writeError(w, r, apperr.Validation("target_date is required"))
		return
	}

	g := core.Goal{
		UserID:        uid,
		Name:          sanitizeInput(req.Name),
		Category:      strings.ToLower(sanitizeInput(req.Category)),
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    target,
		Status:        core.GoalActive,
		Priority:      req.Priority,
		CreatedAt:     s.now(),
	}
	if err := g.Validate(); err != nil {
		writeError(w, r, validation(err))
		return
	}
	if err := s.Store.CreateGoal(r.Context(), &g); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newGoalView(g))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Store.ListGoals(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": mapViews(list, newGoalView)})
}

type contributionRequest struct {
	Amount core.Money `json:"amount"`
	Date   string     `json:"date"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	goalID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	g, err := s.Goals.Contribute(r.Context(), uid, goalID, req.Amount, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newGoalView(g))
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	goalID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Goals.Progress(r.Context(), uid, goalID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	in := simulation.DefaultInput()
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Simulation.Run(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type compareRequest struct {
	simulation.Input
	ExtraPoints float64 `json:"extra_points"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	req := compareRequest{Input: simulation.DefaultInput(), ExtraPoints: simulation.DefaultExtraPoints}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ExtraPoints <= 0 || req.ExtraPoints > 100 {
		writeError(w, r, apperr.Validation("extra_points must be between 0 and 100"))
		return
	}
	cmp, err := s.Simulation.Compare(r.Context(), req.Input, req.ExtraPoints)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

type recalculateRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req recalculateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sess, err := s.GPS.Recalculate(r.Context(), uid, strings.ToLower(sanitizeInput(req.Category)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Recovery session created",
		"component", "http",
		"user_id", uid,
		"session_id", sess.ID,
		"category", sess.Category,
		"trigger", sess.Budget.Trigger)
	writeJSON(w, http.StatusCreated, sess)
}

type selectPathRequest struct {
	PathID gps.PathID `json:"path_id"`
}

func (s *Server) handleSelectPath(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req selectPathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.PathID.IsValid() {
		writeError(w, r, apperr.Validation("path_id must be time_adjustment, rate_adjustment or freeze_protocol").
			WithDetail("path_id", string(req.PathID)))
		return
	}

	sess, err := s.GPS.SelectPath(r.Context(), uid, sessionID, req.PathID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
