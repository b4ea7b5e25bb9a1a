package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ikpa/internal/amqp"
	"ikpa/internal/apperr"
	"ikpa/internal/commitment"
	"ikpa/internal/core"
	"ikpa/internal/shark"
	"ikpa/internal/storycard"
)

func (s *Server) handleSharkAudit(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var rep shark.Report
	if queryBool(r.URL.Query(), "refresh") {
		rep, err = s.Shark.Refresh(r.Context(), uid)
	} else {
		rep, err = s.Shark.Audit(r.Context(), uid)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type decisionRequest struct {
	Decision shark.DecisionKind `json:"decision"`
}

type decisionView struct {
	Key       string             `json:"key"`
	Decision  shark.DecisionKind `json:"decision"`
	DecidedAt time.Time          `json:"decided_at"`
}

func (s *Server) handleSharkDecision(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := mux.Vars(r)["key"]
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	d, err := s.Shark.Decide(r.Context(), uid, key, req.Decision)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Subscription decision recorded",
		"component", "http",
		"user_id", uid,
		"key", d.Key,
		"decision", d.Decision)
	writeJSON(w, http.StatusOK, decisionView{Key: d.Key, Decision: d.Decision, DecidedAt: d.DecidedAt})
}

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req commitment.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.AntiCharity = sanitizeInput(req.AntiCharity)
	req.RefereeEmail = strings.ToLower(strings.TrimSpace(req.RefereeEmail))

	c, err := s.Commitments.Create(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Commitments.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []commitment.Contract{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commitments": list})
}

func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.Commitments.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type verifyRequest struct {
	Success bool `json:"success"`
}

// handleVerifyCommitment records the caller's verdict as referee. The
// referee is identified by the email of the authenticated account.
func (s *Server) handleVerifyCommitment(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.Store.GetUser(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.Commitments.Verify(r.Context(), id, u.Email, req.Success)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Commitment verified",
		"component", "http",
		"contract_id", c.ID,
		"referee_id", uid,
		"status", c.Status)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCancelCommitment(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.Commitments.Cancel(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCommitmentRisk(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.Commitments.Risk(r.Context(), s.Snapshots, uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type jobAccepted struct {
	Status  string `json:"status"`
	JobType string `json:"job_type"`
}

// handleRequestDebrief queues a debrief. Without a broker the debrief runs
// inline and is returned directly.
func (s *Server) handleRequestDebrief(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.Commitments.Get(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}

	job, err := amqp.NewJob(amqp.JobDebriefRequested, uid, amqp.DebriefPayload{ContractID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}
	queued, err := s.Jobs.Dispatch(r.Context(), job)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if queued {
		writeJSON(w, http.StatusAccepted, jobAccepted{Status: "queued", JobType: job.Type})
		return
	}

	d, err := s.Debriefs.Latest(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetDebrief(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.Debriefs.Latest(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type storyCardRequest struct {
	Kind         storycard.Kind `json:"kind"`
	GoalID       int64          `json:"goal_id"`
	Milestone    int            `json:"milestone"`
	DebtID       int64          `json:"debt_id"`
	StakeAmount  core.Money     `json:"stake_amount"`
	StreakMonths int            `json:"streak_months"`
	Saved        core.Money     `json:"saved"`
	PaidOff      core.Money     `json:"paid_off"`
	Privacy      bool           `json:"privacy"`
}

func (s *Server) handleCreateStoryCard(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req storyCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()

	src := storycard.Source{
		Milestone:    req.Milestone,
		StakeAmount:  req.StakeAmount,
		StreakMonths: req.StreakMonths,
		Saved:        req.Saved,
		PaidOff:      req.PaidOff,
	}
	if req.GoalID > 0 {
		g, err := s.Store.GetGoal(ctx, uid, req.GoalID)
		if errors.Is(err, core.ErrNotFound) {
			err = apperr.GoalNotFound(req.GoalID)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		src.Goal = &g
	}
	if req.DebtID > 0 {
		debts, err := s.Store.ListDebts(ctx, uid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for i := range debts {
			if debts[i].ID == req.DebtID {
				src.Debt = &debts[i]
				break
			}
		}
		if src.Debt == nil {
			writeError(w, r, apperr.NotFound("debt").WithDetail("debt_id", req.DebtID))
			return
		}
	}

	u, err := s.Store.GetUser(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.StoryCards.Create(ctx, u, req.Kind, src, req.Privacy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListStoryCards(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.StoryCards.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []storycard.Card{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"story_cards": list})
}

type exportRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	uid, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.ExportEnabled {
		writeError(w, r, apperr.Validation("ledger export is not configured"))
		return
	}

	now := s.now()
	req := exportRequest{Year: now.Year(), Month: int(now.Month())}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 2000 || req.Year > 2100 {
		writeError(w, r, apperr.Validation("year and month are out of range").
			WithDetail("year", req.Year).WithDetail("month", req.Month))
		return
	}

	job, err := amqp.NewJob(amqp.JobSheetsExport, uid, amqp.ExportPayload{Year: req.Year, Month: req.Month})
	if err != nil {
		writeError(w, r, err)
		return
	}
	queued, err := s.Jobs.Dispatch(r.Context(), job)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if queued {
		writeJSON(w, http.StatusAccepted, jobAccepted{Status: "queued", JobType: job.Type})
		return
	}
	writeJSON(w, http.StatusOK, jobAccepted{Status: "completed", JobType: job.Type})
}

type merchantMatch struct {
	Query        string `json:"query"`
	Matched      bool   `json:"matched"`
	Merchant     string `json:"merchant,omitempty"`
	Category     string `json:"category"`
	Subscription bool   `json:"subscription"`
}

func (s *Server) handleMerchantMatch(w http.ResponseWriter, r *http.Request) {
	q := sanitizeInput(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, apperr.Validation("q is required"))
		return
	}

	out := merchantMatch{Query: q, Category: core.CategoryOther}
	if m, ok := s.Merchants.Match(q); ok {
		out.Matched = true
		out.Merchant = m.Merchant
		out.Category = m.Category
		out.Subscription = m.Subscription
	}
	writeJSON(w, http.StatusOK, out)
}
