package web

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"recurring-billing/internal/domain"
	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/infra/logging"
	"recurring-billing/internal/infra/redis"
	"recurring-billing/internal/usecase"
)

const callerHeader = "X-Caller-Id"

type jobResponse struct {
	JobID              string     `json:"job_id"`
	Kind               string     `json:"kind"`
	Status             string     `json:"status"`
	TotalSubscriptions int        `json:"total_subscriptions"`
	ProcessedCount     int        `json:"processed_count"`
	SuccessCount       int        `json:"success_count"`
	FailureCount       int        `json:"failure_count"`
	ErrorDetail        *string    `json:"error_detail,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(j *model.BillingJob) jobResponse {
	return jobResponse{
		JobID:              j.ID,
		Kind:               j.Kind,
		Status:             string(j.Status),
		TotalSubscriptions: j.TotalSubscriptions,
		ProcessedCount:     j.ProcessedCount,
		SuccessCount:       j.SuccessCount,
		FailureCount:       j.FailureCount,
		ErrorDetail:        j.ErrorDetail,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
	}
}

type subscriptionCreateRequest struct {
	OwnerID   string `json:"owner_id"`
	PlanID    string `json:"plan_id"`
	TrialDays *int   `json:"trial_days,omitempty"`
}

type chargeResponse struct {
	Succeeded     bool            `json:"succeeded"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
}

type subscriptionResponse struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	PlanID          string          `json:"plan_id"`
	Status          string          `json:"status"`
	NextBillingDate time.Time       `json:"next_billing_date"`
	TrialEndsAt     *time.Time      `json:"trial_ends_at,omitempty"`
	InitialCharge   *chargeResponse `json:"initial_charge,omitempty"`
}

func (s *Server) startCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.limiter != nil && s.opts.TriggerLimit > 0 {
		ok, err := s.limiter.Allow(ctx, redis.CycleTriggerKey(callerID(r)), s.opts.TriggerLimit, s.opts.TriggerWindow)
		if err != nil {
			// fail open
			logging.With(ctx, s.log).Warn().Err(err).Msg("trigger limiter unavailable")
		} else if !ok {
			writeError(w, http.StatusTooManyRequests, "too many billing cycle triggers")
			return
		}
	}

	jobID, err := s.billing.StartBillingCycle(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/billing/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.billing.GetJobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// cancelJob answers 202 for a running job and 409 for one that already ended.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.billing.CancelJob(jobID) {
		writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "cancelled": true})
		return
	}
	job, err := s.billing.GetJobStatus(r.Context(), jobID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]any{
		"job_id":    jobID,
		"cancelled": false,
		"status":    string(job.Status),
	})
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscriptionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == "" || req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "owner_id and plan_id are required")
		return
	}

	sub, err := s.billing.CreateSubscription(ctx, req.OwnerID, req.PlanID, req.TrialDays)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resp := subscriptionResponse{
		ID:              sub.ID,
		OwnerID:         sub.OwnerID,
		PlanID:          sub.PlanID,
		Status:          string(sub.Status),
		NextBillingDate: sub.NextBillingDate,
		TrialEndsAt:     sub.TrialEndsAt,
	}

	// Subscriptions without a trial are charged right away.
	res, err := s.billing.ProcessInitialBilling(ctx, sub.ID)
	switch {
	case err != nil:
		logging.With(logging.WithSubscriptionID(ctx, sub.ID), s.log).Error().Err(err).Msg("initial billing failed")
	case res != nil:
		resp.InitialCharge = &chargeResponse{
			Succeeded:     res.Succeeded,
			Amount:        res.Record.Amount,
			TransactionID: res.Record.TransactionID,
			FailureReason: res.Record.FailureReason,
		}
		resp.Status = string(res.UpdatedSubscription.Status)
		resp.NextBillingDate = res.UpdatedSubscription.NextBillingDate
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriptionID")
	ok, err := s.billing.CancelSubscription(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription_id": id, "cancelled": true})
}

// callerID identifies the trigger source for throttling.
func callerID(r *http.Request) string {
	if c := r.Header.Get(callerHeader); c != "" {
		return c
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSubscriptionState), errors.Is(err, domain.ErrInvalidJobState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
