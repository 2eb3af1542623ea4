package agent

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/nag"
	"github.com/KevinTCoughlin/licensegate/internal/orchestrator"
)

type activateRequest struct {
	Key string `json:"key"`
}

type activateResponse struct {
	Outcome       string              `json:"outcome"`
	Tier          license.Tier        `json:"tier,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	CanReactivate bool                `json:"can_reactivate,omitempty"`
	Message       string              `json:"message"`
	Status        orchestrator.Report `json:"status"`
}

type deactivateResponse struct {
	ServerConfirmed bool                `json:"server_confirmed"`
	Status          orchestrator.Report `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, a.engine.Report())
}

func (a *Agent) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "request body must be JSON with a key field"})
		return
	}

	res := a.engine.Activate(r.Context(), req.Key)
	resp := activateResponse{
		Outcome:       res.Outcome.String(),
		Tier:          res.Tier,
		CanReactivate: res.CanReactivate,
		Message:       nag.ActivationMessage(res),
		Status:        a.engine.Report(),
	}
	if !res.OK() {
		resp.Reason = res.Reason.String()
		a.logger.Info("activation via agent failed", "reason", resp.Reason, "error", res.Err)
	}
	render.Status(r, activationStatus(res))
	render.JSON(w, r, resp)
}

func (a *Agent) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	confirmed := a.engine.Deactivate(r.Context())
	render.JSON(w, r, deactivateResponse{ServerConfirmed: confirmed, Status: a.engine.Report()})
}

func (a *Agent) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Refresh(r.Context()); err != nil {
		a.logger.Warn("refresh via agent failed", "error", err)
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, a.engine.Report())
}

func activationStatus(res orchestrator.ActivationResult) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.Reason {
	case orchestrator.ReasonMalformedKey:
		return http.StatusBadRequest
	case orchestrator.ReasonNetwork:
		return http.StatusServiceUnavailable
	case orchestrator.ReasonRateLimited:
		return http.StatusTooManyRequests
	case orchestrator.ReasonMissingCapability, orchestrator.ReasonStorage:
		return http.StatusInternalServerError
	case orchestrator.ReasonServer, orchestrator.ReasonDecoding:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}
