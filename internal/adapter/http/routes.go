package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The
// websocket endpoint is passed in separately so this package stays free of
// the hub dependency.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", ws)

	r.Route("/api/v1", func(r chi.Router) {
		// Projects
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Put("/projects/{id}/budget", h.SetBudget)
		r.Get("/projects/{id}/budget", h.GetBudget)
		r.Get("/projects/{id}/settings", h.GetSettings)
		r.Put("/projects/{id}/settings", h.UpdateSettings)
		r.Post("/projects/{id}/teams", h.CreateTeam)

		// Teams and agents
		r.Get("/teams/{id}/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)

		// Runs
		r.Post("/runs", h.CreateRun)
		r.Get("/runs/{id}", h.GetRun)
		r.Post("/runs/{id}/start", h.StartRun)
		r.Post("/runs/{id}/pause", h.PauseRun)
		r.Post("/runs/{id}/resume", h.ResumeRun)
		r.Post("/runs/{id}/chat", h.PostChat)
		r.Get("/runs/{id}/audit", h.ListAudit)
		r.Get("/runs/{id}/approvals", h.ListApprovals)

		// Tasks
		r.Post("/runs/{id}/tasks", h.CreateTask)
		r.Get("/runs/{id}/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)

		// Approvals
		r.Post("/approvals/{id}/decide", h.DecideApproval)
	})
}
