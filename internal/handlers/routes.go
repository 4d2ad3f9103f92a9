package handlers

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"manuscript-review/internal/service"
)

// Authenticator wraps handlers that require a resolved actor
type Authenticator interface {
	Authenticate(next http.Handler) http.Handler
}

// RegisterRoutes mounts every API endpoint on mux
func RegisterRoutes(mux *http.ServeMux, svc *service.Services, health *HealthHandler, cfg *ConfigHandler, authMw Authenticator) {
	submissions := NewSubmissionHandler(svc.Submissions, svc.Engine, svc.Audit)
	rounds := NewRoundHandler(svc.Rounds, svc.Assignments)
	messages := NewMessageHandler(svc.Messages)

	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authMw.Authenticate(fn))
	}

	protected("POST /api/v1/submissions", submissions.Create)
	protected("GET /api/v1/submissions", submissions.List)
	protected("GET /api/v1/submissions/{id}", submissions.Get)
	protected("POST /api/v1/submissions/{id}/finalize", submissions.Finalize)
	protected("PUT /api/v1/submissions/{id}/manuscript", submissions.UpdateManuscript)
	protected("POST /api/v1/submissions/{id}/decision", submissions.Decide)
	protected("POST /api/v1/submissions/{id}/resubmit", submissions.Resubmit)
	protected("GET /api/v1/submissions/{id}/events", submissions.Events)
	protected("GET /api/v1/submissions/{id}/events/verify", submissions.VerifyEvents)

	protected("POST /api/v1/submissions/{id}/rounds", rounds.Open)
	protected("GET /api/v1/submissions/{id}/rounds", rounds.List)
	protected("POST /api/v1/rounds/{id}/close", rounds.Close)
	protected("GET /api/v1/rounds/{id}/outcome", rounds.Outcome)
	protected("POST /api/v1/rounds/{id}/assignments", rounds.Assign)
	protected("GET /api/v1/rounds/{id}/assignments", rounds.ListAssignments)
	protected("POST /api/v1/assignments/{id}/response", rounds.Respond)
	protected("DELETE /api/v1/assignments/{id}", rounds.Remove)

	protected("POST /api/v1/rounds/{id}/messages", messages.Post)
	protected("GET /api/v1/rounds/{id}/messages/count", messages.Count)
	protected("POST /api/v1/messages/{id}/response", messages.Respond)

	mux.HandleFunc("GET /api/v1/workflow/transitions", submissions.Transitions)
	mux.HandleFunc("GET /api/v1/config/app", cfg.GetAppConfig)
	mux.HandleFunc("GET /health", health.Health)
	mux.Handle("/swagger/", httpSwagger.WrapHandler)
}
