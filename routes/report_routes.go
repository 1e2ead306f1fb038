package routes

import (
	"github.com/gorilla/mux"
	"p9e.in/farmops/handlers"
	"p9e.in/farmops/pkg/policy"
)

// RegisterReportRoutes registers the daily report routes under /api/v1
func RegisterReportRoutes(api *mux.Router, d Deps) {
	configSvc, submissionSvc := newReportServices(d.DB)
	cfg := handlers.NewReportConfigHandler(configSvc)
	sub := handlers.NewReportHandler(d.DB, submissionSvc)

	// Configuration
	api.Handle("/reports/config", guard(policy.ActionReportConfigRead, cfg.GetConfig)).Methods("GET")
	api.Handle("/reports/config", guard(policy.ActionReportConfigUpdate, cfg.UpdateConfig)).Methods("PUT")

	// Questions; the literal path is registered before {id}
	api.Handle("/reports/questions/defaults", guard(policy.ActionReportConfigRead, cfg.DefaultQuestions)).Methods("GET")
	api.Handle("/reports/questions", guard(policy.ActionReportConfigRead, cfg.ListQuestions)).Methods("GET")
	api.Handle("/reports/questions", guard(policy.ActionReportConfigUpdate, cfg.CreateQuestion)).Methods("POST")
	api.Handle("/reports/questions", guard(policy.ActionReportConfigUpdate, cfg.ReplaceQuestions)).Methods("PUT")
	api.Handle("/reports/questions/{id}", guard(policy.ActionReportConfigUpdate, cfg.UpdateQuestion)).Methods("PATCH")
	api.Handle("/reports/questions/{id}", guard(policy.ActionReportConfigUpdate, cfg.DeleteQuestion)).Methods("DELETE")

	// Submissions
	api.Handle("/reports/submissions/export", guard(policy.ActionReportExport, sub.Export)).Methods("GET")
	api.Handle("/reports/submissions", guard(policy.ActionReportRead, sub.List)).Methods("GET")
	api.Handle("/reports/submissions", guard(policy.ActionReportSubmit, sub.Submit)).Methods("POST")
	api.Handle("/reports/submissions/{id}", guard(policy.ActionReportRead, sub.Get)).Methods("GET")
}
