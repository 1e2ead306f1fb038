package routes

import (
	"github.com/gorilla/mux"
	"p9e.in/farmops/handlers"
	"p9e.in/farmops/pkg/policy"
)

// RegisterFarmRoutes registers flock, finance and member routes
func RegisterFarmRoutes(api *mux.Router, d Deps) {
	flocks := handlers.NewFlockHandler(d.DB)
	api.Handle("/flocks", guard(policy.ActionFlockRead, flocks.ListFlocks)).Methods("GET")
	api.Handle("/flocks", guard(policy.ActionFlockCreate, flocks.CreateFlock)).Methods("POST")
	api.Handle("/flocks/{id}", guard(policy.ActionFlockRead, flocks.GetFlock)).Methods("GET")
	api.Handle("/flocks/{id}", guard(policy.ActionFlockUpdate, flocks.UpdateFlock)).Methods("PUT")
	api.Handle("/flocks/{id}", guard(policy.ActionFlockDelete, flocks.DeleteFlock)).Methods("DELETE")

	api.Handle("/flocks/{id}/feed", guard(policy.ActionLogRead, flocks.ListFeedLogs)).Methods("GET")
	api.Handle("/flocks/{id}/feed", guard(policy.ActionLogCreate, flocks.AddFeedLog)).Methods("POST")
	api.Handle("/flocks/{id}/health", guard(policy.ActionLogRead, flocks.ListHealthLogs)).Methods("GET")
	api.Handle("/flocks/{id}/health", guard(policy.ActionLogCreate, flocks.AddHealthLog)).Methods("POST")
	api.Handle("/flocks/{id}/eggs", guard(policy.ActionLogRead, flocks.ListEggCollections)).Methods("GET")
	api.Handle("/flocks/{id}/eggs", guard(policy.ActionLogCreate, flocks.AddEggCollection)).Methods("POST")

	tx := handlers.NewTransactionHandler(d.DB)
	api.Handle("/transactions", guard(policy.ActionFinanceRead, tx.ListTransactions)).Methods("GET")
	api.Handle("/transactions", guard(policy.ActionFinanceCreate, tx.CreateTransaction)).Methods("POST")
	api.Handle("/transactions/{id}", guard(policy.ActionFinanceRead, tx.GetTransaction)).Methods("GET")
	api.Handle("/transactions/{id}", guard(policy.ActionFinanceDelete, tx.DeleteTransaction)).Methods("DELETE")

	users := handlers.NewUserHandler(d.DB)
	api.Handle("/users", guard(policy.ActionUserRead, users.ListMembers)).Methods("GET")
	api.Handle("/users/{id}/role", guard(policy.ActionUserUpdate, users.UpdateRole)).Methods("PATCH")
}
