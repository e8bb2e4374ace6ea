package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MrLituation/BlockBox/internal/pkg/clients"
	"github.com/MrLituation/BlockBox/internal/pkg/config"
	"github.com/MrLituation/BlockBox/internal/pkg/state"
	"github.com/MrLituation/BlockBox/internal/pkg/transaction"
	gmux "github.com/gorilla/mux"
)

const (
	post = "post"
	get  = "get"
)

var allowedAPIKeys []string

type WebServer struct {
	httpServer    *http.Server
	serverClients clients.ServerClients
	store         *state.Store
	controller    *transaction.Controller
}

type collectPayload struct {
	BuyerCredential string `json:"buyerCredential"`
}

func newWebServer(serverConfig config.Config, clients clients.ServerClients, store *state.Store, controller *transaction.Controller) WebServer {
	allowedAPIKeys = serverConfig.AllowedAPIKeys
	router := gmux.NewRouter().StrictSlash(true)

	w := WebServer{
		serverClients: clients,
		store:         store,
		controller:    controller,
	}

	router.Handle("/health", http.HandlerFunc(healthHandler)).Methods(get)
	router.Handle("/api/state", requireAPIKey(http.HandlerFunc(w.stateHandler))).Methods(get)
	router.Handle("/api/transaction", requireAPIKey(http.HandlerFunc(w.startTransactionHandler))).Methods(post)
	router.Handle("/api/transaction/listing", requireAPIKey(http.HandlerFunc(w.submitListingHandler))).Methods(post)
	router.Handle("/api/collect", requireAPIKey(http.HandlerFunc(w.collectHandler))).Methods(post)
	router.Handle("/api/reclaim", requireAPIKey(http.HandlerFunc(w.reclaimHandler))).Methods(post)
	router.Handle("/api/report", requireAPIKey(http.HandlerFunc(w.reportHandler))).Methods(get)
	router.Handle("/api/listings", requireAPIKey(http.HandlerFunc(w.listingsHandler))).Methods(get)
	router.Handle("/api/listing", requireAPIKey(http.HandlerFunc(w.listingHandler))).Methods(get)

	// No write timeout: the listing walk-through keeps its request open
	// while the seller handles the box, and is cancelled client-side.
	srv := &http.Server{
		Handler:     router,
		Addr:        "0.0.0.0:" + serverConfig.Port,
		ReadTimeout: 15 * time.Second,
	}

	w.httpServer = srv
	return w
}

func (s WebServer) stateHandler(w http.ResponseWriter, req *http.Request) {
	snap := s.store.Snapshot()
	j, _ := json.Marshal(snap)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, string(j))
}

func (s WebServer) startTransactionHandler(w http.ResponseWriter, req *http.Request) {
	id, err := s.controller.Start(req.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	fmt.Fprintf(w, `{"status":"success","transactionId":"%s"}`, id)
}

func (s WebServer) submitListingHandler(w http.ResponseWriter, req *http.Request) {
	var l state.Listing
	if err := json.NewDecoder(req.Body).Decode(&l); err != nil {
		http.Error(w, `{"status":"error","error":"Error parsing request"}`, http.StatusBadRequest)
		return
	}

	if err := s.controller.SubmitListing(req.Context(), l); err != nil {
		writeControllerError(w, err)
		return
	}
	fmt.Fprint(w, `{"status":"success"}`)
}

// collectHandler accepts a collection attempt and runs it in the
// background: the buyer types the code on the physical keypad, not in this
// request. Outcomes land in the state and the audit history.
func (s WebServer) collectHandler(w http.ResponseWriter, req *http.Request) {
	var p collectPayload
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		http.Error(w, `{"status":"error","error":"Error parsing request"}`, http.StatusBadRequest)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), keypadEntryWindow)
		defer cancel()
		if err := s.controller.VerifyAndRelease(ctx, p.BuyerCredential); err != nil {
			logger.Errorf("collection attempt failed: %s", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprint(w, `{"status":"accepted"}`)
}

// reclaimHandler starts the reclaim flow in the background; the wait for
// the seller to empty the box is unbounded.
func (s WebServer) reclaimHandler(w http.ResponseWriter, req *http.Request) {
	snap := s.store.Snapshot()
	if !snap.ItemInBox {
		http.Error(w, `{"status":"error","error":"no item to reclaim"}`, http.StatusConflict)
		return
	}

	go func() {
		if err := s.controller.Reclaim(context.Background()); err != nil {
			logger.Errorf("reclaim failed: %s", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprint(w, `{"status":"accepted"}`)
}

func (s WebServer) reportHandler(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	transactionID := query.Get("transaction")
	pageString := query.Get("page")
	page, err := strconv.Atoi(pageString)
	if err != nil {
		http.Error(w, "Page not found", http.StatusBadRequest)
		return
	}
	if transactionID == "" {
		http.Error(w, "Pass transaction in request", http.StatusBadRequest)
		return
	}
	events, numPages, err := s.serverClients.Postgres.GetTransactionHistory(transactionID, page)
	if err != nil {
		logger.Errorf("Error getting transaction history: %s", err)
		http.Error(w, "Error getting report", http.StatusBadRequest)
		return
	}
	j, _ := json.Marshal(events)
	fmt.Fprintf(w, `{"events":%s,"numPages":%d}`, string(j), numPages)
}

func (s WebServer) listingsHandler(w http.ResponseWriter, req *http.Request) {
	ids, err := s.serverClients.Redis.ListingIDs(req.Context())
	if err != nil {
		logger.Errorf("Error getting listing ids: %s", err)
		http.Error(w, "Error getting listings", http.StatusBadRequest)
		return
	}
	j, _ := json.Marshal(ids)
	fmt.Fprintf(w, `{"listings":%s}`, string(j))
}

func (s WebServer) listingHandler(w http.ResponseWriter, req *http.Request) {
	transactionID := req.URL.Query().Get("transaction")
	if transactionID == "" {
		http.Error(w, "Pass transaction in request", http.StatusBadRequest)
		return
	}
	snapshotJSON, err := s.serverClients.Redis.ReadListing(transactionID, req.Context())
	if err != nil {
		logger.Errorf("Error reading listing %s: %s", transactionID, err)
		http.Error(w, "Error getting listing", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, snapshotJSON)
}

func writeControllerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, transaction.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, transaction.ErrPrecondition):
		status = http.StatusConflict
	}
	j, _ := json.Marshal(err.Error())
	http.Error(w, fmt.Sprintf(`{"status":"error","error":%s}`, string(j)), status)
}

func healthHandler(w http.ResponseWriter, req *http.Request) {
	apiKey := req.Header.Get("api-key")

	if !validAPIKey(apiKey) {
		http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
		return
	}

	fmt.Fprintf(w, `{"version":"%s"}`, version)
}

func requireAPIKey(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, req *http.Request) {
		if !validAPIKey(req.Header.Get("api-key")) {
			http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	}
	return http.HandlerFunc(fn)
}

func validAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}
	allowed := false
	for _, key := range allowedAPIKeys {
		if key == apiKey {
			allowed = true
		}
	}
	return allowed
}
