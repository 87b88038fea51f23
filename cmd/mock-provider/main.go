// mock-provider is a local stand-in for both payment processors so the API
// can run end to end without real credentials. State is in memory and reset
// on restart.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/adrienlc/payhub-backend/internal/logging"
)

type store struct {
	mu       sync.Mutex
	seq      atomic.Int64
	statuses map[string]string
}

func (s *store) nextID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, s.seq.Add(1))
}

func (s *store) set(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
}

func (s *store) get(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[id]
	return status, ok
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func main() {
	logging.Init("mock-provider", "info", os.Getenv("APP_ENV"))

	s := &store{statuses: make(map[string]string)}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Card processor surface.
	mux.HandleFunc("POST /v1/customers", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"id": s.nextID("cus")})
	})
	mux.HandleFunc("POST /v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		id := s.nextID("pi")
		status := "requires_confirmation"
		if r.FormValue("confirm") == "true" {
			status = "succeeded"
		}
		s.set(id, status)
		respond(w, http.StatusOK, map[string]string{"id": id, "status": status})
	})
	mux.HandleFunc("POST /v1/payment_intents/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := s.get(id); !ok {
			respond(w, http.StatusNotFound, map[string]any{"error": map[string]string{"message": "no such payment_intent"}})
			return
		}
		s.set(id, "succeeded")
		respond(w, http.StatusOK, map[string]string{"id": id, "status": "succeeded"})
	})
	mux.HandleFunc("GET /v1/payment_intents/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		status, ok := s.get(id)
		if !ok {
			respond(w, http.StatusNotFound, map[string]any{"error": map[string]string{"message": "no such payment_intent"}})
			return
		}
		respond(w, http.StatusOK, map[string]string{"id": id, "status": status})
	})
	mux.HandleFunc("POST /v1/refunds", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"id": s.nextID("re"), "status": "succeeded"})
	})
	mux.HandleFunc("POST /v1/payment_methods/{id}/attach", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
	})
	mux.HandleFunc("GET /v1/payment_methods/{id}", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]any{
			"id":   r.PathValue("id"),
			"type": "card",
			"card": map[string]any{
				"brand":     "visa",
				"last4":     "4242",
				"exp_month": 12,
				"exp_year":  2030,
				"country":   "US",
			},
		})
	})
	mux.HandleFunc("POST /v1/payment_methods/{id}/detach", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
	})

	// Wallet processor surface.
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]any{"access_token": "mock-token", "expires_in": 3600})
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		id := s.nextID("ord")
		s.set(id, "CREATED")
		respond(w, http.StatusOK, map[string]any{
			"id":     id,
			"status": "CREATED",
			"links": []map[string]string{
				{"rel": "approve", "href": "http://localhost:8081/approve/" + id},
			},
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, ok := s.get(id); !ok {
			respond(w, http.StatusNotFound, map[string]string{"message": "no such order"})
			return
		}
		s.set(id, "COMPLETED")
		respond(w, http.StatusOK, capturedOrder(id, s.nextID("cap")))
	})
	mux.HandleFunc("GET /v2/checkout/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		status, ok := s.get(id)
		if !ok {
			respond(w, http.StatusNotFound, map[string]string{"message": "no such order"})
			return
		}
		if status == "COMPLETED" {
			respond(w, http.StatusOK, capturedOrder(id, "cap_"+id))
			return
		}
		respond(w, http.StatusOK, map[string]string{"id": id, "status": status})
	})
	mux.HandleFunc("POST /v2/payments/captures/{id}/refund", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"id": s.nextID("ref"), "status": "COMPLETED"})
	})

	slog.Info("mock provider started", "addr", ":8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func capturedOrder(orderID, captureID string) map[string]any {
	return map[string]any{
		"id":     orderID,
		"status": "COMPLETED",
		"purchase_units": []map[string]any{{
			"payments": map[string]any{
				"captures": []map[string]string{
					{"id": captureID, "status": "COMPLETED"},
				},
			},
		}},
	}
}
