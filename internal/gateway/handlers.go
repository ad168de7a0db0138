package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"portfolio-systemv1/internal/logger"
	"portfolio-systemv1/internal/model"
	"portfolio-systemv1/internal/service"
	"portfolio-systemv1/internal/store/sqlite"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, svc *service.PortfolioService, hub *Hub) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleConn(conn)
	})

	// REST: record a transaction, list the ledger
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)

		case http.MethodPost:
			var tx transactionRequest
			if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
				writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
				return
			}
			in := tx.toModel()
			ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(in.Symbol, time.Now()))
			out, err := svc.RecordTransaction(ctx, in)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusCreated, out)

		case http.MethodGet:
			txs, err := svc.Transactions(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if txs == nil {
				txs = []model.Transaction{}
			}
			writeJSON(w, http.StatusOK, txs)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// REST: delete one transaction by order id
	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		orderID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if orderID == "" {
			writeError(w, http.StatusBadRequest, errors.New("order id is required"))
			return
		}
		ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(orderID, time.Now()))
		if err := svc.DeleteTransaction(ctx, orderID); err != nil {
			if errors.Is(err, sqlite.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "order_id": orderID})
	})

	// REST: delete every transaction for a symbol
	mux.HandleFunc("/api/symbols/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/symbols/"))
		if symbol == "" {
			writeError(w, http.StatusBadRequest, errors.New("symbol is required"))
			return
		}
		ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(symbol, time.Now()))
		n, err := svc.DeleteSymbol(ctx, symbol)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "deleted": n})
	})

	// REST: current holdings, optionally live-priced
	mux.HandleFunc("/api/holdings", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		live := r.URL.Query().Get("live") == "true"
		positions, err := svc.Positions(r.Context(), live)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if positions == nil {
			positions = []model.Position{}
		}
		writeJSON(w, http.StatusOK, positions)
	})

	// REST: daily invested-vs-market series
	mux.HandleFunc("/api/valuation-history", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		points, err := svc.ValuationHistory(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, points)
	})
}
