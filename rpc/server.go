// Package rpc is the HTTP/JSON facade over a running node: transaction
// submission, consensus status, block and account queries.
package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/MegaHoot/pecunovus/core"
)

// NodeAPI is what the server needs from the node. *core.Node satisfies it.
type NodeAPI interface {
	NodeID() string
	Snapshot() core.ConsensusSnapshot
	SubmitTx(tx core.Tx) (core.IngestResult, error)
	GetBlock(slot uint64) ([]byte, bool, error)
	GetAccount(key string) (core.Account, bool, error)
	MempoolSize() int
	PeerList() []core.PeerInfo
}

// Server hosts the JSON facade.
type Server struct {
	addr   string
	node   NodeAPI
	auth   AuthConfig
	logger *logrus.Logger
	http   *http.Server
}

// NewServer builds a server bound to addr over the given node.
func NewServer(addr string, node NodeAPI, auth AuthConfig, lg *logrus.Logger) *Server {
	return &Server{addr: addr, node: node, auth: auth, logger: lg}
}

// Router configures the HTTP routes. Everything except /health sits behind
// the auth middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(s.logger))
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.auth.Middleware)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	api.HandleFunc("/block/{slot}", s.handleBlock).Methods(http.MethodGet)
	api.HandleFunc("/account/{key}", s.handleAccount).Methods(http.MethodGet)
	api.HandleFunc("/tx", s.handleSubmitTx).Methods(http.MethodPost)
	return r
}

// Start serves until ctx is cancelled. It returns once the server has begun
// listening; serve errors other than a clean shutdown are logged.
func (s *Server) Start(ctx context.Context) {
	s.http = &http.Server{Addr: s.addr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()
	go func() {
		s.logger.Infof("rpc listening on %s", s.addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("rpc server: %v", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "node_id": s.node.NodeID()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.node.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slot":        snap.Slot,
		"epoch":       snap.Epoch,
		"total_stake": snap.TotalStake,
		"pending":     len(snap.PendingProposals),
		"finalized":   len(snap.Finalized),
		"mempool":     s.node.MempoolSize(),
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.PeerList())
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.ParseUint(mux.Vars(r)["slot"], 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid slot")
		return
	}
	data, ok, err := s.node.GetBlock(slot)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slot":      slot,
		"block_hex": hex.EncodeToString(data),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	acc, ok, err := s.node.GetAccount(key)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var tx core.Tx
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid transaction body")
		return
	}
	res, err := s.node.SubmitTx(tx)
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !res.Accepted {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"accepted": false,
			"reason":   res.Reason,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"tx_id":    res.ID.Hex(),
	})
}
