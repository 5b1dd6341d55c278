package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tradepilot/backend/internal/bridge"
	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/pkg/logger"
)

// BridgeHandler handles bridge connection management endpoints
type BridgeHandler struct {
	manager *bridge.Manager
	logger  *logger.Logger
}

// NewBridgeHandler creates a new bridge handler
func NewBridgeHandler(manager *bridge.Manager, log *logger.Logger) *BridgeHandler {
	return &BridgeHandler{
		manager: manager,
		logger:  log,
	}
}

// GetStatus returns the current connection state snapshot
// GET /api/bridge/status
func (h *BridgeHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.manager.State(),
	})
}

// configureRequest is the bridge configuration payload.
type configureRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// Configure validates and stores a bridge configuration, then attempts
// the connection handshake
// POST /api/bridge/configure
func (h *BridgeHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := contracts.BridgeConfig{
		Host:     req.Host,
		Port:     req.Port,
		Login:    req.Login,
		Password: req.Password,
		Server:   req.Server,
	}

	if err := h.manager.Configure(cfg); err != nil {
		var cfgErr *contracts.ConfigError
		if errors.As(err, &cfgErr) {
			respondError(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "configuration failed")
		return
	}

	account, err := h.manager.Connect(r.Context())
	if err != nil {
		if connErr, ok := contracts.AsConnectError(err); ok && connErr.Kind == contracts.ConnectAuth {
			respondError(w, http.StatusUnauthorized, "bridge rejected credentials")
			return
		}
		// Configuration is stored; reconnection continues in the
		// background.
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "bridge connection failed",
			"state":   h.manager.State(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"account": account,
		"state":   h.manager.State(),
	})
}

// Connect retries the connection with the stored configuration
// POST /api/bridge/connect
func (h *BridgeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	account, err := h.manager.Connect(r.Context())
	if err != nil {
		if errors.Is(err, contracts.ErrNotConfigured) {
			respondError(w, http.StatusConflict, "bridge is not configured")
			return
		}
		if connErr, ok := contracts.AsConnectError(err); ok && connErr.Kind == contracts.ConnectAuth {
			respondError(w, http.StatusUnauthorized, "bridge rejected credentials")
			return
		}
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   "bridge connection failed",
			"state":   h.manager.State(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"account": account,
		"state":   h.manager.State(),
	})
}

// RemoveConfiguration drops the stored configuration and disconnects
// DELETE /api/bridge/configure
func (h *BridgeHandler) RemoveConfiguration(w http.ResponseWriter, r *http.Request) {
	h.manager.RemoveConfiguration()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   h.manager.State(),
	})
}

// GetAccount returns fresh account metadata
// GET /api/bridge/account
func (h *BridgeHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.manager.Account(r.Context())
	if err != nil {
		if errors.Is(err, contracts.ErrNotConnected) {
			respondError(w, http.StatusConflict, "bridge is not connected")
			return
		}
		h.logger.WithError(err).Error("Failed to fetch account info")
		respondError(w, http.StatusBadGateway, "failed to fetch account info")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    account,
	})
}
