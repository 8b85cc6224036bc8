package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/inmolabs/asesorbot/internal/models"
)

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sendMessageHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.sendMessageHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(req.Number)
	if err != nil {
		slog.Warn("Server.sendMessageHandler: recipient validation failed", "error", err, "original", req.Number)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.msgService.SendMessage(r.Context(), canonical, req.Message); err != nil {
		slog.Error("Server.sendMessageHandler: failed to send message", "error", err, "to", canonical)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendMessageHandler: message sent", "to", canonical)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", nil))
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.registerHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.registerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.registerHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.orch.TriggerWelcome(r.Context(), req.Number, req.Name); err != nil {
		slog.Error("Server.registerHandler: welcome trigger failed", "error", err, "number", req.Number)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send welcome message"))
		return
	}

	slog.Info("Server.registerHandler: welcome triggered", "number", req.Number)
	writeJSONResponse(w, http.StatusOK, models.Triggered("Welcome flow triggered"))
}

func (s *Server) inquiryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.inquiryHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.InquiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.inquiryHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.inquiryHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.orch.TriggerInquiry(r.Context(), req.Number, req.Question); err != nil {
		slog.Error("Server.inquiryHandler: inquiry trigger failed", "error", err, "number", req.Number)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process inquiry"))
		return
	}

	slog.Info("Server.inquiryHandler: inquiry processed", "number", req.Number)
	writeJSONResponse(w, http.StatusOK, models.Triggered("Inquiry processed"))
}

// blacklistHandler manages the blocked-contact list: POST runs an add, remove
// or check intent; GET lists the stored numbers.
func (s *Server) blacklistHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.blacklistHandler: processing request", "method", r.Method, "path", r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		numbers, err := s.st.BlacklistedContacts(r.Context())
		if err != nil {
			slog.Error("Server.blacklistHandler: failed to fetch blacklist", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch blacklist"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(numbers))

	case http.MethodPost:
		var req models.BlacklistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.blacklistHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("Server.blacklistHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}

		switch req.Intent {
		case models.BlacklistIntentAdd:
			if err := s.st.AddBlacklistedContact(r.Context(), req.Number); err != nil {
				slog.Error("Server.blacklistHandler: add failed", "error", err, "number", req.Number)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to add contact to blacklist"))
				return
			}
			slog.Info("Server.blacklistHandler: contact blacklisted", "number", req.Number)
			writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Contact added to blacklist", nil))
		case models.BlacklistIntentRemove:
			if err := s.st.RemoveBlacklistedContact(r.Context(), req.Number); err != nil {
				slog.Error("Server.blacklistHandler: remove failed", "error", err, "number", req.Number)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to remove contact from blacklist"))
				return
			}
			slog.Info("Server.blacklistHandler: contact removed from blacklist", "number", req.Number)
			writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Contact removed from blacklist", nil))
		case models.BlacklistIntentCheck:
			blocked, err := s.st.IsBlacklisted(r.Context(), req.Number)
			if err != nil {
				slog.Error("Server.blacklistHandler: check failed", "error", err, "number", req.Number)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to check blacklist"))
				return
			}
			writeJSONResponse(w, http.StatusOK, models.Success(map[string]bool{"blacklisted": blocked}))
		}

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// healthHandler provides a health check endpoint for monitoring and load
// balancing. The store read doubles as a liveness probe for the database.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if listings, err := s.st.ActiveListings(r.Context()); err != nil {
		slog.Warn("Health check: store read failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to read inventory"
	} else {
		healthData["active_listings"] = len(listings)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
