package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/awase/internal/models"
)

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req models.CorrectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for sys := range req.Hypotheses {
		if s.vocab.SystemIndex(sys) < 0 {
			s.respondError(w, http.StatusBadRequest, "unknown system: "+sys)
			return
		}
	}
	s.logger.Debug("correct request",
		zap.Int("hypotheses", len(req.Hypotheses)),
		zap.Int("source_length", len(req.Source)))
	sel, err := s.pipeline.CorrectOne(r.Context(), s.vocab.Systems, req.Source, req.Hypotheses)
	if err != nil {
		s.logger.Error("correction failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.CorrectResponse{
		Output:  sel.Output,
		Applied: sel.Applied,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      s.pipeline.RunID(),
		"systems":     s.vocab.Systems,
		"types":       len(s.vocab.Types),
		"feature_dim": s.vocab.FeatureDim(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
