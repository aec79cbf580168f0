package http

import (
	"context"
	"net/http"
	"time"

	"secureflow/internal/core"
	"secureflow/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.tracer.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"timestamp":           time.Now().Format(time.RFC3339),
		"uptime":              time.Since(s.started).Round(time.Second).String(),
		"requests":            m.TotalRequests,
		"avg_response_ms":     m.AverageResponseTime().Milliseconds(),
		"rate_limited":        s.rateLimiter.Hits(),
		"suspicious_requests": s.detector.GetMetrics().SuspiciousRequests,
	})
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"database": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "database": "ok"})
}

func (s *Server) handleList(kind core.RecordKind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recs, err := s.records.List(r.Context(), kind, filterFromQuery(r))
		if err != nil {
			fail(w, r, log.OpList, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})
}

// handlePeriods lists the distinct sheet labels of kind, newest first.
func (s *Server) handlePeriods(kind core.RecordKind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if periods, ok := s.periodsCache.Get(string(kind)); ok {
			writeJSON(w, http.StatusOK, periods)
			return
		}
		periods, err := s.records.Periods(r.Context(), kind)
		if err != nil {
			fail(w, r, log.OpPeriods, err)
			return
		}
		if periods == nil {
			periods = []string{}
		}
		s.periodsCache.Set(string(kind), periods)
		writeJSON(w, http.StatusOK, periods)
	})
}

func (s *Server) handleUpdateRenewal(w http.ResponseWriter, r *http.Request) {
	id, body, ok := s.editRequest(w, r)
	if !ok {
		return
	}
	if err := s.records.UpdateRenewal(r.Context(), id, core.RenewalEditFromMap(body)); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true, Msg: "Renovação atualizada"})
}

func (s *Server) handleUpdateInstallment(w http.ResponseWriter, r *http.Request) {
	id, body, ok := s.editRequest(w, r)
	if !ok {
		return
	}
	if err := s.records.UpdateInstallment(r.Context(), id, core.InstallmentEditFromMap(body)); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true, Msg: "Parcela atualizada"})
}

func (s *Server) handleUpdateNewContract(w http.ResponseWriter, r *http.Request) {
	id, body, ok := s.editRequest(w, r)
	if !ok {
		return
	}
	if err := s.records.UpdateNewContract(r.Context(), id, core.NewContractInputFromMap(body)); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true, Msg: "Contrato novo atualizado"})
}

// handleCreateNewContract stores a contract typed into the UI. The optional
// mes_referencia picks its month; the current month is the default.
func (s *Server) handleCreateNewContract(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(w, r)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	rec, err := s.records.CreateNewContract(r.Context(), core.NewContractInputFromMap(body), stringField(body, "mes_referencia"))
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		okBody
		Record core.Record `json:"record"`
	}{okBody{OK: true, Msg: "Contrato novo criado"}, rec})
}

func (s *Server) editRequest(w http.ResponseWriter, r *http.Request) (int64, map[string]any, bool) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return 0, nil, false
	}
	body, err := decodeObject(w, r)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return 0, nil, false
	}
	return id, body, true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	key := time.Now().Format(core.DateLayout)
	if d, ok := s.dashboardCache.Get(key); ok {
		writeJSON(w, http.StatusOK, d)
		return
	}
	d, err := s.records.Dashboard(r.Context())
	if err != nil {
		fail(w, r, log.OpDashboard, err)
		return
	}
	s.dashboardCache.Set(key, d)
	writeJSON(w, http.StatusOK, d)
}
