package broadcast

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"footprint-chart/internal/chart"
	"footprint-chart/internal/timeframe"
)

type timeframeBody struct {
	Timeframe string `json:"timeframe"`
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	var f chart.Frame
	if !s.do(w, r, func(c *chart.Chart) { f = c.Frame() }) {
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) getOptions(w http.ResponseWriter, r *http.Request) {
	var o chart.Options
	if !s.do(w, r, func(c *chart.Chart) { o = c.Options() }) {
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

// patchOptions merges a partial options object; omitted fields keep their values.
func (s *Server) patchOptions(w http.ResponseWriter, r *http.Request) {
	var p chart.OptionsPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode options"))
		return
	}
	var o chart.Options
	if !s.do(w, r, func(c *chart.Chart) {
		c.UpdateOptions(p)
		o = c.Options()
	}) {
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

func (s *Server) putTimeframe(w http.ResponseWriter, r *http.Request) {
	var body timeframeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode timeframe"))
		return
	}
	var err error
	if !s.do(w, r, func(c *chart.Chart) { err = c.SetTimeframe(body.Timeframe) }) {
		return
	}
	if errors.Is(err, timeframe.ErrUnknownTimeframe) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) postReset(w http.ResponseWriter, r *http.Request) {
	if !s.do(w, r, func(c *chart.Chart) { c.ResetView() }) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// do runs fn on the chart owner and writes 503 when the owner is gone.
func (s *Server) do(w http.ResponseWriter, r *http.Request, fn func(*chart.Chart)) bool {
	if err := s.ctrl.Do(r.Context(), fn); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response write failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
