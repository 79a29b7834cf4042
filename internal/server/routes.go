package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/memory"
)

// QueryRequest is the body of /api/query and /api/answer.
type QueryRequest struct {
	Text       string   `json:"text"`
	Project    string   `json:"project,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	TopK       int      `json:"top_k,omitempty"`
	Since      string   `json:"since,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	CompareRaw bool     `json:"compare_raw,omitempty"`
}

// Query converts the request into an engine query.
func (req QueryRequest) Query() (memory.Query, error) {
	q := memory.Query{
		Text:      req.Text,
		Project:   req.Project,
		SessionID: req.SessionID,
		TopK:      req.TopK,
		Threshold: req.Threshold,
	}
	if req.Since != "" {
		since, outcome := memory.ParseTimestamp(req.Since)
		if outcome != memory.TimeOK {
			return q, fmt.Errorf("since: unparsable timestamp %q", req.Since)
		}
		q.Since = since
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 2) {
		return q, fmt.Errorf("threshold out of range: %v", *req.Threshold)
	}
	return q, nil
}

// AnswerResponse is returned by /api/answer.
type AnswerResponse struct {
	Answer   string         `json:"answer"`
	Raw      string         `json:"raw,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Context  string         `json:"context"`
	Result   *engine.Result `json:"result"`
}

// LifecycleRequest is the optional body of /api/lifecycle/run.
type LifecycleRequest struct {
	DaysOld int `json:"days_old,omitempty"`
}

// LifecycleResponse carries the run report and any joined errors.
type LifecycleResponse struct {
	Report *engine.Report `json:"report"`
	Error  string         `json:"error,omitempty"`
}

// IngestResponse reports how many records were written.
type IngestResponse struct {
	Ingested int           `json:"ingested"`
	Failed   []IngestError `json:"failed,omitempty"`
}

type IngestError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, memory.Query, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, memory.Query{}, false
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return req, memory.Query{}, false
	}
	q, err := req.Query()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, q, false
	}
	return req, q, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	_, q, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	req, q, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	ans, err := s.engine.Responder.Answer(r.Context(), q, req.CompareRaw)
	if err != nil {
		s.logger.Warn("answer failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AnswerResponse{
		Answer:   ans.Answer,
		Raw:      ans.Raw,
		Provider: ans.Provider,
		Context:  engine.ContextBlock(ans.Result.Retained),
		Result:   ans.Result,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var records []memory.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: expected an array of records")
		return
	}

	resp := IngestResponse{}
	for _, rec := range records {
		if _, err := s.engine.Ingest(r.Context(), rec); err != nil {
			resp.Failed = append(resp.Failed, IngestError{ID: rec.ID, Error: err.Error()})
			continue
		}
		resp.Ingested++
	}

	status := http.StatusCreated
	if resp.Ingested == 0 && len(resp.Failed) > 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleLifecycleRun(w http.ResponseWriter, r *http.Request) {
	var req LifecycleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	start := time.Now()
	report, err := s.engine.Lifecycle.RunOlderThan(r.Context(), req.DaysOld)
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case report == nil && err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := LifecycleResponse{Report: report}
	if err != nil {
		resp.Error = err.Error()
	}
	s.logger.Info("lifecycle run via api", "groups", report.Groups, "elapsed", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	id := chi.URLParam(r, "id")
	boost, err := s.ledger.Boost(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "boost": boost})
}
