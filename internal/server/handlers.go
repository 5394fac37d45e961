package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"loanml/pkg/dataprep"
	"loanml/pkg/pipeline"
)

const maxBodyBytes = 1 << 16

type fieldErrorJSON struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error  string           `json:"error"`
	Fields []fieldErrorJSON `json:"fields,omitempty"`
}

type predictResponse struct {
	pipeline.PredictionRecord
	Message string `json:"message"`
}

// predict runs one inference and records its outcome. A non-nil error has
// already been counted and logged.
func (s *Server) predict(r *http.Request, rec dataprep.RawRecord) (pipeline.PredictionRecord, error) {
	ctx := r.Context()
	start := time.Now()
	out, err := s.predictor.Predict(ctx, rec)
	if err != nil {
		if errors.Is(err, dataprep.ErrInvalidInput) {
			s.metrics.RecordInvalidInput(ctx)
			s.logger.Debug("rejected input", zap.Error(err))
			return out, err
		}
		s.metrics.RecordFailure(ctx)
		s.logger.Error("prediction failed", zap.Error(err))
		return out, err
	}
	s.metrics.RecordPrediction(ctx, out.Approved, len(out.Filled), time.Since(start))
	if len(out.Filled) > 0 {
		s.logger.Debug("zero-filled schema columns",
			zap.String("id", out.ID), zap.Strings("columns", out.Filled))
	}
	if s.journal != nil {
		if err := s.journal.Record(ctx, out); err != nil {
			s.logger.Error("journal write failed", zap.String("id", out.ID), zap.Error(err))
		}
	}
	s.logger.Info("prediction served",
		zap.String("id", out.ID),
		zap.Int("label", out.Label),
		zap.Float64("probability", out.Probability))
	return out, nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	rec, err := dataprep.DecodeRecord(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.metrics.RecordInvalidInput(r.Context())
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		status, body := errorBody(err)
		if len(body.Fields) == 0 {
			body.Error = "malformed request body"
		}
		writeJSON(w, status, body)
		return
	}
	out, err := s.predict(r, rec)
	if err != nil {
		status, body := errorBody(err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{PredictionRecord: out, Message: out.Message()})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.predictor.Schema())
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	opts := make(map[string][]string, len(dataprep.Vocabulary))
	for _, f := range dataprep.Vocabulary {
		opts[f.Name] = dataprep.Options(f.Name)
	}
	writeJSON(w, http.StatusOK, opts)
}

// errorBody maps a prediction error to a status and body. Only invalid
// input is described to the caller; anything else is a generic failure.
func errorBody(err error) (int, errorResponse) {
	if errors.Is(err, dataprep.ErrInvalidInput) {
		resp := errorResponse{Error: "invalid input"}
		for _, fe := range fieldErrors(err) {
			resp.Fields = append(resp.Fields, fieldErrorJSON{Field: fe.Field, Value: fe.Value, Reason: fe.Reason})
		}
		return http.StatusBadRequest, resp
	}
	return http.StatusInternalServerError, errorResponse{Error: "prediction unavailable, please try again later"}
}

// fieldErrors flattens the field errors inside a possibly joined error.
func fieldErrors(err error) []*dataprep.FieldError {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*dataprep.FieldError
		for _, e := range joined.Unwrap() {
			out = append(out, fieldErrors(e)...)
		}
		return out
	}
	var fe *dataprep.FieldError
	if errors.As(err, &fe) {
		return []*dataprep.FieldError{fe}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
