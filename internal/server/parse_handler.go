package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// errNoCredentials is answered when the server runs without app credentials
var errNoCredentials = errors.New("Feishu API credentials are not configured")

type parseRequest struct {
	URL string `json:"url"`
}

// ParseHandler ingests the document named by the request body and answers {content, stats}
func (s *Server) ParseHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.ingestor == nil {
		s.logger.ErrorContext(ctx, "parse requested without credentials")
		writeError(w, errNoCredentials)
		return
	}

	var req parseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, &ValidationError{Field: "url", Reason: "required parameter missing"})
		return
	}

	result, err := s.ingestor.Ingest(ctx, req.URL)
	if err != nil {
		s.logger.WarnContext(ctx, "parse failed",
			"error", err,
			"url", req.URL,
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
