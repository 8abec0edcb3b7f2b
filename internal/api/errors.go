package api

import (
	"encoding/json"
	"net/http"

	"github.com/lexiqai/tts-gateway/internal/tts"
)

const authHelpURL = "https://cloud.google.com/docs/authentication/getting-started"

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	Message      string `json:"message,omitempty"`
	AuthRequired bool   `json:"authRequired,omitempty"`
	HelpURL      string `json:"helpUrl,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// errorResponse maps a pipeline error to its HTTP status and body
func errorResponse(err error, requestID string) (int, ErrorResponse) {
	kind := tts.KindOf(err)
	resp := ErrorResponse{Kind: string(kind), RequestID: requestID}

	switch kind {
	case tts.KindInvalidArgument:
		resp.Error = "Invalid request parameters"
		resp.Message = err.Error()
		return http.StatusBadRequest, resp
	case tts.KindAuthRequired:
		resp.Error = "Authentication required"
		resp.Message = "Google Cloud credentials are missing or invalid"
		resp.AuthRequired = true
		resp.HelpURL = authHelpURL
		return http.StatusUnauthorized, resp
	case tts.KindRateLimited:
		resp.Error = "Rate limit exceeded"
		resp.Message = "Too many requests. Please try again later."
		return http.StatusTooManyRequests, resp
	default:
		resp.Kind = string(tts.KindInternal)
		resp.Error = "Internal server error"
		return http.StatusInternalServerError, resp
	}
}

func writeError(w http.ResponseWriter, err error, requestID string) {
	status, body := errorResponse(err, requestID)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
