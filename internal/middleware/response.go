package middleware

import (
	"encoding/json"
	"log"
	"net/http"
)

// errorEnvelope matches the API's error response body.
type errorEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorEnvelope{Status: 0, Message: message, Code: code}); err != nil {
		log.Printf("[HTTP] Failed to encode error response: %v", err)
	}
}
