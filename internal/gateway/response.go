package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"reflect"

	"docquery/internal/auth"
	"docquery/internal/documents"
	"docquery/internal/middleware"
	"docquery/internal/qa"
)

// Client-facing messages. Every error response carries one of these.
const (
	msgInvalidInput     = "Invalid input data"
	msgUnsupportedType  = "Only .txt and .pdf files are supported"
	msgEmptyFile        = "File is empty"
	msgInvalidUTF8      = "Failed to decode text file as UTF-8"
	msgPDFParse         = "Failed to parse PDF file"
	msgFileTooLarge     = "File is too large"
	msgEmailTaken       = "Email already registered"
	msgInvalidEmail     = "Invalid email address"
	msgEmptyPassword    = "Password cannot be empty"
	msgBadCredentials   = "Invalid credentials"
	msgInvalidToken     = "Invalid token"
	msgTokenExpired     = "Token has expired"
	msgUpstreamFailure  = "Failed to generate answer"
	msgInternal         = "Something went wrong"
	msgNotFound         = "Resource not found"
	msgMethodNotAllowed = "Method not allowed"
)

// envelope is the body of every API response. Extra fields are merged in
// next to status, message and code.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Gateway] Failed to encode response: %v", err)
	}
}

// writeSuccess writes {"status": 1, "message": ..., "code": ...} plus fields.
func writeSuccess(w http.ResponseWriter, code int, message string, fields envelope) {
	body := envelope{"status": 1, "message": message, "code": code}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func writeFailure(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{"status": 0, "message": message, "code": code})
}

// writeInvalidInput answers 422 with the individual problems.
func writeInvalidInput(w http.ResponseWriter, problems []string) {
	if len(problems) == 0 {
		problems = []string{msgInvalidInput}
	}
	writeJSON(w, http.StatusUnprocessableEntity, envelope{
		"status":  0,
		"message": msgInvalidInput,
		"error":   problems,
		"code":    http.StatusUnprocessableEntity,
	})
}

// errorResponse maps a service error to its status code and client message.
func errorResponse(err error) (int, string) {
	var validation *qa.ValidationError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.Is(err, documents.ErrUnsupportedType):
		return http.StatusBadRequest, msgUnsupportedType
	case errors.Is(err, documents.ErrEmptyFile):
		return http.StatusBadRequest, msgEmptyFile
	case errors.Is(err, documents.ErrInvalidUTF8):
		return http.StatusBadRequest, msgInvalidUTF8
	case errors.Is(err, documents.ErrPDFParse):
		return http.StatusBadRequest, msgPDFParse
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, msgFileTooLarge
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusBadRequest, msgEmailTaken
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, msgInvalidEmail
	case errors.Is(err, auth.ErrEmptyPassword):
		return http.StatusBadRequest, msgEmptyPassword
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgBadCredentials
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, msgTokenExpired
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, msgInvalidToken
	case errors.Is(err, qa.ErrUpstreamModel):
		return http.StatusBadGateway, msgUpstreamFailure
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeError logs err with the request id and writes the mapped response.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := errorResponse(err)
	if code >= http.StatusInternalServerError {
		g.logger.Printf("[Gateway] request_id=%s %s %s failed: %v",
			middleware.GetRequestID(r.Context()), r.Method, r.URL.Path, err)
	} else if g.verbose {
		g.logger.Printf("[Gateway] request_id=%s %s %s rejected (%d): %v",
			middleware.GetRequestID(r.Context()), r.Method, r.URL.Path, code, err)
	}
	writeFailure(w, code, message)
}

// decodeJSON decodes a request body into dst. Fields listed in required must
// be present. On failure it returns the problems in the "'field' Message"
// form used by 422 responses.
func decodeJSON(r io.Reader, dst any, required ...string) []string {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil || raw == nil {
		return []string{"'body' Json decode error"}
	}

	var problems []string
	for _, field := range required {
		if v, ok := raw[field]; !ok || string(v) == "null" {
			problems = append(problems, fmt.Sprintf("'%s' Field required", field))
		}
	}
	if len(problems) > 0 {
		return problems
	}

	data, _ := json.Marshal(raw)
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return []string{fmt.Sprintf("'%s' Input should be a valid %s", typeErr.Field, kindName(typeErr.Type))}
		}
		return []string{"'body' Json decode error"}
	}
	return nil
}

func kindName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	default:
		return t.Kind().String()
	}
}
