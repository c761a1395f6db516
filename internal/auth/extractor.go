// Package auth manages user accounts, password verification and the opaque
// access and refresh tokens presented to the HTTP API.
package auth

import (
	"net/http"
	"strings"
)

// TokenSource indicates where a token was extracted from
type TokenSource int

const (
	TokenSourceNone TokenSource = iota
	TokenSourceBearerHeader
	TokenSourceAPIKeyHeader
)

func (s TokenSource) String() string {
	switch s {
	case TokenSourceBearerHeader:
		return "bearer_header"
	case TokenSourceAPIKeyHeader:
		return "api_key_header"
	default:
		return "none"
	}
}

// ExtractedToken contains the extracted token and metadata about extraction
type ExtractedToken struct {
	Token  string
	Source TokenSource

	// IsMalformed is set when a token location was present but empty, as in
	// "Authorization: Bearer" with nothing after it.
	IsMalformed bool
}

// TokenExtractor pulls a token out of a request. Sources are tried in order:
// Authorization: Bearer, then X-API-Key.
type TokenExtractor struct {
	extractors []func(*http.Request) ExtractedToken
}

func NewTokenExtractor() *TokenExtractor {
	return &TokenExtractor{
		extractors: []func(*http.Request) ExtractedToken{
			extractFromBearerHeader,
			extractFromAPIKeyHeader,
		},
	}
}

// Extract returns the first token found, or a malformed result so callers
// can report it.
func (e *TokenExtractor) Extract(r *http.Request) ExtractedToken {
	for _, extractor := range e.extractors {
		result := extractor(r)
		if result.Token != "" || result.IsMalformed {
			return result
		}
	}
	return ExtractedToken{Source: TokenSourceNone}
}

func extractFromBearerHeader(r *http.Request) ExtractedToken {
	auth := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer"
	if len(auth) < len(bearerPrefix) || !strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		return ExtractedToken{}
	}

	rest := auth[len(bearerPrefix):]
	if rest != "" && rest[0] != ' ' {
		// "Bearerxyz" is some other scheme.
		return ExtractedToken{}
	}
	token := strings.TrimSpace(rest)
	if token == "" {
		return ExtractedToken{Source: TokenSourceBearerHeader, IsMalformed: true}
	}
	return ExtractedToken{Token: token, Source: TokenSourceBearerHeader}
}

func extractFromAPIKeyHeader(r *http.Request) ExtractedToken {
	values, present := r.Header["X-Api-Key"]
	if !present {
		return ExtractedToken{}
	}
	token := ""
	if len(values) > 0 {
		token = strings.TrimSpace(values[0])
	}
	if token == "" {
		return ExtractedToken{Source: TokenSourceAPIKeyHeader, IsMalformed: true}
	}
	return ExtractedToken{Token: token, Source: TokenSourceAPIKeyHeader}
}

// SanitizeTokenForLogging shows the first 8 and last 4 characters of a token.
func SanitizeTokenForLogging(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) < 12 {
		return "****"
	}
	return token[:8] + "****" + token[len(token)-4:]
}
