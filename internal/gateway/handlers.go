package gateway

import (
	"errors"
	"io"
	"net/http"

	"docquery/internal/documents"
	"docquery/internal/middleware"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type qaRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id"`
}

// handleRegister handles POST /api/v1/register
// Request: {"email": "...", "password": "..."}
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if problems := decodeJSON(r.Body, &req, "email", "password"); problems != nil {
		writeInvalidInput(w, problems)
		return
	}

	if _, err := g.deps.Auth.Register(r.Context(), req.Email, req.Password); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User registered successfully", nil)
}

// handleLogin handles POST /api/v1/login
// Response carries access_token and refresh_token.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if problems := decodeJSON(r.Body, &req, "email", "password"); problems != nil {
		writeInvalidInput(w, problems)
		return
	}

	pair, err := g.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User logged in successfully", envelope{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// handleRefresh handles POST /api/v1/refresh. The refresh middleware has
// already validated the bearer refresh token.
func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	info := middleware.GetAuthInfo(r.Context())
	if info == nil {
		g.writeError(w, r, errors.New("refresh without auth info"))
		return
	}

	pair, err := g.deps.Auth.Tokens().IssuePair(r.Context(), info.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Tokens refreshed successfully", envelope{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// handleIngest handles POST /api/v1/ingest (multipart form, field "file").
func (g *Gateway) handleIngest(w http.ResponseWriter, r *http.Request) {
	info := middleware.GetAuthInfo(r.Context())

	maxBytes := g.config.Upload.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20) // room for multipart framing
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.writeError(w, r, err)
			return
		}
		writeInvalidInput(w, []string{"'file' Field required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeInvalidInput(w, []string{"'file' Field required"})
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		g.writeError(w, r, &http.MaxBytesError{Limit: maxBytes})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	doc, err := g.deps.Ingester.Ingest(r.Context(), info.UserID, header.Filename, data)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Document ingested successfully", envelope{
		"document_id": doc.ID,
	})
}

// handleListDocuments handles GET /api/v1/list-documents
func (g *Gateway) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	info := middleware.GetAuthInfo(r.Context())

	docs, err := g.deps.Documents.ListByOwner(r.Context(), info.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User documents fetched successfully", envelope{
		"document_data": docs,
	})
}

// handleQA handles POST /api/v1/qa
// Request: {"question": "...", "document_id": "..."}
// Response carries the answer in "result". Documents owned by other users
// are answered like missing ones.
func (g *Gateway) handleQA(w http.ResponseWriter, r *http.Request) {
	info := middleware.GetAuthInfo(r.Context())

	var req qaRequest
	if problems := decodeJSON(r.Body, &req, "question", "document_id"); problems != nil {
		writeInvalidInput(w, problems)
		return
	}

	ctx := documents.WithOwner(r.Context(), info.UserID)
	answer, err := g.deps.QA.Answer(ctx, req.Question, req.DocumentID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Answer to user query generated successfully", envelope{
		"result": answer,
	})
}
