package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/tokens"
)

type mintTokenRequest struct {
	Label     string `json:"label,omitempty"`
	Scope     string `json:"scope"`
	ProjectID string `json:"projectId,omitempty"`
}

type mintTokenResponse struct {
	Record *tokens.Record `json:"record"`
	Secret string         `json:"secret"`
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.tokens.List())
	case http.MethodPost:
		s.handleMintToken(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
	}
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apierrors.New(apierrors.CodeInvalidRequest, "malformed request body"))
		return
	}

	result, err := s.tokens.Mint(tokens.MintRequest{
		Label:     req.Label,
		Scope:     tokens.Scope(req.Scope),
		ProjectID: req.ProjectID,
	})
	if err != nil {
		e := asError(err)
		writeError(w, statusForCode(e.Code), e)
		return
	}

	writeJSON(w, http.StatusCreated, mintTokenResponse{Record: result.Record, Secret: result.Secret})
}

func (s *Server) handleTokenByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
		return
	}

	id := pathSuffix(r, "/v1/tokens/")
	if id == "" {
		writeError(w, http.StatusBadRequest, apierrors.New(apierrors.CodeInvalidRequest, "token id required"))
		return
	}

	if err := s.tokens.Revoke(id); err != nil {
		e := asError(err)
		writeError(w, statusForCode(e.Code), e)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
