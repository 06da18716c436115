package http

import (
	"net/http"
	"strconv"

	"davi/internal/core"
)

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	buckets, err := s.finance.ListBuckets(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]bucketResponse, len(buckets))
	for i, b := range buckets {
		out[i] = toBucket(b)
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bucketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.finance.CreateBucket(r.Context(), userID,
		sanitizeInput(req.Name), sanitizeInput(req.Type), req.Percent, sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/buckets/"+strconv.FormatInt(id, 10)).
		Body(idResponse{ID: id}).
		Write(w)
}

func (s *Server) handleUpdateBucket(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bucketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	err = s.finance.UpdateBucket(r.Context(), core.Bucket{
		ID:          id,
		UserID:      userID,
		Name:        sanitizeInput(req.Name),
		Type:        sanitizeInput(req.Type),
		Percent:     req.Percent,
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleUpdateBucketBalance overrides the balance without touching the ledger.
func (s *Server) handleUpdateBucketBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req balanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.finance.UpdateBucketBalance(r.Context(), userID, id, req.Balance); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeleteBucket(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.finance.DeleteBucket(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
