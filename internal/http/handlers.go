package http

import (
	"net/http"

	"davi/internal/auth"
	"davi/internal/core"
)

var errNotAuthenticated = &requestError{status: http.StatusUnauthorized, msg: "not authenticated"}

// currentUser returns the user id placed in the context by auth.Middleware.
func currentUser(r *http.Request) (int64, error) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID <= 0 {
		return 0, errNotAuthenticated
	}
	return userID, nil
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := s.finance.CreateUser(r.Context(), sanitizeInput(req.Name), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toUser(u)).Write(w)
}

// handleCreateSession exchanges credentials for a bearer token.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := s.finance.Authenticate(r.Context(), sanitizeInput(req.Name), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil {
		writeError(w, r, &requestError{status: http.StatusUnauthorized, msg: "invalid credentials"})
		return
	}

	token, err := s.tokens.Issue(u.ID, u.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(sessionResponse{
			Token:     token.Value,
			TokenType: "Bearer",
			ExpiresAt: token.ExpiresAt,
			User:      toUser(*u),
		}).
		Write(w)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.finance.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toProfile(p)).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.finance.UpdateProfile(r.Context(), userID, req.MonthlyIncome, req.MonthlyExpense)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toProfile(p)).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.finance.Dashboard(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toDashboard(d)).Write(w)
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ms, err := s.finance.ListMovements(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toMovements(ms)).Write(w)
}

func (s *Server) handleRecordMovement(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req movementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.finance.RecordMovement(r.Context(), userID, req.Kind, req.Amount,
		dateOrToday(req.Date, s.finance.Today()), sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(idResponse{ID: id}).Write(w)
}

// handleDistribute splits an amount across buckets. With record set, the
// unallocated parent movement is written in the same unit of work.
func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req distributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = core.ModeAuto
	}
	dreq := core.DistributionRequest{
		UserID:         userID,
		Amount:         req.Amount,
		Kind:           req.Kind,
		Date:           dateOrToday(req.Date, s.finance.Today()),
		Description:    sanitizeInput(req.Description),
		Mode:           mode,
		TargetBucketID: req.TargetBucketID,
	}

	var d core.Distribution
	if req.Record {
		d, err = s.finance.RecordAndDistribute(r.Context(), dreq)
	} else {
		d, err = s.finance.Distribute(r.Context(), dreq)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toDistribution(d)).Write(w)
}
