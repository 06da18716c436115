package http

import (
	"net/http"
	"strconv"

	"davi/internal/core"
)

func (s *Server) handleListGiants(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	progress, err := s.finance.ListGiantProgress(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]giantResponse, len(progress))
	for i, p := range progress {
		out[i] = toGiant(p)
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateGiant(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req giantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.finance.CreateGiant(r.Context(), core.Giant{
		UserID:       userID,
		Name:         sanitizeInput(req.Name),
		TotalToPay:   req.TotalToPay,
		WeeklyGoal:   req.WeeklyGoal,
		InterestRate: req.InterestRate,
		Status:       req.Status,
		Priority:     req.Priority,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/giants/"+strconv.FormatInt(id, 10)+"/forecast").
		Body(idResponse{ID: id}).
		Write(w)
}

func (s *Server) handleDeleteGiant(w http.ResponseWriter, r *http.Request) {
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
	removed, err := s.finance.DeleteGiant(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, core.ErrNotFound)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleRecordGiantPayment responds with the projection after the payment.
func (s *Server) handleRecordGiantPayment(w http.ResponseWriter, r *http.Request) {
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
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	fc, err := s.finance.RecordGiantPayment(r.Context(), core.GiantPayment{
		UserID:  userID,
		GiantID: id,
		Amount:  req.Amount,
		Date:    dateOrToday(req.Date, s.finance.Today()),
		Note:    sanitizeInput(req.Note),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toForecast(fc)).Write(w)
}

func (s *Server) handleForecastGiant(w http.ResponseWriter, r *http.Request) {
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
	fc, err := s.finance.ForecastGiant(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toForecast(fc)).Write(w)
}
