package http

import (
	"net/http"

	"davi/internal/core"
	"davi/internal/services"
)

// handleListBills returns the calendar, or with ?upcoming=true only the
// unpaid bills that are overdue or due soon.
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upcoming, err := queryBool(r, "upcoming")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var views []services.BillView
	if upcoming {
		views, err = s.finance.UpcomingBills(r.Context(), userID)
	} else {
		views, err = s.finance.BillCalendar(r.Context(), userID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toBills(views)).Write(w)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req billRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.finance.CreateBill(r.Context(), core.Bill{
		UserID:   userID,
		Title:    sanitizeInput(req.Title),
		Amount:   req.Amount,
		DueDate:  req.DueDate,
		Critical: req.Critical,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(idResponse{ID: id}).Write(w)
}

func (s *Server) handleMarkBillPaid(w http.ResponseWriter, r *http.Request) {
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
	var req billPaidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.finance.MarkBillPaid(r.Context(), userID, id, *req.Paid); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
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
	if err := s.finance.DeleteBill(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
