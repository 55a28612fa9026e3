package http

import (
	"net/http"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	"expensetracker/internal/dispatch"
	"expensetracker/internal/expenses"
	"expensetracker/internal/log"
	"expensetracker/internal/result"

	"github.com/google/uuid"
)

// authorizeOwner resolves {userId} and checks it names the authenticated user.
func (s *Server) authorizeOwner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	owner, rerr := ParsePathID(r, "userId")
	if rerr != nil {
		ErrorResponse(rerr.Status, rerr.Message).Write(w)
		return uuid.Nil, false
	}
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		UnauthorizedError("authentication required").Write(w)
		return uuid.Nil, false
	}
	if u.ID != owner {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Access to another user's expenses denied",
			log.FieldUsername, u.Username, log.FieldOwnerID, owner.String())
		ForbiddenError("forbidden").Write(w)
		return uuid.Nil, false
	}
	return owner, true
}

func (s *Server) expenseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, rerr := ParsePathID(r, "expenseId")
	if rerr != nil {
		ErrorResponse(rerr.Status, rerr.Message).Write(w)
		return uuid.Nil, false
	}
	return id, true
}

// settle writes the error response for an infrastructure error or a
// Failure and reports whether the caller should write the success response.
func settle[T any](s *Server, w http.ResponseWriter, r *http.Request, op string, res result.Result[T], err error) bool {
	if err != nil {
		s.internalError(w, r, op, err)
		return false
	}
	if res.IsFailure() {
		switch res.Kind() {
		case result.NotFound:
			NotFoundError(res.Error()).Write(w)
		case result.Invalid:
			UnprocessableEntityError(res.Error()).Write(w)
		default:
			InternalServerError().Write(w)
		}
		return false
	}
	return true
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}

	res, err := dispatch.Send[result.Result[[]core.Expense]](r.Context(), s.dispatcher,
		expenses.ListExpensesByOwner{OwnerID: owner})
	if !settle(s, w, r, log.OpList, res, err) {
		return
	}
	NewJSONResponse().Body(toExpenseResponses(res.Value())).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	in, rerr := ParseExpenseBody(w, r)
	if rerr != nil {
		ErrorResponse(rerr.Status, rerr.Message).Write(w)
		return
	}

	res, err := dispatch.Send[result.Result[core.Expense]](r.Context(), s.dispatcher, expenses.CreateExpense{
		OwnerID:     owner,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Category:    in.Category,
		Date:        in.Date,
		Description: in.Description,
	})
	if !settle(s, w, r, log.OpCreate, res, err) {
		return
	}

	e := res.Value()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/users/"+owner.String()+"/expenses/"+e.ID.String()).
		Body(toExpenseResponse(e)).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	id, ok := s.expenseID(w, r)
	if !ok {
		return
	}

	res, err := dispatch.Send[result.Result[core.Expense]](r.Context(), s.dispatcher,
		expenses.GetExpenseByID{OwnerID: owner, ExpenseID: id})
	if !settle(s, w, r, log.OpRead, res, err) {
		return
	}
	NewJSONResponse().Body(toExpenseResponse(res.Value())).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	id, ok := s.expenseID(w, r)
	if !ok {
		return
	}
	in, rerr := ParseExpenseBody(w, r)
	if rerr != nil {
		ErrorResponse(rerr.Status, rerr.Message).Write(w)
		return
	}

	res, err := dispatch.Send[result.Result[bool]](r.Context(), s.dispatcher, expenses.UpdateExpense{
		OwnerID:     owner,
		ExpenseID:   id,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Category:    in.Category,
		Date:        in.Date,
		Description: in.Description,
	})
	if !settle(s, w, r, log.OpUpdate, res, err) {
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.authorizeOwner(w, r)
	if !ok {
		return
	}
	id, ok := s.expenseID(w, r)
	if !ok {
		return
	}

	res, err := dispatch.Send[result.Result[bool]](r.Context(), s.dispatcher,
		expenses.DeleteExpense{OwnerID: owner, ExpenseID: id})
	if !settle(s, w, r, log.OpDelete, res, err) {
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
