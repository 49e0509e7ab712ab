package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"billetera/internal/core"
	"billetera/internal/ledger"
	"billetera/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	txs, err := s.ledger.ListTransactions(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"transactions": NewTransactionResponses(txs)}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	in, err := ParseCreateTransaction(w, r)
	if err != nil {
		s.writeError(w, r, log.OpRecord, err)
		return
	}

	tx, err := s.ledger.Record(r.Context(), ledger.RecordRequest{
		UserID:      u.ID,
		CategoryID:  in.CategoryID,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: in.Description,
	})
	if err != nil {
		s.writeError(w, r, log.OpRecord, err)
		return
	}

	// The committed transaction is the answer even if this read fails.
	resp := CreatedResponse{Transaction: NewTransactionResponse(tx)}
	if b, err := s.ledger.CurrentBalance(r.Context(), u.ID); err == nil {
		resp.Balance = NewBalanceResponse(u.ID, b)
	} else {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Balance read after record failed",
			log.FieldTransactionID, tx.ID, log.FieldError, err)
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID).
		Body(resp).
		Write(w)
}

// handleDeleteTransaction answers 404 for transactions of other users so
// ids cannot be probed.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.ledger.Transaction(r.Context(), id)
	if err == nil && existing.UserID != u.ID {
		err = core.ErrTransactionNotFound
	}
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}

	removed, err := s.ledger.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}

	resp := map[string]any{"transaction": NewTransactionResponse(removed)}
	if b, err := s.ledger.CurrentBalance(r.Context(), u.ID); err == nil {
		resp["balance"] = NewBalanceResponse(u.ID, b)
	} else {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Balance read after delete failed",
			log.FieldTransactionID, removed.ID, log.FieldError, err)
	}
	NewJSONResponse().Body(resp).Write(w)
}
