package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"yieldsplit/core/engine"
	"yieldsplit/core/host"
	"yieldsplit/crypto"
	"yieldsplit/services/yieldd/auth"
	"yieldsplit/services/yieldd/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Rate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Series(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func seriesParam(raw string) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, r, "address: %v", err)
		return
	}
	number, err := seriesParam(r.URL.Query().Get("series"))
	if err != nil {
		badRequest(w, r, "series: %v", err)
		return
	}
	acct, err := s.engine.Account(r.Context(), number, addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.URL.Query().Get("owner"))
	if err != nil {
		badRequest(w, r, "owner: %v", err)
		return
	}
	spender, err := parseAddress(r.URL.Query().Get("spender"))
	if err != nil {
		badRequest(w, r, "spender: %v", err)
		return
	}
	amount, err := s.engine.Allowance(r.Context(), owner, spender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event journal disabled", Kind: "unavailable"})
		return
	}
	q := storage.Query{Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(w, r, "after: %v", err)
			return
		}
		q.After = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, r, "limit: %v", err)
			return
		}
		q.Limit = limit
	}
	records, err := s.journal.Events(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event journal disabled", Kind: "unavailable"})
		return
	}
	record, err := s.journal.Receipt(r.Context(), chi.URLParam(r, "hash"))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "receipt not found", Kind: "not_found", RequestID: RequestIDFrom(r.Context())})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// caller returns the authenticated signer. The auth middleware guarantees it
// is present on every route that calls this.
func caller(r *http.Request) *auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// journalReceipt persists a committed receipt. The transaction already
// happened, so failures are logged rather than returned.
func (s *Server) journalReceipt(r *http.Request, op string, receipt *host.Receipt) {
	if s.journal == nil || receipt == nil {
		return
	}
	if err := s.journal.Record(context.WithoutCancel(r.Context()), op, receipt); err != nil {
		s.logger.Error("journal record failed",
			slog.String("op", op),
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("error", err.Error()))
	}
}

// finish journals a successful result and writes it out.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, op string, res *engine.Result, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.journalReceipt(r, op, res.Receipt)
	writeJSON(w, http.StatusOK, resultResponse{Amount: res.Amount.String(), Receipt: renderReceipt(res.Receipt)})
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) amount(w http.ResponseWriter, r *http.Request, raw, field string) (*big.Int, bool) {
	value, err := parseAmount(raw)
	if err != nil {
		badRequest(w, r, "%s: %v", field, err)
		return nil, false
	}
	return value, true
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Shares string `json:"shares"`
	}
	if !decode(w, r, &req) {
		return
	}
	shares, ok := s.amount(w, r, req.Shares, "shares")
	if !ok {
		return
	}
	res, err := s.engine.Deposit(r.Context(), caller(r).Address, shares)
	s.finish(w, r, "deposit", res, err)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Series uint64 `json:"series"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Claim(r.Context(), req.Series, caller(r).Address)
	s.finish(w, r, "claim", res, err)
}

func (s *Server) handleRateRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Series uint64 `json:"series"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := s.engine.RefreshRate(r.Context(), caller(r).Address, req.Series)
	s.finish(w, r, "refresh_rate", res, err)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string `json:"principal"`
		Series    uint64 `json:"series"`
	}
	if !decode(w, r, &req) {
		return
	}
	principal, ok := s.amount(w, r, req.Principal, "principal")
	if !ok {
		return
	}
	res, err := s.engine.Redeem(r.Context(), req.Series, caller(r).Address, principal)
	s.finish(w, r, "redeem", res, err)
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type transferFunc func(ctx context.Context, from, to crypto.Address, amount *big.Int) (*engine.Result, error)

// transfer serves the {to, amount} shaped operations signed by the caller.
func (s *Server) transfer(op string, fn transferFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if !decode(w, r, &req) {
			return
		}
		to, err := parseAddress(req.To)
		if err != nil {
			badRequest(w, r, "to: %v", err)
			return
		}
		amount, ok := s.amount(w, r, req.Amount, "amount")
		if !ok {
			return
		}
		res, err := fn(r.Context(), caller(r).Address, to, amount)
		s.finish(w, r, op, res, err)
	}
}

func (s *Server) handlePrincipalTransfer(w http.ResponseWriter, r *http.Request) {
	s.transfer("pt_transfer", s.engine.TransferPrincipal)(w, r)
}

func (s *Server) handleYieldTransfer(w http.ResponseWriter, r *http.Request) {
	s.transfer("yt_transfer", s.engine.TransferYield)(w, r)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	s.transfer("fund", s.engine.Fund)(w, r)
}

func (s *Server) handleYieldBurn(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := s.amount(w, r, req.Amount, "amount")
	if !ok {
		return
	}
	res, err := s.engine.BurnYield(r.Context(), caller(r).Address, amount)
	s.finish(w, r, "yt_burn", res, err)
}

func (s *Server) handlePrincipalApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Spender   string `json:"spender"`
		Amount    string `json:"amount"`
		ExpiresAt uint64 `json:"expires_at"`
	}
	if !decode(w, r, &req) {
		return
	}
	spender, err := parseAddress(req.Spender)
	if err != nil {
		badRequest(w, r, "spender: %v", err)
		return
	}
	amount, ok := s.amount(w, r, req.Amount, "amount")
	if !ok {
		return
	}
	res, err := s.engine.ApprovePrincipal(r.Context(), caller(r).Address, spender, amount, req.ExpiresAt)
	s.finish(w, r, "pt_approve", res, err)
}

func (s *Server) handlePrincipalTransferFrom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		badRequest(w, r, "from: %v", err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		badRequest(w, r, "to: %v", err)
		return
	}
	amount, ok := s.amount(w, r, req.Amount, "amount")
	if !ok {
		return
	}
	res, err := s.engine.TransferPrincipalFrom(r.Context(), caller(r).Address, from, to, amount)
	s.finish(w, r, "pt_transfer_from", res, err)
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assets string `json:"assets"`
	}
	if !decode(w, r, &req) {
		return
	}
	assets, ok := s.amount(w, r, req.Assets, "assets")
	if !ok {
		return
	}
	res, err := s.engine.VaultDeposit(r.Context(), caller(r).Address, assets)
	s.finish(w, r, "vault_deposit", res, err)
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Shares string `json:"shares"`
	}
	if !decode(w, r, &req) {
		return
	}
	shares, ok := s.amount(w, r, req.Shares, "shares")
	if !ok {
		return
	}
	res, err := s.engine.VaultWithdraw(r.Context(), caller(r).Address, shares)
	s.finish(w, r, "vault_withdraw", res, err)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Maturity uint64 `json:"maturity"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	rolled, receipt, err := s.engine.Rollover(r.Context(), caller(r).Address, req.Maturity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.journalReceipt(r, "rollover", receipt)
	writeJSON(w, http.StatusOK, map[string]interface{}{"rolled_over": rolled, "receipt": renderReceipt(receipt)})
}

func (s *Server) handleVaultYield(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bps uint64 `json:"bps"`
	}
	if !decode(w, r, &req) {
		return
	}
	receipt, err := s.engine.SetVaultYield(r.Context(), caller(r).Address, req.Bps)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.journalReceipt(r, "set_vault_yield", receipt)
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipt": renderReceipt(receipt)})
}
