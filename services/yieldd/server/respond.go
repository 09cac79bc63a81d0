package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	yserrors "yieldsplit/core/errors"
	"yieldsplit/core/host"
	"yieldsplit/core/types"
	"yieldsplit/crypto"
)

const maxBodyBytes = 1 << 16

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

type receiptResponse struct {
	Hash      string         `json:"hash"`
	Sequence  uint64         `json:"sequence"`
	Timestamp uint64         `json:"timestamp"`
	Events    []*types.Event `json:"events"`
}

type resultResponse struct {
	Amount  string           `json:"amount"`
	Receipt *receiptResponse `json:"receipt,omitempty"`
}

func renderReceipt(r *host.Receipt) *receiptResponse {
	if r == nil {
		return nil
	}
	out := &receiptResponse{Hash: r.HashHex(), Sequence: r.Sequence, Timestamp: r.Timestamp, Events: []*types.Event{}}
	for _, ev := range r.Events {
		out.Events = append(out.Events, ev.Event())
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps engine failures onto HTTP status codes.
func statusFor(err error) int {
	switch yserrors.Kind(err) {
	case yserrors.ErrUnauthorized:
		return http.StatusForbidden
	case yserrors.ErrInvalidAmount:
		return http.StatusBadRequest
	case yserrors.ErrInsufficientBalance, yserrors.ErrInsufficientAllowance,
		yserrors.ErrMaturityNotReached, yserrors.ErrAlreadyInitialized, yserrors.ErrNotInitialized:
		return http.StatusConflict
	case yserrors.ErrUnsupported:
		return http.StatusNotImplemented
	case yserrors.ErrUpstreamQuery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("route", routeOf(r)),
			slog.String("error", msg))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: yserrors.Label(err), RequestID: RequestIDFrom(r.Context())})
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:     fmt.Sprintf(format, args...),
		Kind:      "bad_request",
		RequestID: RequestIDFrom(r.Context()),
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, r, "invalid request body: %v", err)
		return false
	}
	return true
}

var errMissing = errors.New("required")

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errMissing
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", raw)
	}
	return value, nil
}

func parseAddress(raw string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, errMissing
	}
	return crypto.DecodeAddress(trimmed)
}
