package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stagebridge/pkg/audit"
	"stagebridge/pkg/auth"
	"stagebridge/pkg/httpx"
	"stagebridge/pkg/ident"
	"stagebridge/pkg/ledger"
	"stagebridge/pkg/retry"
)

const (
	zeroAddress = "0x0000000000000000000000000000000000000000"
	maxNoteLen  = 1000
)

type server struct {
	gate         *auth.Gate
	journal      audit.Store
	chains       map[ledger.Target]ledger.Accessor
	defaultChain ledger.Target
	retries      int
	backoff      time.Duration
	limiter      *fixedWindowLimiter
}

func (s *server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(s.limiter.middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/status", s.handleStatus)
	r.Get("/auth/challenge/nonce", s.handleNonce)
	r.Post("/auth/challenge/verify", s.handleVerify)
	r.Get("/history", s.handleHistory)
	r.Post("/set-stage", s.handleSetStage)
	r.Post("/set-note", s.handleSetNote)
	r.Post("/vote", s.handleVote)
	r.Get("/stage-of/{elementId}", s.handleStageOf)
	r.Get("/info/{elementId}", s.handleInfo)
	r.Get("/roster", s.handleRoster)
	r.Get("/votes/{elementId}", s.handleVotes)
	return r
}

// accessorFor resolves a caller-supplied chain name to a configured accessor.
func (s *server) accessorFor(raw string) (ledger.Target, ledger.Accessor, bool) {
	target := ledger.ResolveTarget(raw, s.defaultChain)
	acc, found := s.chains[target]
	return target, acc, found
}

func (s *server) authenticate(w http.ResponseWriter, r *http.Request) *auth.Caller {
	caller, err := s.gate.Authenticate(r.Header.Get("X-API-Key"), r.Header.Get("Authorization"))
	if err != nil {
		httpx.WriteErr(w, 401, "unauthorized")
		return nil
	}
	return caller
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"ok": true, "default": string(s.defaultChain)}
	for target, acc := range s.chains {
		id, err := acc.ChainID(r.Context())
		if err != nil {
			httpx.WriteErr(w, 500, err.Error())
			return
		}
		out[string(target)] = map[string]any{
			"chainId":  id,
			"wallet":   acc.WalletAddress(),
			"contract": acc.ContractAddress(),
		}
	}
	httpx.WriteJSON(w, 200, out)
}

func (s *server) handleNonce(w http.ResponseWriter, r *http.Request) {
	nonce := s.gate.IssueNonce(auth.ClientKey(clientIP(r), r.UserAgent()))
	httpx.WriteJSON(w, 200, map[string]any{"ok": true, "nonce": nonce})
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message   string `json:"message"`
		Signature string `json:"signature"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErr(w, 400, "bad input")
		return
	}
	sess, err := s.gate.VerifyChallenge(auth.ClientKey(clientIP(r), r.UserAgent()), r.Host, req.Message, req.Signature)
	switch {
	case err == nil:
	case err == auth.ErrBadInput:
		httpx.WriteErr(w, 400, "bad input")
		return
	case err == auth.ErrNonceMissing:
		httpx.WriteErr(w, 400, "nonce_missing")
		return
	case err == auth.ErrNotAllowed:
		httpx.WriteErr(w, 403, "not allowed")
		return
	default:
		httpx.WriteErr(w, 401, "invalid_signature")
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"ok":              true,
		"token":           sess.Token,
		"address":         sess.Address,
		"decentralizedId": sess.DID,
	})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	records, err := s.journal.Tail(r.Context(), limit)
	if err != nil {
		httpx.WriteErr(w, 500, err.Error())
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httpx.WriteJSON(w, 200, map[string]any{"ok": true, "records": records})
}

func (s *server) handleSetStage(w http.ResponseWriter, r *http.Request) {
	caller := s.authenticate(w, r)
	if caller == nil {
		return
	}
	var req struct {
		Chain     string `json:"chain"`
		ElementID string `json:"elementId"`
		Stage     *int   `json:"stage"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErr(w, 400, "bad input")
		return
	}
	elementID := strings.TrimSpace(req.ElementID)
	if elementID == "" {
		httpx.WriteErr(w, 400, "elementId is required")
		return
	}
	if req.Stage == nil || *req.Stage < 0 || *req.Stage > 255 {
		httpx.WriteErr(w, 400, "stage must be integer 0..255")
		return
	}
	target, acc, found := s.accessorFor(req.Chain)
	if !found {
		httpx.WriteErr(w, 500, "chain "+string(target)+" is not configured")
		return
	}
	stage := *req.Stage
	key := ident.HashID(elementID)
	tx, block, err := s.confirmedWrite(r.Context(), acc, func() (ledger.Tx, error) {
		return acc.SubmitSetStage(r.Context(), key, uint8(stage))
	})
	if err != nil {
		httpx.WriteErr(w, 502, err.Error())
		return
	}
	rid := httpx.NewRequestID()
	actor, did := s.actorRefs(r.Context(), caller, acc)
	s.appendAudit(r.Context(), audit.Record{
		RequestID: rid, TS: time.Now().UnixMilli(), Type: "setStage", Chain: string(target),
		ElementID: elementID, Stage: &stage, Actor: actor, DID: did,
		TxHash: tx.Hash, BlockNumber: block,
	})
	httpx.WriteJSON(w, 200, map[string]any{"ok": true, "requestId": rid, "txRef": tx.Hash, "confirmationRef": block})
}

func (s *server) handleSetNote(w http.ResponseWriter, r *http.Request) {
	caller := s.authenticate(w, r)
	if caller == nil {
		return
	}
	var req struct {
		Chain     string `json:"chain"`
		ElementID string `json:"elementId"`
		Note      string `json:"note"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErr(w, 400, "bad input")
		return
	}
	elementID := strings.TrimSpace(req.ElementID)
	if elementID == "" {
		httpx.WriteErr(w, 400, "elementId is required")
		return
	}
	if len(req.Note) > maxNoteLen {
		httpx.WriteErr(w, 400, "note too long (max 1000 chars)")
		return
	}
	target, acc, found := s.accessorFor(req.Chain)
	if !found {
		httpx.WriteErr(w, 500, "chain "+string(target)+" is not configured")
		return
	}
	key := ident.HashID(elementID)
	tx, block, err := s.confirmedWrite(r.Context(), acc, func() (ledger.Tx, error) {
		return acc.SubmitSetNote(r.Context(), key, req.Note)
	})
	if err != nil {
		httpx.WriteErr(w, 502, err.Error())
		return
	}
	rid := httpx.NewRequestID()
	actor, did := s.actorRefs(r.Context(), caller, acc)
	note := req.Note
	s.appendAudit(r.Context(), audit.Record{
		RequestID: rid, TS: time.Now().UnixMilli(), Type: "setNote", Chain: string(target),
		ElementID: elementID, Note: &note, Actor: actor, DID: did,
		TxHash: tx.Hash, BlockNumber: block,
	})
	httpx.WriteJSON(w, 200, map[string]any{"ok": true, "requestId": rid, "txRef": tx.Hash, "confirmationRef": block})
}

func (s *server) handleVote(w http.ResponseWriter, r *http.Request) {
	caller := s.authenticate(w, r)
	if caller == nil {
		return
	}
	var req struct {
		Chain     string `json:"chain"`
		ElementID string `json:"elementId"`
		Approve   *bool  `json:"approve"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteErr(w, 400, "bad input")
		return
	}
	elementID := strings.TrimSpace(req.ElementID)
	if elementID == "" {
		httpx.WriteErr(w, 400, "elementId is required")
		return
	}
	if req.Approve == nil {
		httpx.WriteErr(w, 400, "approve is required")
		return
	}
	target, acc, found := s.accessorFor(req.Chain)
	if !found {
		httpx.WriteErr(w, 500, "chain "+string(target)+" is not configured")
		return
	}
	approve := *req.Approve
	key := ident.HashID(elementID)
	tx, block, err := s.confirmedWrite(r.Context(), acc, func() (ledger.Tx, error) {
		return acc.SubmitVote(r.Context(), key, approve)
	})
	if err != nil {
		httpx.WriteErr(w, 502, err.Error())
		return
	}
	rid := httpx.NewRequestID()
	actor, did := s.actorRefs(r.Context(), caller, acc)
	s.appendAudit(r.Context(), audit.Record{
		RequestID: rid, TS: time.Now().UnixMilli(), Type: "vote", Chain: string(target),
		ElementID: elementID, Approve: &approve, Actor: actor, DID: did,
		TxHash: tx.Hash, BlockNumber: block,
	})
	httpx.WriteJSON(w, 200, map[string]any{"ok": true, "requestId": rid, "txRef": tx.Hash, "confirmationRef": block})
}

func (s *server) handleStageOf(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "elementId"))
	if raw == "" {
		httpx.WriteErr(w, 400, "elementId required")
		return
	}
	target, acc, found := s.accessorFor(r.URL.Query().Get("chain"))
	if !found {
		httpx.WriteErr(w, 500, "chain "+string(target)+" is not configured")
		return
	}
	res := acc.StageOf(r.Context(), ident.HashID(raw))
	if !res.Supported() {
		httpx.WriteErr(w, 502, "stageOf unavailable")
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"ok": true, "chain": target, "elementId": raw, "stage": int(res.Value),
	})
}

// handleInfo composes the aggregate best-effort: each field is read
// independently and included only when the chain answered.
func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "elementId"))
	if raw == "" {
		httpx.WriteErr(w, 400, "elementId required")
		return
	}
	target, acc, found := s.accessorFor(r.URL.Query().Get("chain"))
	if !found {
		httpx.WriteErr(w, 500, "chain "+string(target)+" is not configured")
		return
	}
	ctx := r.Context()
	key := ident.HashID(raw)
	out := map[string]any{"ok": true, "chain": target, "elementId": raw}
	if res := acc.StageOf(ctx, key); res.Supported() {
		out["stage"] = int(res.Value)
	}
	if res := acc.UpdatedAt(ctx, key); res.Supported() {
		out["updatedAt"] = res.Value
		if res.Value > 0 {
			out["updatedAtISO"] = time.Unix(int64(res.Value), 0).UTC().Format(time.RFC3339)
		}
	}
	if res := acc.NoteOf(ctx, key); res.Supported() {
		out["note"] = res.Value
	}
	if res := acc.Version(ctx); res.Supported() {
		out["version"] = res.Value
	}
	httpx.WriteJSON(w, 200, out)
}

func (s *server) handleRoster(w http.ResponseWriter, r *http.Request) {
	target, acc, found := s.accessorFor(r.URL.Query().Get("chain"))
	if !found {
		httpx.WriteErr(w, 500, "chain "+string(target)+" is not configured")
		return
	}
	voters := []string{}
	if res := acc.Voters(r.Context()); res.Supported() {
		voters = res.Value
	}
	httpx.WriteJSON(w, 200, map[string]any{"ok": true, "chain": target, "voters": voters})
}

func (s *server) handleVotes(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "elementId"))
	if raw == "" {
		httpx.WriteErr(w, 400, "elementId required")
		return
	}
	target, acc, found := s.accessorFor(r.URL.Query().Get("chain"))
	if !found {
		httpx.WriteErr(w, 500, "chain "+string(target)+" is not configured")
		return
	}
	ctx := r.Context()
	key := ident.HashID(raw)

	var voters []string
	if res := acc.Voters(ctx); res.Supported() {
		voters = res.Value
	}
	perVoter := []map[string]any{}
	for _, addr := range voters {
		if addr == "" || addr == zeroAddress {
			continue
		}
		row := map[string]any{"address": addr, "voted": nil}
		if res := acc.HasVoted(ctx, key, addr); res.Supported() {
			row["voted"] = res.Value
		}
		perVoter = append(perVoter, row)
	}

	out := map[string]any{"ok": true, "chain": target, "elementId": raw, "voters": perVoter}
	if res := acc.StageOf(ctx, key); res.Supported() {
		out["stage"] = int(res.Value)
	}
	if res := acc.ApprovalsOf(ctx, key); res.Supported() {
		out["approvals"] = int(res.Value)
	}
	httpx.WriteJSON(w, 200, out)
}

// confirmedWrite submits then confirms, each under the bounded retry policy.
// The caller-visible write is synchronous with ledger confirmation.
func (s *server) confirmedWrite(ctx context.Context, acc ledger.Accessor, submit func() (ledger.Tx, error)) (ledger.Tx, uint64, error) {
	var tx ledger.Tx
	if err := retry.Do(ctx, s.retries, s.backoff, func() error {
		var err error
		tx, err = submit()
		return err
	}); err != nil {
		return ledger.Tx{}, 0, err
	}
	var block uint64
	if err := retry.Do(ctx, s.retries, s.backoff, func() error {
		var err error
		block, err = acc.ConfirmTx(ctx, tx)
		return err
	}); err != nil {
		return tx, 0, err
	}
	return tx, block, nil
}

func (s *server) appendAudit(ctx context.Context, rec audit.Record) {
	if err := s.journal.Append(ctx, rec); err != nil {
		log.Printf("audit append failed: %v", err)
	}
}

func (s *server) actorRefs(ctx context.Context, caller *auth.Caller, acc ledger.Accessor) (actor, did *string) {
	if caller == nil || caller.Address == "" {
		return nil, nil
	}
	addr := caller.Address
	actor = &addr
	if id, err := acc.ChainID(ctx); err == nil {
		d := "did:pkh:eip155:" + strconv.FormatUint(id, 10) + ":" + addr
		did = &d
	}
	return actor, did
}

func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			if v := strings.TrimSpace(parts[0]); v != "" {
				return v
			}
		}
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
