package engine

import (
	"context"
	"math"
	"net/http"

	"github.com/rustyeddy/goldpair/admission"
	"github.com/rustyeddy/goldpair/signal"
)

// Response is the webhook answer for one signal.
type Response struct {
	Status int
	Body   Body
}

type Body struct {
	OK               bool           `json:"ok"`
	Action           string         `json:"action,omitempty"`
	PairID           string         `json:"pairId,omitempty"`
	Closed           int            `json:"closed,omitempty"`
	Reason           admission.Code `json:"reason,omitempty"`
	Error            string         `json:"error,omitempty"`
	RemainingMinutes int            `json:"remainingMinutes,omitempty"`
}

func ok(action string) Response {
	return Response{Status: http.StatusOK, Body: Body{OK: true, Action: action}}
}

func fail(status int, code admission.Code, msg string) Response {
	return Response{Status: status, Body: Body{Reason: code, Error: msg}}
}

// StatusFor maps an admission reject to its HTTP status.
func StatusFor(code admission.Code) int {
	switch code {
	case admission.Invalid:
		return http.StatusBadRequest
	case admission.NoApproval:
		return http.StatusForbidden
	case admission.Duplicate, admission.Busy, admission.Quota, admission.Cooldown:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// HandleSignal parses and executes one webhook payload. Broker work runs to
// completion even if the caller goes away.
func (e *Engine) HandleSignal(ctx context.Context, p signal.Payload) Response {
	cmd, err := signal.Parse(p)
	if err != nil {
		e.log.Info().Err(err).Str("signal", p.Signal).Msg("signal rejected")
		return e.count(fail(http.StatusBadRequest, admission.Invalid, err.Error()))
	}
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch c := cmd.(type) {
	case signal.ApprovalUpdate:
		e.admit.Approvals().Apply(c)
		e.log.Info().
			Str("category", string(c.Category())).
			Str("tf", string(c.Timeframe)).
			Bool("approval", c.Approval).
			Msg("zone updated")
		return e.count(ok(c.Kind()))

	case signal.CloseCmd:
		if e.admit.Seen(c.SignalID) {
			return e.count(fail(http.StatusTooManyRequests, admission.Duplicate, "close signal already processed"))
		}
		price := e.last.Price(c.Side)
		n := e.pairs.CloseBySide(ctx, c.Side, price)
		e.log.Info().Str("side", string(c.Side)).Int("pairs", n).Msg("close signal")
		e.gauges()
		r := ok(c.Kind())
		r.Body.Closed = n
		return e.count(r)

	case signal.EntryCmd:
		return e.count(e.enter(ctx, c))
	}
	return e.count(fail(http.StatusBadRequest, admission.Invalid, "unsupported command"))
}

func (e *Engine) enter(ctx context.Context, c signal.EntryCmd) Response {
	req := admission.Request{
		Category: c.Category(),
		Side:     c.Side,
		SignalID: c.SignalID,
		Now:      e.now(),
	}
	d := e.admit.Admit(req)
	if !d.Allowed {
		rj := d.Reject
		e.admission(string(rj.Code))
		e.log.Info().
			Str("category", string(c.Category())).
			Str("signal_id", c.SignalID).
			Str("reason", string(rj.Code)).
			Msg(rj.Msg)
		r := fail(StatusFor(rj.Code), rj.Code, rj.Msg)
		if rj.Code == admission.Cooldown {
			r.Body.RemainingMinutes = int(math.Ceil(rj.Remaining.Minutes()))
		}
		return r
	}

	p, err := e.pairs.OpenPair(ctx, c, e.last)
	if err != nil {
		e.admit.Release(req)
		e.admission("PLACEMENT_FAILED")
		e.log.Error().Err(err).
			Str("category", string(c.Category())).
			Str("signal_id", c.SignalID).
			Msg("pair placement failed")
		return Response{Status: http.StatusInternalServerError, Body: Body{Error: err.Error()}}
	}
	e.admission("ADMITTED")
	e.gauges()

	r := ok(c.Kind())
	r.Body.PairID = p.ID
	return r
}

func (e *Engine) admission(result string) {
	if e.metrics != nil {
		e.metrics.Admission(result)
	}
}

func (e *Engine) count(r Response) Response {
	if e.metrics != nil {
		e.metrics.Webhook(r.Status)
	}
	return r
}
