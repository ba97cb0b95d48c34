// Package admission decides whether an entry signal may open a pair. Rules
// run in a fixed order and the first failure is the answer.
package admission

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/signal"
)

type Code string

const (
	Duplicate  Code = "DUPLICATE"
	Busy       Code = "BUSY"
	NoApproval Code = "NO_APPROVAL"
	Quota      Code = "QUOTA"
	Cooldown   Code = "COOLDOWN"
	Invalid    Code = "INVALID"
)

// Reject explains why a signal was turned away.
type Reject struct {
	Code Code
	Msg  string
	// Remaining is set for COOLDOWN.
	Remaining time.Duration
}

func (r *Reject) Error() string { return string(r.Code) + ": " + r.Msg }

type Decision struct {
	Allowed bool
	Reject  *Reject
}

func (d *Decision) deny(code Code, msg string) {
	d.Allowed = false
	d.Reject = &Reject{Code: code, Msg: msg}
}

type Policy struct {
	MaxPerCategory   int
	SideCooldown     time.Duration
	RapidFireLock    time.Duration
	SignalIDCapacity int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxPerCategory:   1,
		SideCooldown:     15 * time.Minute,
		RapidFireLock:    2 * time.Second,
		SignalIDCapacity: DefaultSeenCapacity,
	}
}

// Request is an entry awaiting admission.
type Request struct {
	Category signal.Category
	Side     market.Side
	SignalID string
	Now      time.Time
}

// QuotaFunc counts the pairs of a category that still hold both legs and
// have not taken their partial.
type QuotaFunc func(signal.Category) int

type rule struct {
	name  string
	check func(c *Controller, r Request, d *Decision)
}

// rules is the admission pipeline, in evaluation order.
var rules = []rule{
	{"idempotency", checkDuplicate},
	{"rapid-fire", checkBusy},
	{"approval", checkApproval},
	{"quota", checkQuota},
	{"cooldown", checkCooldown},
}

type Controller struct {
	policy       Policy
	approvals    *ApprovalRegistry
	seen         *SeenSet
	open         QuotaFunc
	busyUntil    time.Time
	lastAdmitted map[market.Side]time.Time
	// prevAdmitted holds each side's stamp from before its latest admission.
	prevAdmitted map[market.Side]time.Time
}

func NewController(p Policy, approvals *ApprovalRegistry, open QuotaFunc) *Controller {
	if approvals == nil {
		approvals = NewApprovalRegistry()
	}
	if open == nil {
		open = func(signal.Category) int { return 0 }
	}
	return &Controller{
		policy:       p,
		approvals:    approvals,
		seen:         NewSeenSet(p.SignalIDCapacity),
		open:         open,
		lastAdmitted: make(map[market.Side]time.Time),
		prevAdmitted: make(map[market.Side]time.Time),
	}
}

func (c *Controller) Approvals() *ApprovalRegistry { return c.approvals }

// Admit runs the pipeline. On success it consumes the signal ID, stamps the
// side's cooldown and engages the rapid-fire lock.
func (c *Controller) Admit(r Request) Decision {
	d := Decision{Allowed: true}
	for _, rl := range rules {
		rl.check(c, r, &d)
		if !d.Allowed {
			return d
		}
	}
	c.seen.Add(r.SignalID)
	c.prevAdmitted[r.Side] = c.lastAdmitted[r.Side]
	c.lastAdmitted[r.Side] = r.Now
	c.busyUntil = r.Now.Add(c.policy.RapidFireLock)
	return d
}

// Release undoes the admission of r after its placement failed: the signal
// ID is freed and the side's cooldown goes back to its earlier stamp. The
// rapid-fire lock stays engaged.
func (c *Controller) Release(r Request) {
	c.seen.Remove(r.SignalID)
	if !c.lastAdmitted[r.Side].Equal(r.Now) {
		return
	}
	if prev := c.prevAdmitted[r.Side]; prev.IsZero() {
		delete(c.lastAdmitted, r.Side)
	} else {
		c.lastAdmitted[r.Side] = prev
	}
	delete(c.prevAdmitted, r.Side)
}

// Seen reports and records a signal ID outside the entry pipeline; close
// commands use it for their own idempotency. Empty IDs are never seen.
func (c *Controller) Seen(signalID string) bool {
	if signalID == "" {
		return false
	}
	if c.seen.Has(signalID) {
		return true
	}
	c.seen.Add(signalID)
	return false
}

func (c *Controller) LastAdmitted() map[market.Side]time.Time {
	out := make(map[market.Side]time.Time, len(c.lastAdmitted))
	for k, v := range c.lastAdmitted {
		out[k] = v
	}
	return out
}

func checkDuplicate(c *Controller, r Request, d *Decision) {
	if r.SignalID != "" && c.seen.Has(r.SignalID) {
		d.deny(Duplicate, fmt.Sprintf("signal %q already processed", r.SignalID))
	}
}

func checkBusy(c *Controller, r Request, d *Decision) {
	if r.Now.Before(c.busyUntil) {
		d.deny(Busy, "another entry is being placed")
	}
}

func checkApproval(c *Controller, r Request, d *Decision) {
	if !c.approvals.Approved(r.Category) {
		d.deny(NoApproval, fmt.Sprintf("zones not approved for %s", r.Category))
	}
}

func checkQuota(c *Controller, r Request, d *Decision) {
	if n := c.open(r.Category); n >= c.policy.MaxPerCategory {
		d.deny(Quota, fmt.Sprintf("%s has %d open pairs (max %d)", r.Category, n, c.policy.MaxPerCategory))
	}
}

func checkCooldown(c *Controller, r Request, d *Decision) {
	last, ok := c.lastAdmitted[r.Side]
	if !ok {
		return
	}
	remaining := c.policy.SideCooldown - r.Now.Sub(last)
	if remaining <= 0 {
		return
	}
	mins := int(math.Ceil(remaining.Minutes()))
	d.deny(Cooldown, fmt.Sprintf("%s cooldown active, %d min remaining", r.Side, mins))
	d.Reject.Remaining = remaining
}
