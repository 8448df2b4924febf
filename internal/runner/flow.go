package runner

import (
	"context"
	"net/http"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
)

const (
	pathSessions = "/checkout_sessions"
	pathSession  = "/checkout_sessions/{checkout_session_id}"
	pathComplete = "/checkout_sessions/{checkout_session_id}/complete"
	pathCancel   = "/checkout_sessions/{checkout_session_id}/cancel"
)

// flow drives one session through the protocol, checking every response
// and the sequence of states it goes through.
type flow struct {
	ctx   context.Context
	t     *T
	id    string
	steps []invariant.Step
}

func newFlow(ctx context.Context, t *T) *flow {
	return &flow{ctx: ctx, t: t}
}

func (f *flow) send(op invariant.Operation, method, template string, body any, key string) *client.Response {
	req := client.Request{Method: method, Template: template, Body: body, IdempotencyKey: key}
	if template != pathSessions {
		req.Params = map[string]string{"checkout_session_id": f.id}
	}
	resp := f.t.Do(f.ctx, req)
	f.t.Violation(invariant.CheckIdempotencyKeyEcho(resp.IdempotencyKey, resp.Header(client.HeaderIdempotencyKey)))

	step := invariant.Step{Op: op, Accepted: isSuccess(resp.Exchange.Status)}
	if step.Accepted {
		if s, err := invariant.ParseSession(resp.Exchange.Body); err == nil {
			step.Status = s.Status
			f.t.Check(invariant.CheckSession(s))
			if op == invariant.OpCreate && f.id == "" {
				f.id = s.ID
			}
		}
	} else {
		f.t.Check(invariant.CheckErrorResponse(resp.Exchange.Body))
	}
	if op != invariant.OpCreate || f.id != "" {
		f.steps = append(f.steps, step)
	}
	return resp
}

// create creates a session and ends the scenario if that fails.
func (f *flow) create(body any) *invariant.Session {
	return f.createWithKey(body, "")
}

func (f *flow) createWithKey(body any, key string) *invariant.Session {
	resp := f.send(invariant.OpCreate, http.MethodPost, pathSessions, body, key)
	if !f.t.ExpectStatus(resp, http.StatusCreated, http.StatusOK) {
		f.t.FailNow()
	}
	return f.t.Session(resp)
}

func (f *flow) update(body any) *client.Response {
	return f.send(invariant.OpUpdate, http.MethodPost, pathSession, body, "")
}

func (f *flow) complete(body any) *client.Response {
	return f.send(invariant.OpComplete, http.MethodPost, pathComplete, body, "")
}

func (f *flow) cancel() *client.Response {
	return f.send(invariant.OpCancel, http.MethodPost, pathCancel, nil, "")
}

func (f *flow) get() *client.Response {
	return f.send(invariant.OpGet, http.MethodGet, pathSession, nil, "")
}

// mustSession expects a successful session response.
func (f *flow) mustSession(resp *client.Response) *invariant.Session {
	if !f.t.ExpectStatus(resp, http.StatusOK) {
		f.t.FailNow()
	}
	return f.t.Session(resp)
}

// verifyHistory checks the recorded states form a legal sequence.
func (f *flow) verifyHistory() {
	f.t.Check(invariant.CheckHistory(f.steps))
}
