package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
)

// reply is a handler's result. Handlers return it instead of writing so
// the idempotency layer can store and replay it.
type reply struct {
	status int
	body   any
}

type handler func(c *gin.Context, raw []byte) reply

func errorReply(status int, e *apiError) reply {
	return reply{status: status, body: e}
}

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func decode(raw []byte, dst any) *apiError {
	if len(raw) == 0 {
		return &apiError{Type: "invalid_request", Code: "missing", Message: "Request body is required"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &apiError{Type: "invalid_request", Code: "invalid", Message: fmt.Sprintf("Request body is not valid JSON: %v", err)}
	}
	return nil
}

func (s *Server) createSession(c *gin.Context, raw []byte) reply {
	var req createRequest
	if e := decode(raw, &req); e != nil {
		return errorReply(http.StatusBadRequest, e)
	}
	if err := s.validate.Struct(req); err != nil {
		return errorReply(http.StatusBadRequest, validationError(err))
	}

	sess := &session{
		ID:                 newID("cs_"),
		Buyer:              req.Buyer,
		PaymentProvider:    PaymentProvider{Provider: "stripe", SupportedPaymentMethods: []string{"card"}},
		Currency:           "usd",
		FulfillmentAddress: req.FulfillmentAddress,
		Links: []invariant.Link{
			{Type: "terms_of_use", URL: s.baseURL + "/legal/terms"},
			{Type: "privacy_policy", URL: s.baseURL + "/legal/privacy"},
		},
		items: req.Items,
	}
	if e := s.price(sess); e != nil {
		return errorReply(http.StatusBadRequest, e)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	out := *sess
	s.mu.Unlock()

	return reply{status: http.StatusCreated, body: out}
}

func (s *Server) getSession(c *gin.Context) {
	s.mu.Lock()
	sess, ok := s.sessions[c.Param("id")]
	var out session
	if ok {
		out = *sess
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, notFound(c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) updateSession(c *gin.Context, raw []byte) reply {
	var req updateRequest
	if e := decode(raw, &req); e != nil {
		return errorReply(http.StatusBadRequest, e)
	}
	if err := s.validate.Struct(req); err != nil {
		return errorReply(http.StatusBadRequest, validationError(err))
	}

	return s.mutate(c.Param("id"), invariant.OpUpdate, func(sess *session) reply {
		next := *sess
		next.LineItems = nil
		if req.Buyer != nil {
			next.Buyer = req.Buyer
		}
		if req.Items != nil {
			next.items = req.Items
		}
		if req.FulfillmentAddress != nil {
			next.FulfillmentAddress = req.FulfillmentAddress
		}
		if req.FulfillmentOptionID != nil {
			if !hasOption(*req.FulfillmentOptionID) || next.FulfillmentAddress == nil {
				return errorReply(http.StatusBadRequest, &apiError{
					Type:    "invalid_request",
					Code:    "invalid",
					Message: fmt.Sprintf("Unknown fulfillment option %q", *req.FulfillmentOptionID),
					Param:   "$.fulfillment_option_id",
				})
			}
			next.FulfillmentOptionID = *req.FulfillmentOptionID
		}
		if e := s.price(&next); e != nil {
			return errorReply(http.StatusBadRequest, e)
		}
		if !slices.Contains(invariant.Transition(sess.Status, invariant.OpUpdate), next.Status) {
			e := &apiError{
				Type:    "invalid_request",
				Code:    string(invariant.CodeInvalid),
				Message: "Update would leave the checkout session not ready for payment",
			}
			if len(next.Messages) > 0 {
				e.Message = next.Messages[0].Content
				e.Param = next.Messages[0].Param
			}
			return errorReply(http.StatusBadRequest, e)
		}
		*sess = next
		return reply{status: http.StatusOK, body: next}
	})
}

func (s *Server) completeSession(c *gin.Context, raw []byte) reply {
	var req completeRequest
	if e := decode(raw, &req); e != nil {
		return errorReply(http.StatusBadRequest, e)
	}
	if err := s.validate.Struct(req); err != nil {
		return errorReply(http.StatusBadRequest, validationError(err))
	}

	return s.mutate(c.Param("id"), invariant.OpComplete, func(sess *session) reply {
		if strings.Contains(req.PaymentData.Token, "decline") {
			return errorReply(http.StatusBadRequest, &apiError{
				Type:    "processing_error",
				Code:    string(invariant.CodePaymentDeclined),
				Message: "The payment was declined",
				Param:   "$.payment_data.token",
			})
		}
		if req.Buyer != nil {
			sess.Buyer = req.Buyer
		}
		sess.Status = invariant.StatusCompleted
		orderID := newID("ord_")
		sess.Order = &invariant.Order{
			ID:                orderID,
			CheckoutSessionID: sess.ID,
			PermalinkURL:      s.baseURL + "/orders/" + orderID,
		}
		return reply{status: http.StatusOK, body: *sess}
	})
}

func (s *Server) cancelSession(c *gin.Context, raw []byte) reply {
	return s.mutate(c.Param("id"), invariant.OpCancel, func(sess *session) reply {
		sess.Status = invariant.StatusCanceled
		return reply{status: http.StatusOK, body: *sess}
	})
}

// mutate applies fn to the session under the lock after checking that op
// is allowed from its current state.
func (s *Server) mutate(id string, op invariant.Operation, fn func(*session) reply) reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return errorReply(http.StatusNotFound, notFound(id))
	}
	if len(invariant.Transition(sess.Status, op)) == 0 {
		switch {
		case !sess.Status.Terminal():
			return errorReply(http.StatusBadRequest, &apiError{
				Type:    "invalid_request",
				Code:    string(invariant.CodeInvalid),
				Message: fmt.Sprintf("Cannot %s a checkout session that is %s", op, sess.Status),
			})
		case !s.faults.AcceptTerminalMutations:
			return errorReply(http.StatusMethodNotAllowed, &apiError{
				Type:    "invalid_request",
				Code:    "invalid_state",
				Message: fmt.Sprintf("Cannot %s a checkout session that is %s", op, sess.Status),
			})
		}
	}
	if sess.Status.Terminal() && s.faults.AcceptTerminalMutations {
		return reply{status: http.StatusOK, body: *sess}
	}
	return fn(sess)
}

func notFound(id string) *apiError {
	return &apiError{
		Type:    "invalid_request",
		Code:    "not_found",
		Message: fmt.Sprintf("Checkout session %q not found", id),
	}
}

func hasOption(id string) bool {
	for _, o := range shippingOptions {
		if o.id == id {
			return true
		}
	}
	return false
}
