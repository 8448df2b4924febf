package mockserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
)

// HeaderReplayed marks a response served from the idempotency store.
const HeaderReplayed = "Idempotent-Replayed"

type storedReply struct {
	fingerprint string
	status      int
	body        []byte
}

// fingerprint identifies a request for idempotency purposes. Bodies that
// are not valid JSON are compared byte for byte.
func fingerprint(method, path string, raw []byte) string {
	canon, err := invariant.Canonical(raw)
	if err != nil {
		canon = raw
	}
	return method + " " + path + "\n" + string(canon)
}

// idempotent wraps a mutating handler. The first request with a key is
// executed and its reply stored; a repeat with the same method, path and
// canonical body gets the stored reply, and anything else gets 409.
func (s *Server) idempotent(h handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, apiError{Type: "invalid_request", Code: "invalid", Message: "Could not read request body"})
			return
		}

		key := c.GetHeader(client.HeaderIdempotencyKey)
		if key == "" {
			writeReply(c, h(c, raw))
			return
		}

		fp := fingerprint(c.Request.Method, c.Request.URL.Path, raw)

		// Serializes concurrent requests that share a key.
		s.idemMu.Lock()
		defer s.idemMu.Unlock()

		if v, ok := s.idem.Get(key); ok {
			stored := v.(*storedReply)
			if stored.fingerprint == fp || s.faults.IgnoreIdempotencyBody {
				slog.Debug("Replaying idempotent response", "key", key, "status", stored.status)
				c.Header(HeaderReplayed, "true")
				c.Data(stored.status, gin.MIMEJSON, stored.body)
				return
			}
			c.JSON(http.StatusConflict, apiError{
				Type:    "request_not_idempotent",
				Code:    invariant.ConflictCode,
				Message: "Idempotency-Key was already used with a different request",
			})
			return
		}

		r := h(c, raw)
		body, err := json.Marshal(r.body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, apiError{Type: "processing_error", Code: "internal", Message: err.Error()})
			return
		}
		if r.status < http.StatusInternalServerError {
			s.idem.Set(key, &storedReply{fingerprint: fp, status: r.status, body: body}, cache.DefaultExpiration)
		}
		c.Data(r.status, gin.MIMEJSON, body)
	}
}

func writeReply(c *gin.Context, r reply) {
	c.JSON(r.status, r.body)
}
