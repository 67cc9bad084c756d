package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/twitterauth/internal/cache"
	"github.com/dropDatabas3/twitterauth/internal/observability/logger"
	"github.com/dropDatabas3/twitterauth/internal/strategy"
	"github.com/dropDatabas3/twitterauth/internal/ticket"
	"github.com/dropDatabas3/twitterauth/internal/util"
)

// authView es lo que se expone del AuthHash (sin credenciales).
type authView struct {
	Provider string            `json:"provider"`
	UID      string            `json:"uid"`
	Info     strategy.Identity `json:"info"`
	Extra    map[string]any    `json:"extra,omitempty"`
}

type successResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
	Auth      authView  `json:"auth"`
}

// SuccessHandler emite el ticket para hash. Con redirect != "" redirige a
// redirect?ticket=...; si no, responde JSON.
func SuccessHandler(issuer *ticket.Issuer, redirect string) func(http.ResponseWriter, *http.Request, *strategy.AuthHash) {
	return func(w http.ResponseWriter, r *http.Request, hash *strategy.AuthHash) {
		tok, exp, err := issuer.Issue(hash)
		if err != nil {
			logger.From(r.Context()).Error("ticket issue failed", logger.Op("ticket.issue"), logger.Err(err))
			WriteError(w, ErrInternal.WithCause(err))
			return
		}
		logger.From(r.Context()).Info("ticket issued",
			logger.UID(hash.UID),
			logger.String("email", util.MaskEmail(hash.Info.Email)),
		)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")

		if redirect != "" {
			u, err := url.Parse(redirect)
			if err != nil {
				WriteError(w, ErrInternal.WithCause(err))
				return
			}
			q := u.Query()
			q.Set("ticket", tok)
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}

		WriteJSON(w, http.StatusOK, successResponse{
			Ticket:    tok,
			ExpiresAt: exp,
			Auth: authView{
				Provider: hash.Provider,
				UID:      hash.UID,
				Info:     hash.Info,
				Extra:    hash.Extra,
			},
		})
	}
}

// failureHandler: destino de los redirects de fallo (?message=&strategy=).
func failureHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg := q.Get("message")
	if msg == "" {
		msg = strategy.FailUnknown
	}
	status := http.StatusUnauthorized
	switch msg {
	case strategy.FailTimeout, strategy.FailServiceUnavailable:
		status = http.StatusBadGateway
	case strategy.FailUnknown:
		status = http.StatusInternalServerError
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteError(w, NewError(status, msg, "authentication failed").WithDetail(q.Get("strategy")))
}

type strategyView struct {
	Name       string `json:"name"`
	RequestURL string `json:"request_url"`
}

func strategiesHandler(m *strategy.Middleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]strategyView, 0, len(m.Strategies()))
		for _, name := range m.Strategies() {
			out = append(out, strategyView{Name: name, RequestURL: m.RequestPath(name)})
		}
		WriteJSON(w, http.StatusOK, map[string]any{"strategies": out})
	}
}

// verifyTicketHandler: POST {ticket} (JSON o form) => claims. Con seen != nil
// cada ticket se acepta una sola vez.
func verifyTicketHandler(issuer *ticket.Issuer, seen cache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ticket string `json:"ticket"`
		}
		if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				WriteError(w, ErrBadRequest.WithDetail("invalid json"))
				return
			}
		} else {
			body.Ticket = r.FormValue("ticket")
		}
		if strings.TrimSpace(body.Ticket) == "" {
			WriteError(w, ErrBadRequest.WithDetail("ticket required"))
			return
		}

		var (
			claims *ticket.Claims
			err    error
		)
		if seen != nil {
			claims, err = issuer.Redeem(r.Context(), seen, body.Ticket)
		} else {
			claims, err = issuer.Parse(body.Ticket)
		}
		switch {
		case errors.Is(err, ticket.ErrReplayed):
			WriteError(w, ErrInvalidTicket.WithDetail("ticket already used").WithCause(err))
			return
		case errors.Is(err, ticket.ErrInvalid), errors.Is(err, ticket.ErrExpired), errors.Is(err, ticket.ErrInvalidIssuer):
			WriteError(w, ErrInvalidTicket.WithCause(err))
			return
		case err != nil:
			logger.From(r.Context()).Error("ticket redeem failed", logger.Err(err))
			WriteError(w, ErrUnavailable.WithCause(err))
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		WriteJSON(w, http.StatusOK, claims)
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Pinger: cualquier dependencia chequeable desde /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

func readyzHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		ok := true
		for name, p := range deps {
			if err := p.Ping(ctx); err != nil {
				checks[name] = err.Error()
				ok = false
				continue
			}
			checks[name] = "ok"
		}
		if !ok {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": checks})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
	}
}
