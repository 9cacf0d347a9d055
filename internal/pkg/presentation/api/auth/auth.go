package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/threshold-alerts/pkg/types"
	"github.com/go-chi/jwtauth/v5"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

type principalContextKey struct {
	name string
}

var principalCtxKey = &principalContextKey{"principal"}

var tracer = otel.Tracer("threshold-alerts/authz")

type Operation string

const (
	ListThresholds  Operation = "thresholds.list"
	GetThreshold    Operation = "thresholds.get"
	CreateThreshold Operation = "thresholds.create"
	UpdateThreshold Operation = "thresholds.update"
	DeleteThreshold Operation = "thresholds.delete"
	ListAllValues   Operation = "values.listAll"
	ListOwnValues   Operation = "values.listOwn"
	SubmitValue     Operation = "values.submit"
	ListAllAlerts   Operation = "alerts.listAll"
	ListOwnAlerts   Operation = "alerts.listOwn"
	ResolveAlert    Operation = "alerts.resolve"
	StreamAlerts    Operation = "alerts.stream"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Authenticator turns a verified bearer token into a principal. The token
// is expected to carry the claims sub, role and optionally name.
type Authenticator struct {
	ja *jwtauth.JWTAuth
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{
		ja: jwtauth.New("HS256", secret, nil),
	}
}

// Token mints a signed token for a principal. Used by tests and tooling.
func (a *Authenticator) Token(p types.Principal) (string, error) {
	claims := map[string]any{
		"sub":  p.ID,
		"role": string(p.Role),
	}
	if p.Name != "" {
		claims["name"] = p.Name
	}

	_, token, err := a.ja.Encode(claims)
	return token, err
}

func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	verifier := jwtauth.Verifier(a.ja)

	return func(next http.Handler) http.Handler {
		return verifier(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.GetFromContext(r.Context())

			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				logger.Info().Err(err).Msg("request not authenticated")
				writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
				return
			}

			principal, err := principalFromClaims(claims)
			if err != nil {
				logger.Info().Err(err).Msg("request not authenticated")
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		}))
	}
}

func principalFromClaims(claims map[string]any) (types.Principal, error) {
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	name, _ := claims["name"].(string)

	if sub == "" {
		return types.Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	if role == "" {
		return types.Principal{}, fmt.Errorf("%w: token has no role", ErrUnauthenticated)
	}

	return types.Principal{ID: sub, Name: name, Role: types.Role(role)}, nil
}

type Authorizer interface {
	RequireAccess(operation Operation) func(http.Handler) http.Handler
}

type authorizer struct {
	query rego.PreparedEvalQuery
}

// NewAuthorizer prepares a rego policy that decides, from the role of the
// principal and the requested operation, whether a request is allowed. The
// policy must define data.thresholdalerts.authz.allow.
func NewAuthorizer(ctx context.Context, policies io.Reader) (Authorizer, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	query, err := rego.New(
		rego.Query("x = data.thresholdalerts.authz.allow"),
		rego.Module("thresholdalerts.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &authorizer{query: query}, nil
}

func (a *authorizer) RequireAccess(operation Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error

			logger := logging.GetFromContext(r.Context())

			ctx, span := tracer.Start(r.Context(), "check-access")
			defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

			principal, ok := PrincipalFromContext(ctx)
			if !ok {
				err = ErrUnauthenticated
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			input := map[string]any{
				"role":      string(principal.Role),
				"operation": string(operation),
			}

			results, err := a.query.Eval(ctx, rego.EvalInput(input))
			if err != nil {
				logger.Error().Err(err).Msg("opa eval failed")
				writeError(w, http.StatusInternalServerError, "authorization could not be evaluated")
				return
			}

			if len(results) == 0 {
				err = errors.New("opa query could not be satisfied")
				logger.Error().Err(err).Msg("auth failed")
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}

			allowed, ok := results[0].Bindings["x"].(bool)
			if !ok || !allowed {
				err = fmt.Errorf("%w: %s may not %s", ErrForbidden, principal.Role, operation)
				logger.Warn().Str("principal", principal.ID).Str("operation", string(operation)).Msg("access denied")
				writeError(w, http.StatusForbidden, err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p types.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

func PrincipalFromContext(ctx context.Context) (types.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(types.Principal)
	return p, ok
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
