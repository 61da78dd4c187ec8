// Package auth is the OAuth protocol adapter served by the front door.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/zoneauth/broker"
	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/internal/observability"
	"github.com/upb/zoneauth/middleware"
	"github.com/upb/zoneauth/oidc"
	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/services/identity"
	"github.com/upb/zoneauth/services/session"
	"github.com/upb/zoneauth/utils"
	"go.uber.org/zap"
)

// Flow cookie names for the OAuth round trip
const (
	StateCookieName    = "zoneauth.state"
	VerifierCookieName = "zoneauth.pkce"
	CallbackCookieName = "zoneauth.callback-url"
)

// Error codes reported on /auth/error
const (
	ErrorAccessDenied  = "AccessDenied"
	ErrorConfiguration = "Configuration"
	ErrorCallback      = "OAuthCallback"
)

// CodeExchanger exchanges OAuth2 authorization codes for tokens.
type CodeExchanger interface {
	AuthCodeURL(state, verifier string) string
	NewVerifier() string
	Exchange(ctx context.Context, code, verifier string) (*services.TokenSet, error)
}

// IDTokenVerifier validates provider ID tokens and returns parsed claims.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDTokenClaims, error)
}

// SignInPipeline turns a verified assertion into session claims.
type SignInPipeline interface {
	SignIn(ctx context.Context, a identity.Assertion, meta identity.RequestMeta) (*session.Claims, error)
}

// TokenSigner serializes session claims.
type TokenSigner interface {
	Sign(claims *session.Claims) (string, error)
}

// Handler handles the sign-in flow (login, callback, logout, session, error).
type Handler struct {
	provider  string
	exchanger CodeExchanger
	verifier  IDTokenVerifier
	pipeline  SignInPipeline
	signer    TokenSigner
	cookies   *broker.CookieBroker
	zones     middleware.ZoneURLs
	origins   []string
	logger    *zap.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(
	provider string,
	exchanger CodeExchanger,
	verifier IDTokenVerifier,
	pipeline SignInPipeline,
	signer TokenSigner,
	cookies *broker.CookieBroker,
	zonesCfg config.ZonesConfig,
	logger *zap.Logger,
) *Handler {
	origins := []string{zonesCfg.FrontDoorURL, zonesCfg.UserURL, zonesCfg.AdminURL}
	if zonesCfg.TenantURL != "" {
		origins = append(origins, zonesCfg.TenantURL)
	}
	return &Handler{
		provider:  provider,
		exchanger: exchanger,
		verifier:  verifier,
		pipeline:  pipeline,
		signer:    signer,
		cookies:   cookies,
		zones:     middleware.NewZoneURLs(zonesCfg),
		origins:   origins,
		logger:    logger,
	}
}

// HandleLogin redirects to the provider consent screen
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	log := observability.RequestLogger(r.Context(), h.logger)
	if h.exchanger == nil {
		log.Error("oauth exchanger not configured")
		h.toError(w, r, ErrorConfiguration)
		return
	}

	state, err := generateSecureState()
	if err != nil {
		log.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}
	verifier := h.exchanger.NewVerifier()

	h.cookies.SetFlowCookie(w, StateCookieName, state)
	h.cookies.SetFlowCookie(w, VerifierCookieName, verifier)
	if callback, ok := utils.SafeCallbackURL(r.URL.Query().Get("callbackUrl"), h.origins); ok {
		h.cookies.SetFlowCookie(w, CallbackCookieName, base64.RawURLEncoding.EncodeToString([]byte(callback)))
	}

	http.Redirect(w, r, h.exchanger.AuthCodeURL(state, verifier), http.StatusFound)
}

// HandleCallback completes the authorization code flow and sets the session cookie
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	log := observability.RequestLogger(r.Context(), h.logger)
	q := r.URL.Query()

	state := h.cookies.TakeFlowCookie(w, r, StateCookieName)
	verifier := h.cookies.TakeFlowCookie(w, r, VerifierCookieName)
	callback, _ := utils.SafeCallbackURL(decodeCallback(h.cookies.TakeFlowCookie(w, r, CallbackCookieName)), h.origins)

	if providerErr := q.Get("error"); providerErr != "" {
		log.Info("provider denied authorization", zap.String("provider_error", providerErr))
		h.toError(w, r, ErrorAccessDenied)
		return
	}

	code := q.Get("code")
	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if q.Get("state") == "" || state == "" || q.Get("state") != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	if h.exchanger == nil || h.verifier == nil {
		log.Error("oauth flow not configured")
		h.toError(w, r, ErrorConfiguration)
		return
	}

	tokens, err := h.exchanger.Exchange(r.Context(), code, verifier)
	if err != nil {
		log.Warn("token exchange failed", zap.Error(err))
		h.toError(w, r, ErrorCallback)
		return
	}

	idClaims, err := h.verifier.Verify(r.Context(), tokens.IDToken)
	if err != nil {
		log.Warn("id token verification failed", zap.Error(err))
		h.toError(w, r, ErrorCallback)
		return
	}

	claims, err := h.pipeline.SignIn(r.Context(), idClaims.Assertion(h.provider, tokens.Tokens), requestMeta(r))
	if err != nil {
		h.toError(w, r, ErrorAccessDenied)
		return
	}

	token, err := h.signer.Sign(claims)
	if err != nil {
		log.Error("failed to sign session token", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to create session")
		return
	}
	h.cookies.Set(w, token, claims.ExpiresAtTime())

	target := callback
	if target == "" {
		target = middleware.RedirectTarget(claims.Role, h.zones)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleLogout clears the session cookie and returns to the front door
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)

	target := h.zones.FrontDoor
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleSession returns the refreshed session of the caller. It expects
// the gate's Optional middleware to have run.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil || claims.UserID == "" {
		_ = utils.WriteUnauthorized(w, "No active session")
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, claims.View())
}

var errorMessages = map[string]struct {
	status  int
	message string
}{
	ErrorAccessDenied:  {http.StatusForbidden, "Sign-in was rejected"},
	ErrorConfiguration: {http.StatusInternalServerError, "Authentication is not configured"},
	ErrorCallback:      {http.StatusBadRequest, "The identity provider response could not be verified"},
}

// HandleError describes a sign-in failure
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	desc, ok := errorMessages[code]
	if !ok {
		code = "Default"
		desc.status = http.StatusBadRequest
		desc.message = "Unable to sign in"
	}
	_ = utils.WriteError(w, desc.status, desc.message, map[string]interface{}{"error": code})
}

func (h *Handler) toError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/auth/error?"+url.Values{"error": {code}}.Encode(), http.StatusFound)
}

func requestMeta(r *http.Request) identity.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return identity.RequestMeta{
		RequestID: chimw.GetReqID(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

func decodeCallback(v string) string {
	if v == "" {
		return ""
	}
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
