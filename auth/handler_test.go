package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/zoneauth/broker"
	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/middleware"
	"github.com/upb/zoneauth/models"
	"github.com/upb/zoneauth/oidc"
	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/services/identity"
	"github.com/upb/zoneauth/services/session"
	"go.uber.org/zap"
)

const sessionCookie = "zoneauth.session-token"

type MockExchanger struct{ mock.Mock }

func (m *MockExchanger) AuthCodeURL(state, verifier string) string {
	return "https://idp.example.com/authorize?" + url.Values{"state": {state}, "v": {verifier}}.Encode()
}

func (m *MockExchanger) NewVerifier() string { return "pkce-verifier" }

func (m *MockExchanger) Exchange(ctx context.Context, code, verifier string) (*services.TokenSet, error) {
	args := m.Called(ctx, code, verifier)
	if set := args.Get(0); set != nil {
		return set.(*services.TokenSet), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockVerifier struct{ mock.Mock }

func (m *MockVerifier) Verify(ctx context.Context, raw string) (*oidc.IDTokenClaims, error) {
	args := m.Called(ctx, raw)
	if c := args.Get(0); c != nil {
		return c.(*oidc.IDTokenClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPipeline struct{ mock.Mock }

func (m *MockPipeline) SignIn(ctx context.Context, a identity.Assertion, meta identity.RequestMeta) (*session.Claims, error) {
	args := m.Called(ctx, a, meta)
	if c := args.Get(0); c != nil {
		return c.(*session.Claims), args.Error(1)
	}
	return nil, args.Error(1)
}

type fixture struct {
	exchanger *MockExchanger
	verifier  *MockVerifier
	pipeline  *MockPipeline
	codec     *session.Codec
	handler   *Handler
}

func testZones() config.ZonesConfig {
	return config.ZonesConfig{
		Active:       config.ZoneFrontDoor,
		FrontDoorURL: "https://app.example.com",
		UserURL:      "https://user.example.com",
		AdminURL:     "https://admin.example.com",
	}
}

func newFixture() *fixture {
	f := &fixture{
		exchanger: new(MockExchanger),
		verifier:  new(MockVerifier),
		pipeline:  new(MockPipeline),
		codec:     session.NewCodec("0123456789abcdef0123456789abcdef", "zoneauth"),
	}
	f.handler = NewHandler("google", f.exchanger, f.verifier, f.pipeline, f.codec,
		broker.NewCookieBroker(sessionCookie, "", true), testZones(), zap.NewNop())
	return f
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// login runs /auth/login and returns the flow cookies and the state.
func (f *fixture) login(t *testing.T, callbackURL string) ([]*http.Cookie, string) {
	target := "/auth/login"
	if callbackURL != "" {
		target += "?" + url.Values{"callbackUrl": {callbackURL}}.Encode()
	}
	rec := httptest.NewRecorder()
	f.handler.HandleLogin(rec, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return rec.Result().Cookies(), loc.Query().Get("state")
}

func callbackRequest(query url.Values, cookies []*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+query.Encode(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func userClaims(role models.UserRole) *session.Claims {
	now := time.Now()
	return &session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "zoneauth",
			Subject:   "5f0c7a2e-0000-4000-8000-000000000001",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UserID: "5f0c7a2e-0000-4000-8000-000000000001",
		Email:  "ana@example.com",
		Name:   "Ana",
		Role:   role,
	}
}

func TestHandleLogin(t *testing.T) {
	t.Run("sets flow cookies and redirects to provider", func(t *testing.T) {
		f := newFixture()
		cookies, state := f.login(t, "")

		assert.NotEmpty(t, state)
		stateCookie := cookieByName(cookies, StateCookieName)
		require.NotNil(t, stateCookie)
		assert.Equal(t, state, stateCookie.Value)
		assert.True(t, stateCookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, stateCookie.SameSite)
		assert.Equal(t, 600, stateCookie.MaxAge)

		require.NotNil(t, cookieByName(cookies, VerifierCookieName))
		assert.Nil(t, cookieByName(cookies, CallbackCookieName))
	})

	t.Run("generates unique state", func(t *testing.T) {
		f := newFixture()
		_, s1 := f.login(t, "")
		_, s2 := f.login(t, "")
		assert.NotEqual(t, s1, s2)
	})

	t.Run("keeps an allowed callback url", func(t *testing.T) {
		f := newFixture()
		cookies, _ := f.login(t, "https://user.example.com/user/billing")
		assert.NotNil(t, cookieByName(cookies, CallbackCookieName))
	})

	t.Run("drops a foreign callback url", func(t *testing.T) {
		f := newFixture()
		cookies, _ := f.login(t, "https://evil.example.com/")
		assert.Nil(t, cookieByName(cookies, CallbackCookieName))
	})

	t.Run("unconfigured exchanger reports configuration error", func(t *testing.T) {
		h := NewHandler("google", nil, nil, nil, nil, broker.NewCookieBroker(sessionCookie, "", false), testZones(), zap.NewNop())
		rec := httptest.NewRecorder()
		h.HandleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/auth/error?error=Configuration", rec.Header().Get("Location"))
	})
}

func TestHandleCallback_Success(t *testing.T) {
	tests := []struct {
		name         string
		callbackURL  string
		role         models.UserRole
		wantLocation string
	}{
		{name: "user without callback goes to user zone", role: models.RoleUser, wantLocation: "https://user.example.com/user"},
		{name: "admin without callback goes to admin zone", role: models.RoleAdmin, wantLocation: "https://admin.example.com/admin"},
		{name: "callback url wins", callbackURL: "/user/billing", role: models.RoleUser, wantLocation: "/user/billing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			cookies, state := f.login(t, tt.callbackURL)

			idToken := "raw-id-token"
			f.exchanger.On("Exchange", mock.Anything, "auth-code", "pkce-verifier").
				Return(&services.TokenSet{IDToken: idToken, Tokens: models.OAuthTokens{IDToken: &idToken}}, nil)
			f.verifier.On("Verify", mock.Anything, idToken).Return(&oidc.IDTokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "google-sub"},
				Email:            "ana@example.com",
				EmailVerified:    true,
				Name:             "Ana",
			}, nil)
			f.pipeline.On("SignIn", mock.Anything, mock.MatchedBy(func(a identity.Assertion) bool {
				return a.Provider == "google" && a.ProviderAccountID == "google-sub" && a.Email == "ana@example.com"
			}), mock.Anything).Return(userClaims(tt.role), nil)

			rec := httptest.NewRecorder()
			f.handler.HandleCallback(rec, callbackRequest(url.Values{"code": {"auth-code"}, "state": {state}}, cookies))

			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))

			sc := cookieByName(rec.Result().Cookies(), sessionCookie)
			require.NotNil(t, sc)
			assert.True(t, sc.HttpOnly)
			assert.True(t, sc.Secure)
			parsed, err := f.codec.Parse(sc.Value)
			require.NoError(t, err)
			assert.Equal(t, "ana@example.com", parsed.Email)

			stateCleared := cookieByName(rec.Result().Cookies(), StateCookieName)
			require.NotNil(t, stateCleared)
			assert.Equal(t, -1, stateCleared.MaxAge)

			f.exchanger.AssertExpectations(t)
			f.verifier.AssertExpectations(t)
			f.pipeline.AssertExpectations(t)
		})
	}
}

func TestHandleCallback_Failures(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(f *fixture)
		query        func(state string) url.Values
		wantStatus   int
		wantLocation string
	}{
		{
			name:         "provider error",
			query:        func(string) url.Values { return url.Values{"error": {"access_denied"}} },
			wantStatus:   http.StatusFound,
			wantLocation: "/auth/error?error=AccessDenied",
		},
		{
			name:       "missing code",
			query:      func(state string) url.Values { return url.Values{"state": {state}} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "state mismatch",
			query:      func(string) url.Values { return url.Values{"code": {"c"}, "state": {"forged"}} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "exchange fails",
			setup: func(f *fixture) {
				f.exchanger.On("Exchange", mock.Anything, "c", "pkce-verifier").Return(nil, services.ErrTokenExchange)
			},
			query:        func(state string) url.Values { return url.Values{"code": {"c"}, "state": {state}} },
			wantStatus:   http.StatusFound,
			wantLocation: "/auth/error?error=OAuthCallback",
		},
		{
			name: "id token rejected",
			setup: func(f *fixture) {
				f.exchanger.On("Exchange", mock.Anything, "c", "pkce-verifier").Return(&services.TokenSet{IDToken: "bad"}, nil)
				f.verifier.On("Verify", mock.Anything, "bad").Return(nil, oidc.ErrInvalidAudience)
			},
			query:        func(state string) url.Values { return url.Values{"code": {"c"}, "state": {state}} },
			wantStatus:   http.StatusFound,
			wantLocation: "/auth/error?error=OAuthCallback",
		},
		{
			name: "sign-in rejected",
			setup: func(f *fixture) {
				f.exchanger.On("Exchange", mock.Anything, "c", "pkce-verifier").Return(&services.TokenSet{IDToken: "ok"}, nil)
				f.verifier.On("Verify", mock.Anything, "ok").Return(&oidc.IDTokenClaims{
					RegisteredClaims: jwt.RegisteredClaims{Subject: "s"},
				}, nil)
				f.pipeline.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, services.ErrSignInRejected.Wrap(errors.New("link conflict")))
			},
			query:        func(state string) url.Values { return url.Values{"code": {"c"}, "state": {state}} },
			wantStatus:   http.StatusFound,
			wantLocation: "/auth/error?error=AccessDenied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			cookies, state := f.login(t, "")

			rec := httptest.NewRecorder()
			f.handler.HandleCallback(rec, callbackRequest(tt.query(state), cookies))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
			assert.Nil(t, cookieByName(rec.Result().Cookies(), sessionCookie))
		})
	}
}

func TestHandleCallback_ForgedCallbackCookieIgnored(t *testing.T) {
	f := newFixture()
	cookies, state := f.login(t, "")
	cookies = append(cookies, &http.Cookie{Name: CallbackCookieName, Value: "aHR0cHM6Ly9ldmlsLmV4YW1wbGUuY29t"})

	f.exchanger.On("Exchange", mock.Anything, "c", "pkce-verifier").Return(&services.TokenSet{IDToken: "ok"}, nil)
	f.verifier.On("Verify", mock.Anything, "ok").Return(&oidc.IDTokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "s"}}, nil)
	f.pipeline.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(userClaims(models.RoleUser), nil)

	rec := httptest.NewRecorder()
	f.handler.HandleCallback(rec, callbackRequest(url.Values{"code": {"c"}, "state": {state}}, cookies))

	assert.Equal(t, "https://user.example.com/user", rec.Header().Get("Location"))
}

func TestHandleLogout(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()

	f.handler.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Location"))
	sc := cookieByName(rec.Result().Cookies(), sessionCookie)
	require.NotNil(t, sc)
	assert.Empty(t, sc.Value)
	assert.Equal(t, -1, sc.MaxAge)
}

func TestHandleSession(t *testing.T) {
	f := newFixture()

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handler.HandleSession(rec, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signed in", func(t *testing.T) {
		claims := userClaims(models.RoleUser)
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
		rec := httptest.NewRecorder()

		f.handler.HandleSession(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, claims.UserID, body["id"])
		assert.Equal(t, "USER", body["role"])
		assert.Equal(t, false, body["hasActiveSubscription"])
		assert.Contains(t, body, "primaryTenantId")
		assert.Contains(t, body, "expiresAt")
	})
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		code       string
		wantStatus int
		wantCode   string
	}{
		{code: "AccessDenied", wantStatus: http.StatusForbidden, wantCode: "AccessDenied"},
		{code: "Configuration", wantStatus: http.StatusInternalServerError, wantCode: "Configuration"},
		{code: "OAuthCallback", wantStatus: http.StatusBadRequest, wantCode: "OAuthCallback"},
		{code: "whatever", wantStatus: http.StatusBadRequest, wantCode: "Default"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newFixture().handler.HandleError(rec, httptest.NewRequest(http.MethodGet, "/auth/error?error="+tt.code, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body struct {
				Details map[string]interface{} `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Details["error"])
		})
	}
}
