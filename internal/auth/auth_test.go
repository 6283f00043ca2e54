package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "s3cret", Issuer: "ecohabit-test", Audience: "ecohabit"}

func TestIssueAndParse(t *testing.T) {
	token, err := Issue(testConfig, "user-1", "fern", time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "fern", claims.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestParse_Rejects(t *testing.T) {
	valid, err := Issue(testConfig, "user-1", "", time.Hour)
	require.NoError(t, err)
	expired, err := Issue(testConfig, "user-1", "", -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := Issue(Config{Secret: testConfig.Secret, Issuer: "other", Audience: testConfig.Audience}, "user-1", "", time.Hour)
	require.NoError(t, err)
	wrongAudience, err := Issue(Config{Secret: testConfig.Secret, Issuer: testConfig.Issuer, Audience: "other"}, "user-1", "", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"aud": testConfig.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"iss": testConfig.Issuer,
		"aud": testConfig.Audience,
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "user-1",
		"iss": testConfig.Issuer,
		"aud": testConfig.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		cfg     Config
		wantErr error
	}{
		{"empty", "  ", testConfig, ErrMissingToken},
		{"garbage", "not-a-jwt", testConfig, ErrInvalidToken},
		{"wrong secret", valid, Config{Secret: "other", Issuer: testConfig.Issuer, Audience: testConfig.Audience}, ErrInvalidToken},
		{"expired", expired, testConfig, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, testConfig, ErrInvalidToken},
		{"wrong audience", wrongAudience, testConfig, ErrInvalidToken},
		{"missing subject", noSubject, testConfig, ErrInvalidToken},
		{"missing expiry", noExpiry, testConfig, ErrInvalidToken},
		{"other algorithm", hs512, testConfig, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.token, tt.cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIssue_RequiresSubject(t *testing.T) {
	_, err := Issue(testConfig, " ", "", time.Hour)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer  abc ", "abc", nil},
		{"", "", ErrMissingToken},
		{"Bearer ", "", ErrInvalidToken},
		{"Bearer", "", ErrInvalidToken},
		{"Basic Zm9vOmJhcg==", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticator_Middleware(t *testing.T) {
	token, err := Issue(testConfig, "user-42", "", time.Hour)
	require.NoError(t, err)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewAuthenticator(testConfig, WithPublic(PathPrefixes("/v1/carbon/", "/healthz"))).Middleware(next)

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantUser string
	}{
		{"valid token", "/v1/profile", "Bearer " + token, http.StatusNoContent, "user-42"},
		{"lowercase scheme", "/v1/profile", "bearer " + token, http.StatusNoContent, "user-42"},
		{"missing header", "/v1/profile", "", http.StatusUnauthorized, ""},
		{"basic scheme", "/v1/profile", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, ""},
		{"public path", "/healthz", "", http.StatusNoContent, ""},
		{"public prefix", "/v1/carbon/calculate", "", http.StatusNoContent, ""},
		{"public with token", "/v1/carbon/factors", "Bearer " + token, http.StatusNoContent, "user-42"},
		{"public with bad token", "/v1/carbon/factors", "Bearer nope", http.StatusNoContent, ""},
		{"prefix is not a substring match", "/v1/carbonara", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantUser, seen)
		})
	}
}

func TestAuthenticator_ErrorHandler(t *testing.T) {
	var got error
	a := NewAuthenticator(testConfig, WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	a.Middleware(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, got, ErrMissingToken)
}

func TestUserID_Anonymous(t *testing.T) {
	assert.Empty(t, UserID(context.Background()))
	assert.Equal(t, "u", UserID(NewContext(context.Background(), Claims{Subject: "u"})))

	claims, ok := ClaimsFrom(NewContext(context.Background(), Claims{Subject: "u", Username: "fern"}))
	require.True(t, ok)
	assert.Equal(t, "fern", claims.Username)
}
