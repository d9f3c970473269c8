package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("secret", "rfqmarket")
	token, err := m.GenerateToken("user-1")
	require.NoError(t, err)

	id, err := m.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", id)

	_, err = NewManager("other", "rfqmarket").ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewManager("secret", "someone-else").ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	m := NewManager("secret", "")
	token, err := m.GenerateToken("user-1")
	require.NoError(t, err)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	}

	cases := []struct {
		name     string
		mw       func(http.Handler) http.Handler
		header   string
		wantCode int
		wantUser string
	}{
		{"required ok", m.Required(onError), "Bearer " + token, http.StatusNoContent, "user-1"},
		{"required missing", m.Required(onError), "", http.StatusUnauthorized, ""},
		{"required garbage", m.Required(onError), "Bearer nope", http.StatusUnauthorized, ""},
		{"optional anonymous", m.Optional(onError), "", http.StatusNoContent, ""},
		{"optional ok", m.Optional(onError), "bearer " + token, http.StatusNoContent, "user-1"},
		{"optional garbage", m.Optional(onError), "Basic abc", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			tc.mw(next).ServeHTTP(rr, req)
			require.Equal(t, tc.wantCode, rr.Code)
			require.Equal(t, tc.wantUser, seen)
		})
	}
}
