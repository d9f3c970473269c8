// Package testutils помощники для тестов обработчиков.
package testutils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	"rfqmarket/internal/auth"
)

// WithChiURLParams подставляет параметры пути в контекст chi запроса для тестов.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// WithActor кладёт пользователя в контекст так же, как auth-мидлварь
func WithActor(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), userID))
}

// ActorRequest запрос с JSON-телом от имени userID; пустое тело означает запрос без тела
func ActorRequest(method, target, body, userID string, params map[string]string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(params) > 0 {
		req = WithChiURLParams(req, params)
	}
	if userID != "" {
		req = WithActor(req, userID)
	}
	return req
}
