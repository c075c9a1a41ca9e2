package handler

import (
	"context"

	"github.com/astra-cc/orchestrator/internal/domain"
)

type contextKey string

const tokenContextKey contextKey = "api_token"

func withToken(ctx context.Context, tok *domain.ApiToken) context.Context {
	return context.WithValue(ctx, tokenContextKey, tok)
}

// tokenFromContext returns the ApiToken BearerAuth resolved for this
// request. Only called from handlers mounted behind BearerAuth, so a
// missing token is a routing bug, not a client error.
func tokenFromContext(ctx context.Context) *domain.ApiToken {
	tok, _ := ctx.Value(tokenContextKey).(*domain.ApiToken)
	return tok
}
