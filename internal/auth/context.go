// Package auth carries the authenticated company scope through request
// contexts. Token verification happens upstream; this package only enforces
// that requests stay inside their tenant.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const companyIDKey contextKey = "companyID"

// ContextWithCompanyID returns a new context carrying the authenticated
// company scope.
func ContextWithCompanyID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, companyIDKey, id)
}

// CompanyIDFromContext retrieves the authenticated company scope, if any.
func CompanyIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	value := ctx.Value(companyIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// EnforceCompanyScope ensures the requested company matches the
// authenticated scope when one is present.
func EnforceCompanyScope(ctx context.Context, companyID uuid.UUID) error {
	if companyID == uuid.Nil {
		return fmt.Errorf("companyId is required")
	}
	scopedID, ok := CompanyIDFromContext(ctx)
	if !ok {
		return nil
	}
	if scopedID != companyID {
		return fmt.Errorf("companyId %s does not match authenticated scope", companyID)
	}
	return nil
}

// CompanyHeader is the header the gateway sets after verifying the session.
const CompanyHeader = "X-Company-ID"

// Middleware copies the gateway-asserted company id into the request context.
// Requests without the header pass through unscoped.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(CompanyHeader))
		if raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(ContextWithCompanyID(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
