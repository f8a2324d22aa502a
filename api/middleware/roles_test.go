package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func TestRequireRole(t *testing.T) {
	mw := RequireRole(nil, enums.RoleAdmin, enums.RoleSystem)
	cases := []struct {
		role enums.ActorRole
		want int
	}{
		{enums.RoleAdmin, http.StatusOK},
		{enums.RoleSystem, http.StatusOK},
		{enums.RoleVendor, http.StatusForbidden},
		{enums.RoleCustomer, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm", nil)
		req = req.WithContext(WithActor(req.Context(), uuid.New(), tc.role))
		rec := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.role)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS([]string{"https://shop.example"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	other := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	other.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
