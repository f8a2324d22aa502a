package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func TestActorRejectsMissingHeaders(t *testing.T) {
	handler := Actor(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestActorRejectsInvalidIdentity(t *testing.T) {
	handler := Actor(nil)(okHandler())
	cases := []struct {
		id   string
		role string
	}{
		{"not-a-uuid", "customer"},
		{uuid.Nil.String(), "customer"},
		{uuid.NewString(), "superuser"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(ActorIDHeader, tc.id)
		req.Header.Set(ActorRoleHeader, tc.role)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s/%s: expected 401 got %d", tc.id, tc.role, resp.Code)
		}
	}
}

func TestActorSeedsContext(t *testing.T) {
	actorID := uuid.New()
	var captured struct {
		id   uuid.UUID
		role enums.ActorRole
	}
	handler := Actor(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.id = ActorIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorIDHeader, actorID.String())
	req.Header.Set(ActorRoleHeader, " Vendor ")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.id != actorID {
		t.Fatalf("expected actor %s got %s", actorID, captured.id)
	}
	if captured.role != enums.RoleVendor {
		t.Fatalf("expected vendor role got %s", captured.role)
	}
}
