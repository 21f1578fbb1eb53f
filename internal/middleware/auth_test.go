package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/citylinebank/backend/internal/models"
)

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("admin passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
		req = req.WithContext(WithIdentity(req.Context(), models.Identity{
			AccountNo: models.AdminAccountNo, Role: models.RoleAdmin,
		}))
		rec := httptest.NewRecorder()

		RequireAdmin(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("customer is refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
		req = req.WithContext(WithIdentity(req.Context(), models.Identity{
			AccountNo: "1000001", Role: models.RoleCustomer,
		}))
		rec := httptest.NewRecorder()

		RequireAdmin(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing identity is refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
		rec := httptest.NewRecorder()

		RequireAdmin(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	assert.Equal(t, "", BearerToken(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", BearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", BearerToken(req))
}
