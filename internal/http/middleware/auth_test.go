// README: Tests for Firebase auth, logging and recovery middleware.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"convoy/internal/http/middleware"
	"convoy/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		uid := middleware.CallerUID(c)
		role := middleware.CallerRole(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "role": role})
	})
	return r
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		verifier *stubVerifier
		wantCode int
		wantUID  string
		wantRole string
	}{
		{
			name:     "missing header",
			verifier: &stubVerifier{token: &infra.FirebaseToken{UID: "user1"}},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "invalid bearer prefix",
			header:   "Token sometoken",
			verifier: &stubVerifier{token: &infra.FirebaseToken{UID: "user1"}},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "verifier error",
			header:   "Bearer invalidtoken",
			verifier: &stubVerifier{err: errors.New("bad token")},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:   "carrier role claim",
			header: "Bearer validtoken",
			verifier: &stubVerifier{token: &infra.FirebaseToken{
				UID:    "carrier123",
				Claims: map[string]interface{}{"role": "carrier"},
			}},
			wantCode: http.StatusOK,
			wantUID:  "carrier123",
			wantRole: "carrier",
		},
		{
			name:   "no role claim defaults to client",
			header: "Bearer validtoken",
			verifier: &stubVerifier{token: &infra.FirebaseToken{
				UID:    "client456",
				Claims: map[string]interface{}{},
			}},
			wantCode: http.StatusOK,
			wantUID:  "client456",
			wantRole: "client",
		},
		{
			name:   "unknown role falls back to client",
			header: "Bearer validtoken",
			verifier: &stubVerifier{token: &infra.FirebaseToken{
				UID:    "someone",
				Claims: map[string]interface{}{"role": "superuser"},
			}},
			wantCode: http.StatusOK,
			wantUID:  "someone",
			wantRole: "client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(tt.verifier)
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			body := w.Body.String()
			if !strings.Contains(body, `"uid":"`+tt.wantUID+`"`) {
				t.Errorf("expected uid %s in body, got %s", tt.wantUID, body)
			}
			if !strings.Contains(body, `"role":"`+tt.wantRole+`"`) {
				t.Errorf("expected role %s in body, got %s", tt.wantRole, body)
			}
		})
	}
}

func TestRecovery_Returns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(nil), middleware.Logging(nil))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
