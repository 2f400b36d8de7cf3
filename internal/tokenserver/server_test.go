package tokenserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dkeye/voiceroom/internal/adapters/identity"
	"github.com/dkeye/voiceroom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const apiSecret = "test-secret-test-secret-test-sec"

var testIdentity = identity.Config{Issuer: "voiceroom-test", Secret: "bearer-secret", TTL: time.Minute}

func newTestServer() *gin.Engine {
	s := New(Config{APIKey: "key", APISecret: apiSecret, TokenTTL: time.Hour}, testIdentity, seededDirectory())
	return s.Router("test")
}

func request(t *testing.T, h http.Handler, room, user, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	q := url.Values{}
	if room != "" {
		q.Set("room", room)
	}
	if user != "" {
		q.Set("identity", user)
	}
	req := httptest.NewRequest(http.MethodGet, "/token?"+q.Encode(), nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearerFor(t *testing.T, user domain.UserID) string {
	t.Helper()
	b, err := identity.Sign(testIdentity, user)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b
}

func TestTokenIssued(t *testing.T) {
	t.Parallel()
	rec := request(t, newTestServer(), "campaign", "gm-alice", bearerFor(t, "gm-alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Role != domain.RoleGM || resp.Token == "" {
		t.Fatalf("response = %+v", resp)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (any, error) {
		return []byte(apiSecret), nil
	}); err != nil {
		t.Fatalf("media token does not verify: %v", err)
	}
	if claims["sub"] != "gm-alice" || claims["iss"] != "key" {
		t.Fatalf("claims sub=%v iss=%v", claims["sub"], claims["iss"])
	}
	video, _ := claims["video"].(map[string]any)
	if video["room"] != "campaign" || video["roomJoin"] != true {
		t.Fatalf("video grant = %v", video)
	}
}

func TestTokenRejected(t *testing.T) {
	t.Parallel()
	h := newTestServer()
	tests := []struct {
		name   string
		room   string
		user   string
		bearer string
		want   int
	}{
		{name: "no room", user: "bob", bearer: bearerFor(t, "bob"), want: http.StatusBadRequest},
		{name: "no identity", room: "campaign", bearer: bearerFor(t, "bob"), want: http.StatusBadRequest},
		{name: "no bearer", room: "campaign", user: "bob", want: http.StatusUnauthorized},
		{name: "garbage bearer", room: "campaign", user: "bob", bearer: "nope", want: http.StatusUnauthorized},
		{name: "someone else's bearer", room: "campaign", user: "bob", bearer: bearerFor(t, "gm-alice"), want: http.StatusUnauthorized},
		{name: "not a member", room: "campaign", user: "mallory", bearer: bearerFor(t, "mallory"), want: http.StatusForbidden},
		{name: "unknown room", room: "attic", user: "bob", bearer: bearerFor(t, "bob"), want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if rec := request(t, h, tt.room, tt.user, tt.bearer); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestOpenRoomGrantsDefaultRole(t *testing.T) {
	t.Parallel()
	rec := request(t, newTestServer(), "lobby", "anon-1", bearerFor(t, "anon-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Role != domain.RolePlayer {
		t.Fatalf("role = %q, want player", resp.Role)
	}
}
