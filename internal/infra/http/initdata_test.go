package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

const botToken = "123456:TEST"

func signed(authDate time.Time, user string) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAH")
	if user != "" {
		values.Set("user", user)
	}
	return SignInitData(botToken, values)
}

func TestValidateInitData(t *testing.T) {
	secret := webAppSecret(botToken)
	now := time.Now()

	id, err := validateInitData(signed(now, `{"id":42,"first_name":"Аня"}`), secret, time.Hour, now)
	if err != nil || id != 42 {
		t.Fatalf("ожидали пользователя 42, получили %d, %v", id, err)
	}

	if _, err := validateInitData(signed(now, `{"id":42}`), webAppSecret("other"), time.Hour, now); err != errBadSignature {
		t.Fatalf("ожидали ошибку подписи, получили %v", err)
	}

	tampered, _ := url.ParseQuery(signed(now, `{"id":42}`))
	tampered.Set("user", `{"id":43}`)
	if _, err := validateInitData(tampered.Encode(), secret, time.Hour, now); err != errBadSignature {
		t.Fatalf("изменённые данные не должны проходить проверку, получили %v", err)
	}

	if _, err := validateInitData(signed(now.Add(-2*time.Hour), `{"id":42}`), secret, time.Hour, now); err != errInitDataStale {
		t.Fatalf("ожидали ошибку устаревания, получили %v", err)
	}

	if _, err := validateInitData(signed(now, ""), secret, 0, now); err != errNoUser {
		t.Fatalf("ожидали ошибку отсутствия пользователя, получили %v", err)
	}

	if _, err := validateInitData("", secret, 0, now); err != errNoInitData {
		t.Fatalf("ожидали ошибку отсутствия init_data, получили %v", err)
	}
}

func TestWebAppAuthMiddleware(t *testing.T) {
	var gotID int64
	handler := WebAppAuthMiddleware(botToken, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ratings", nil)
	req.Header.Set(InitDataHeader, signed(time.Now(), `{"id":7}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || gotID != 7 {
		t.Fatalf("ожидали пропуск запроса с id 7, код %d, id %d", rec.Code, gotID)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ratings?init_data=hash%3Dzz", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", rec.Code)
	}
}
