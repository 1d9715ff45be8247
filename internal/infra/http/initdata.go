package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// InitDataHeader заголовок, в котором Mini App может передать initData.
const InitDataHeader = "X-Telegram-Init-Data"

var (
	errNoInitData    = errors.New("init_data отсутствует")
	errBadSignature  = errors.New("подпись недействительна")
	errInitDataStale = errors.New("init_data устарели")
	errNoUser        = errors.New("в init_data нет пользователя")
)

type ctxKey int

const userIDKey ctxKey = iota

// WebAppAuthMiddleware проверяет initData Telegram Mini App по токену бота
// и кладёт id пользователя Telegram в контекст запроса. maxAge=0 отключает проверку возраста.
func WebAppAuthMiddleware(botToken string, maxAge time.Duration) func(http.Handler) http.Handler {
	secret := webAppSecret(botToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.URL.Query().Get("init_data")
			if initData == "" {
				initData = r.Header.Get(InitDataHeader)
			}
			userID, err := validateInitData(initData, secret, maxAge, time.Now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// UserID возвращает id пользователя Telegram, проверенный WebAppAuthMiddleware.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func webAppSecret(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// SignInitData подписывает набор полей так же, как это делает Telegram.
func SignInitData(botToken string, values url.Values) string {
	values.Set("hash", hex.EncodeToString(checkHash(values, webAppSecret(botToken))))
	return values.Encode()
}

func checkHash(values url.Values, secret []byte) []byte {
	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return mac.Sum(nil)
}

func validateInitData(initData string, secret []byte, maxAge time.Duration, now time.Time) (int64, error) {
	if initData == "" {
		return 0, errNoInitData
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, errBadSignature
	}
	expected, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(expected) == 0 {
		return 0, errBadSignature
	}
	if !hmac.Equal(checkHash(values, secret), expected) {
		return 0, errBadSignature
	}
	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || now.Sub(time.Unix(authDate, 0)) > maxAge {
			return 0, errInitDataStale
		}
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return 0, errNoUser
	}
	return user.ID, nil
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON сериализует ответ.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
