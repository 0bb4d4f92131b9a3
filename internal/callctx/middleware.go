package callctx

import (
	"net/http"

	"github.com/google/uuid"
)

// Middleware собирает CallContext для каждого входящего запроса.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cc := FromRequest(r)

		// Если X-Request-ID не пришел от клиента/прокси — генерируем новый
		if cc.RequestID == "" {
			cc.RequestID = uuid.New().String()
		}

		// Добавляем в ответ, чтобы клиент тоже знал ID своего запроса
		w.Header().Set(HeaderRequestID, cc.RequestID)

		next.ServeHTTP(w, r.WithContext(WithCallContext(r.Context(), cc)))
	})
}
