package middleware

import "net/http"

// BodyLimit caps the request body size. Requests exceeding the limit fail
// mid-read with http.MaxBytesError, which handlers surface as 413.
func BodyLimit(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}
