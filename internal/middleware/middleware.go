package middleware

import (
	"errors"
	"net/http"
)

type contextKey string

const UserContextKey contextKey = "username"
const RequestIDKey contextKey = "request_id"

func ExtractUserFromContext(r *http.Request) (string, error) {
	username, ok := r.Context().Value(UserContextKey).(string)
	if !ok {
		return "", errors.New("user not found in context")
	}
	return username, nil
}
