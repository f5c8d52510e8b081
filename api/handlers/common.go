package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"driveshare/core/auth"
	"driveshare/core/docs"
	"driveshare/core/errs"
	"driveshare/core/utils"
)

const jsonPayloadMaxBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err with the status its kind maps to. Server errors are
// logged and their text is not sent to the client.
func writeError(w http.ResponseWriter, logger *utils.Logger, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError && logger != nil {
		logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"error": errs.PublicMessage(err)})
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", errs.ErrValidation)
	}
	err := json.NewDecoder(io.LimitReader(r.Body, jsonPayloadMaxBytes)).Decode(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid json: %v", errs.ErrValidation, err)
	}
	return nil
}

func current(r *http.Request) *auth.Current {
	if cur := auth.FromContext(r.Context()); cur != nil {
		return cur
	}
	return &auth.Current{}
}

func caller(r *http.Request) docs.Caller {
	cur := current(r)
	return docs.Caller{User: cur.User, Organization: cur.Organization}
}

func parseIntDefault(val string, def int) int {
	if val == "" {
		return def
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	return def
}

func parseBool(val string) bool {
	b, _ := strconv.ParseBool(val)
	return b
}

// ttlParam reads a TTL in seconds; zero means no URL is attached.
func ttlParam(r *http.Request) time.Duration {
	return time.Duration(parseIntDefault(r.URL.Query().Get("ttl"), 0)) * time.Second
}

func secondsTTL(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
