package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"wallet/internal/money"
	"wallet/internal/services"
)

var errInvalidPayload = errors.New("invalid payload")

// parseAmount accepts a JSON number or a numeric string with at most two
// decimals and returns a positive amount in minor units.
func parseAmount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, services.ErrInvalidAmount
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, services.ErrInvalidAmount
		}
	}
	amount, err := money.ParseMinor(text)
	if err != nil || amount <= 0 {
		return 0, services.ErrInvalidAmount
	}
	return amount, nil
}

// queryInt reads an optional integer query parameter. A missing value is 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.ErrInvalidPagination
	}
	return value, nil
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return errInvalidPayload
	}
	return nil
}
