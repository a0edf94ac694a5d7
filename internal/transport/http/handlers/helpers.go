package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/dto"
	httperrors "github.com/alex123iuyt/elyse-astro-bot-sub002/internal/transport/http/errors"
)

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// writeFailure writes the {success:false,error} envelope of the notifications API.
func writeFailure(w http.ResponseWriter, status int, code string) {
	httperrors.Write(w, status, dto.FailureResponse{Success: false, Error: code})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	httperrors.Write(w, status, dto.ErrorMessageResponse{Error: message})
}

func int64URLParam(r *http.Request, key string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func intQuery(r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
