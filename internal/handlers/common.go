// Package handlers provides HTTP handlers for the holdings backend.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	apperrors "holdings/internal/errors"
	"holdings/internal/questrade"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encoding response")
	}
}

// writeRaw writes an upstream JSON document unchanged.
func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}

// writeError logs err and writes its public message. Upstream bodies are
// logged for malformed responses only and never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	log := hlog.FromRequest(r)

	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev = ev.Err(err).Str("kind", apperrors.Kind(err)).Int("status", status)

	var mErr *questrade.MalformedResponseError
	if errors.As(err, &mErr) {
		ev = ev.Str("op", mErr.Op).Str("field", mErr.Field).Bytes("payload", mErr.Payload)
	}
	var apiErr *questrade.APIError
	if errors.As(err, &apiErr) {
		ev = ev.Int("upstream_status", apiErr.Status)
	}
	ev.Msg("request failed")

	http.Error(w, apperrors.PublicMessage(err), status)
}

// credentialSource selects where a route reads credentials from.
type credentialSource int

const (
	fromCookies credentialSource = iota
	fromBodyOrCookies
)

// broker resolves a valid credential for the request, re-issues it as
// cookies and returns a client bound to it. On failure the error response
// has been written and ok is false.
func (d *Dependencies) broker(w http.ResponseWriter, r *http.Request, src credentialSource) (client *questrade.Client, res questrade.RefreshResult, ok bool) {
	var cred questrade.Credential
	var err error
	if src == fromBodyOrCookies {
		cred, err = d.Transport.FromRequest(r)
	} else {
		cred, err = d.Transport.FromCookies(r)
	}
	if err != nil {
		writeError(w, r, err)
		return nil, res, false
	}

	res, err = d.Refresher.GetValidCredential(r.Context(), cred)
	if err != nil {
		writeError(w, r, err)
		return nil, res, false
	}

	// Cookies go out before any body, so they accompany failures after this point.
	if err := d.Transport.Write(w, res.Credential); err != nil {
		writeError(w, r, err)
		return nil, res, false
	}
	if res.Refreshed {
		hlog.FromRequest(r).Info().Msg("credential refreshed for request")
	}
	return d.Connector.Client(res.Credential), res, true
}
