// Package httpkit holds small HTTP helpers shared by the API handlers.
package httpkit

import (
	"encoding/json"
	"io"
	"net/http"

	"videoproc/internal/pkg/errors"
)

// DecodeJSON decodes the request body into v. Unknown fields are
// accepted since the editor sends more than the renderer reads.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errors.Validationf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.Validation("request body is empty")
		default:
			return errors.WrapWithCode(err, errors.CodeValidation, "httpkit.decode", "invalid JSON body")
		}
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
