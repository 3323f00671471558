package utils

import (
	"encoding/json"
	"net/http"
)

// WriteJSONResponse encodes data as the JSON body of an HTTP response.
// Used by the health endpoints; encoding failures are silently dropped
// because the status line is already on the wire.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
