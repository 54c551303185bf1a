package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const (
	HeaderContentType = "Content-Type"
)

var (
	ContentTypeJSON       = "application/json" // This can be used to customize the content type reported to the client.
	MaxBodyBytes    int64 = 1 << 20            // MaxBodyBytes limits the size of request bodies read by [DecodeJSON].
)

// ErrorBody is the JSON representation of a failed request.
// Fields holds per-field reasons when the request body was rejected by validation.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON serializes val and writes it with the given status code.
// If val can't be serialized, then a 500 response is written instead and the error is returned.
func WriteJSON(w http.ResponseWriter, statusCode int, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return fmt.Errorf("%w: %v", ErrServerError, err)
	}
	data = append(data, '\n')
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(statusCode)
	_, err = w.Write(data)
	return err
}

// WriteError writes an [ErrorBody] with the given status code.
func WriteError(w http.ResponseWriter, statusCode int, msg string, fields map[string]string) error {
	return WriteJSON(w, statusCode, ErrorBody{Error: msg, Fields: fields})
}

// DecodeJSON reads a single JSON value from the request body into target, limited to [MaxBodyBytes].
// Numbers are decoded as [json.Number] when target holds untyped values, so integers keep their precision.
// Any error is wrapped with [ErrClientError].
func DecodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	defer func() {
		_ = r.Body.Close()
	}()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", ErrClientError)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", ErrClientError, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON body", ErrClientError)
	}
	return nil
}
