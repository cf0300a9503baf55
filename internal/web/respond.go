package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/vbonduro/famshop/internal/apperr"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Message string      `json:"message"`
	Code    apperr.Code `json:"code,omitempty"`
	Entity  string      `json:"entity,omitempty"`
	Details any         `json:"details,omitempty"`
}

type rawError struct {
	Error errorBody `json:"error"`
}

type wrapped struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

// writeError writes the family route error body. Internal causes are logged
// and never serialized.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := s.coded(r, err)
	writeJSON(w, e.Status(), rawError{Error: errorBody{Message: e.Message, Code: e.Code, Details: e.Details}}, s.logger)
}

// writeUnauthorized writes the bare 401 body of the family routes.
func (s *Server) writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, rawError{Error: errorBody{Message: "Unauthorized"}}, s.logger)
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, wrapped{Success: true, Data: data}, s.logger)
}

// writeWrappedError writes the {success:false,error} body of the plugin routes.
func (s *Server) writeWrappedError(w http.ResponseWriter, r *http.Request, err error) {
	e := s.coded(r, err)
	entity := e.Entity
	if entity == "" {
		entity = apperr.DefaultEntity
	}
	writeJSON(w, e.Status(), wrapped{Error: &errorBody{
		Message: e.Message,
		Code:    e.Code,
		Entity:  entity,
		Details: e.Details,
	}}, s.logger)
}

func (s *Server) coded(r *http.Request, err error) *apperr.Error {
	e := apperr.From(err, "Internal server error")
	if e.Code == apperr.CodeInternal {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	return e
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required")
		}
		return apperr.Validation("Invalid JSON body").WithDetails(decodeDetails(err))
	}
	return nil
}

// decodeDetails describes a decode failure in JSON terms. Go type names stay
// out of responses.
func decodeDetails(err error) any {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		return map[string]any{"field": typeErr.Field, "expected": jsonKind(typeErr.Type)}
	case errors.As(err, &syntaxErr):
		return map[string]any{"offset": syntaxErr.Offset}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return map[string]any{"reason": "unexpected end of body"}
	default:
		return nil
	}
}

func jsonKind(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "value"
	}
}
