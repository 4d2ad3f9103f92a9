package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"time"

	"manuscript-review/internal/logger"
	"manuscript-review/internal/service"
)

var timeType = reflect.TypeOf(time.Time{})

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  string `json:"code,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// JSONResponse encodes data as JSON, turning nil slices into empty arrays so
// clients never have to handle null lists
func JSONResponse(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(normalizeSlices(reflect.ValueOf(data)))
}

// normalizeSlices returns a copy of v in which every nil slice is empty
func normalizeSlices(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return normalizeValue(v).Interface()
}

func normalizeValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		return normalizeValue(v.Elem())
	case reflect.Ptr:
		if v.IsNil() || v.Elem().Type() == timeType {
			return v
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(normalizeValue(v.Elem()))
		return out
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		if v.IsNil() {
			return reflect.MakeSlice(v.Type(), 0, 0)
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(normalizeValue(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), normalizeValue(iter.Value()))
		}
		return out
	case reflect.Struct:
		if v.Type() == timeType {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(normalizeValue(v.Field(i)))
		}
		return out
	}
	return v
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	JSONResponse(w, code, ErrorResponse{Error: message})
}

// statusFor maps a lifecycle error kind to its HTTP status
func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindIllegalTransition, service.KindTerminalState:
		return http.StatusUnprocessableEntity
	case service.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondWithServiceError writes a lifecycle error, hiding unexpected failures
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		logger.FromContext(r.Context()).Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	JSONResponse(w, statusFor(svcErr.Kind), ErrorResponse{
		Error: svcErr.Error(),
		Kind:  string(svcErr.Kind),
		Code:  svcErr.Code,
		From:  string(svcErr.From),
		To:    string(svcErr.To),
	})
}
