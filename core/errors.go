package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Kind classifies a failure at an external-call boundary.
type Kind string

const (
	// KindConfiguration is fatal at startup: missing credentials, bad values.
	KindConfiguration Kind = "configuration"
	// KindEmbedding means the embedding model could not produce a vector.
	KindEmbedding Kind = "embedding"
	// KindStorage means the vector store read or write failed.
	KindStorage Kind = "storage"
	// KindGeneration means the language model call failed or timed out.
	KindGeneration Kind = "generation"
	// KindInvalidInput means the caller sent something unusable.
	KindInvalidInput Kind = "invalid_input"
)

// NewError wraps err with a kind and the operation that failed.
// Additional key/value pairs are attached as structured context.
// Returns nil when err is nil.
func NewError(kind Kind, op string, err error, kv ...any) error {
	if err == nil {
		return nil
	}
	return oops.
		Code(kind).
		With("op", op).
		With(kv...).
		Wrapf(err, "%s", op)
}

// Errorf creates a new error of the given kind without an underlying cause.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return oops.
		Code(kind).
		With("op", op).
		Errorf(format, args...)
}

// KindOf returns the kind attached to err, or "" for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case Kind:
		return code
	case string:
		return Kind(code)
	case nil:
		return ""
	default:
		return Kind(fmt.Sprintf("%v", code))
	}
}

// OpOf returns the operation recorded on err, if any.
func OpOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	op, _ := oopsErr.Context()["op"].(string)
	return op
}

func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
func IsEmbedding(err error) bool     { return KindOf(err) == KindEmbedding }
func IsStorage(err error) bool       { return KindOf(err) == KindStorage }
func IsGeneration(err error) bool    { return KindOf(err) == KindGeneration }
func IsInvalidInput(err error) bool  { return KindOf(err) == KindInvalidInput }

// IsRecoverable reports whether err is a per-request failure the front end
// should degrade on instead of aborting.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindEmbedding, KindStorage, KindGeneration:
		return true
	}
	return false
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatus maps an error to the status a front end should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsRecoverable(err) && IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsRecoverable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
