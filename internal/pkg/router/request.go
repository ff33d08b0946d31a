package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/courier/internal/pkg/goerror"
)

// Request is what handlers receive. Parse failures come back as goerror
// format errors so they render as 400.
type Request struct {
	*http.Request
}

// GetParam reads a path parameter stored by httprouter.
func (r *Request) GetParam(key string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(key)
}

func (r *Request) GetParamInt64(key string) (int64, error) {
	v, err := strconv.ParseInt(r.GetParam(key), 10, 64)
	if err != nil {
		return 0, goerror.NewInvalidFormat("Path parameter " + key + " must be an integer")
	}
	return v, nil
}

func (r *Request) GetQuery(key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// GetQueryInt32 returns 0 when key is absent.
func (r *Request) GetQueryInt32(key string) (int32, error) {
	raw := r.GetQuery(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, goerror.NewInvalidFormat("Query " + key + " must be an integer")
	}
	return int32(v), nil
}

// GetQueryTime parses an RFC 3339 value and returns nil when key is absent.
func (r *Request) GetQueryTime(key string) (*time.Time, error) {
	raw := r.GetQuery(key)
	if raw == "" {
		return nil, nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, goerror.NewInvalidFormat("Query " + key + " must be an RFC 3339 time")
	}
	return &v, nil
}

// DecodeBody decodes exactly one JSON document into dst and rejects unknown
// fields.
func (r *Request) DecodeBody(dst any) error {
	if r.Body == nil {
		return goerror.NewInvalidFormat()
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return goerror.NewInvalidFormat()
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return goerror.NewInvalidFormat("Request body must contain a single JSON document")
	}
	return nil
}

// RawBody returns the unparsed body, which webhook signature checks need.
func (r *Request) RawBody(maxBytes int64) ([]byte, error) {
	if r.Body == nil {
		return nil, goerror.NewInvalidFormat()
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBytes))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nil, goerror.NewInvalidFormat("Request body too large")
	case err != nil:
		return nil, goerror.NewInvalidFormat()
	}
	return body, nil
}
