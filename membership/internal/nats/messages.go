// Package nats serves the membership service's request subjects.
package nats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/cohortlabs/cohort-stack/common/errcode"
)

// Content types accepted on request messages.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Response codes of error replies.
const (
	ResponseCodeClientError = "CLIENT_ERROR"
	ResponseCodeServerError = "SERVER_ERROR"
)

// Envelope is the wire shape of a request. Context and Request stay untyped
// until they have been normalized.
type Envelope struct {
	ID        string `json:"id" cbor:"id"`
	Operation string `json:"operation" cbor:"operation"`
	Context   any    `json:"context" cbor:"context"`
	Request   any    `json:"request" cbor:"request"`
}

// ErrorParams describes a failed request.
type ErrorParams struct {
	Err    string `json:"err" cbor:"err"`
	ErrMsg string `json:"errmsg" cbor:"errmsg"`
	Field  string `json:"field,omitempty" cbor:"field,omitempty"`
	Status string `json:"status" cbor:"status"`
}

// ErrorResponse is the reply sent when a request fails.
type ErrorResponse struct {
	ID           string      `json:"id" cbor:"id"`
	ResponseCode string      `json:"responseCode" cbor:"responseCode"`
	Params       ErrorParams `json:"params" cbor:"params"`
}

// NewErrorResponse renders e as a reply to request id.
func NewErrorResponse(id string, e *errcode.Error) *ErrorResponse {
	code := ResponseCodeClientError
	if e.Kind == errcode.KindDownstreamFailure {
		code = ResponseCodeServerError
	}
	return &ErrorResponse{
		ID:           id,
		ResponseCode: code,
		Params: ErrorParams{
			Err:    e.Code,
			ErrMsg: e.Message,
			Field:  e.Field,
			Status: "FAILED",
		},
	}
}

// codec encodes and decodes one content type.
type codec struct {
	contentType string
	unmarshal   func([]byte, any) error
	marshal     func(any) ([]byte, error)
}

var (
	jsonCodec = codec{contentType: ContentTypeJSON, unmarshal: json.Unmarshal, marshal: json.Marshal}
	cborCodec = codec{contentType: ContentTypeCBOR, unmarshal: cbor.Unmarshal, marshal: cbor.Marshal}
)

// codecFor picks the codec for a Content-Type header. Missing headers mean
// JSON.
func codecFor(contentType string) (codec, error) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "", ContentTypeJSON:
		return jsonCodec, nil
	case ContentTypeCBOR:
		return cborCodec, nil
	default:
		return codec{}, fmt.Errorf("unsupported content type %q", contentType)
	}
}
