package protocol

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Envelope is the unit every channel carries. In-process channels hand Data
// over as is; network channels deliver it as json.RawMessage.
type Envelope struct {
	Subject string `json:"subject"`
	Data    any    `json:"data,omitempty"`
}

// Decode returns the payload of e as a T, converting through JSON when the
// payload is raw or of another type.
func Decode[T any](e Envelope) (T, error) {
	var out T
	var raw []byte
	switch v := e.Data.(type) {
	case nil:
		return out, nil
	case T:
		return v, nil
	case *T:
		if v == nil {
			return out, nil
		}
		return *v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return out, errors.Wrapf(ErrInvalidFrame, "%s payload: %v", e.Subject, err)
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.Wrapf(ErrInvalidFrame, "%s payload: %v", e.Subject, err)
	}
	return out, nil
}

type wireEnvelope struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// JSONCodec encodes envelopes for network channels.
type JSONCodec struct{}

func (JSONCodec) Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", e.Subject)
	}
	return data, nil
}

// Decode parses one frame. Data stays raw until the receiver decodes it.
func (JSONCodec) Decode(frame []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(frame, &w); err != nil {
		return Envelope{}, errors.Wrap(ErrInvalidFrame, err.Error())
	}
	if w.Subject == "" {
		return Envelope{}, errors.Wrap(ErrInvalidFrame, "missing subject")
	}
	e := Envelope{Subject: w.Subject}
	if len(w.Data) > 0 && string(w.Data) != "null" {
		e.Data = w.Data
	}
	return e, nil
}
