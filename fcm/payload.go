package fcm

import (
	"bytes"
	"fmt"
	"net/url"
)

const (
	contentTypeJSON      = "application/json"
	contentTypePlainText = "application/x-www-form-urlencoded;charset=UTF-8"
)

// Payload is a serialized message body, built once per send and
// immutable afterwards.
type Payload struct {
	body        []byte
	contentType string
}

func (p Payload) Body() []byte { return p.body }

func (p Payload) ContentType() string { return p.contentType }

// JSONPayload validates fields and serializes them as the JSON body of
// a data or notification send.
func JSONPayload(fields *Fields) (Payload, error) {
	if err := fields.Validate(); err != nil {
		return Payload{}, err
	}

	body, err := fields.MarshalJSON()
	if err != nil {
		return Payload{}, fmt.Errorf("encode json payload: %w", err)
	}

	return Payload{body: body, contentType: contentTypeJSON}, nil
}

// PlainTextPayload validates fields and serializes them as the form
// body of a plain-text send. Entries of the data mapping are lifted
// into dotted data.<key> form keys and the data field itself is
// dropped; an absent data field encodes the remaining fields only.
// Form encoding addresses a single device, so registration_ids is
// rejected here; multicast requires the JSON payload.
func PlainTextPayload(fields *Fields) (Payload, error) {
	if err := fields.Validate(); err != nil {
		return Payload{}, err
	}

	var buf bytes.Buffer
	appendPair := func(key, value string) {
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(key))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(value))
	}

	for _, name := range fields.Names() {
		value, _ := fields.Get(name)

		switch {
		case name == fieldRegistrationIDs:
			return Payload{}, fmt.Errorf("%w: registration_ids cannot be form encoded", ErrValidation)
		case name == fieldData && value.kind == kindMapping:
			if value.mapping == nil {
				continue
			}
			for _, key := range value.mapping.names {
				parts, err := value.mapping.values[key].formStrings()
				if err != nil {
					return Payload{}, fmt.Errorf("data.%s: %w", key, err)
				}
				for _, part := range parts {
					appendPair("data."+key, part)
				}
			}
		default:
			parts, err := value.formStrings()
			if err != nil {
				return Payload{}, fmt.Errorf("%s: %w", name, err)
			}
			for _, part := range parts {
				appendPair(name, part)
			}
		}
	}

	return Payload{body: buf.Bytes(), contentType: contentTypePlainText}, nil
}
