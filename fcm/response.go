package fcm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Failure reasons the provider reports per recipient. The reconciler
// treats reasons as opaque strings; these constants name the ones
// downstream consumers commonly branch on.
const (
	ReasonMissingRegistration = "MissingRegistration"
	ReasonInvalidRegistration = "InvalidRegistration"
	ReasonNotRegistered       = "NotRegistered"
	ReasonUnavailable         = "Unavailable"
	ReasonInternalServerError = "InternalServerError"
)

// Response mirrors the JSON document the messaging server answers a
// downstream send with. Results are ordered positionally: entry i
// reports on the i-th recipient of the request.
type Response struct {
	MulticastID  int64    `json:"multicast_id"`
	Success      int      `json:"success"`
	Failure      int      `json:"failure"`
	CanonicalIDs int      `json:"canonical_ids"`
	Results      []Result `json:"results"`
}

// Result carries the per-recipient outcome: a message id on success,
// a replacement registration id when the recipient's id went
// canonical, an error reason on failure. The provider may combine
// message_id and registration_id in one entry.
type Result struct {
	MessageID      string `json:"message_id,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ErrorGroups maps a failure reason to the recipient ids that failed
// with it. Reasons keep the order they were first observed in, ids
// keep result order; the JSON form is an object in that reason order.
type ErrorGroups struct {
	reasons []string
	ids     map[string][]string
}

func (g *ErrorGroups) add(reason, id string) {
	if g.ids == nil {
		g.ids = make(map[string][]string)
	}
	if _, ok := g.ids[reason]; !ok {
		g.reasons = append(g.reasons, reason)
	}
	g.ids[reason] = append(g.ids[reason], id)
}

func (g *ErrorGroups) Len() int {
	if g == nil {
		return 0
	}
	return len(g.reasons)
}

func (g *ErrorGroups) Reasons() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.reasons...)
}

func (g *ErrorGroups) IDs(reason string) []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.ids[reason]...)
}

func (g *ErrorGroups) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, reason := range g.reasons {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(reason)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		ids, err := json.Marshal(g.ids[reason])
		if err != nil {
			return nil, err
		}
		buf.Write(ids)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// Report is the reconciled view of a send: which recipients failed and
// why, which got a canonical id update, which succeeded with what
// message id. Absent keys mean no entries of that kind; a fully empty
// report is possible.
type Report struct {
	Errors    *ErrorGroups      `json:"errors,omitempty"`
	Canonical map[string]string `json:"canonical,omitempty"`
	Success   map[string]string `json:"success,omitempty"`
}

func (r *Report) IsEmpty() bool {
	return r == nil || (r.Errors.Len() == 0 && len(r.Canonical) == 0 && len(r.Success) == 0)
}

// Reconcile pairs each recipient id with the result at the same index
// and groups the outcomes. The provider is expected to answer one
// result per recipient; a length mismatch yields
// ErrResultCountMismatch rather than silently dropping either side.
func Reconcile(recipients []string, response *Response) (*Report, error) {
	if response == nil {
		return nil, fmt.Errorf("response is required")
	}
	if len(recipients) != len(response.Results) {
		return nil, fmt.Errorf("%w: %d recipients, %d results",
			ErrResultCountMismatch, len(recipients), len(response.Results))
	}

	report := &Report{}
	for i, result := range response.Results {
		recipient := recipients[i]

		if result.Error != "" {
			if report.Errors == nil {
				report.Errors = &ErrorGroups{}
			}
			report.Errors.add(result.Error, recipient)
		}
		if result.RegistrationID != "" {
			if report.Canonical == nil {
				report.Canonical = make(map[string]string)
			}
			report.Canonical[recipient] = result.RegistrationID
		}
		if result.MessageID != "" {
			if report.Success == nil {
				report.Success = make(map[string]string)
			}
			report.Success[recipient] = result.MessageID
		}
	}

	return report, nil
}
