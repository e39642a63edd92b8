package fcm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const maxRegistrationIDs = 1000

// Field names recognized by the legacy HTTP API. Anything else the
// caller sets is passed through to the provider untouched.
const (
	fieldTo                    = "to"
	fieldRegistrationIDs       = "registration_ids"
	fieldCondition             = "condition"
	fieldCollapseKey           = "collapse_key"
	fieldPriority              = "priority"
	fieldContentAvailable      = "content_available"
	fieldMutableContent        = "mutable_content"
	fieldTimeToLive            = "time_to_live"
	fieldRestrictedPackageName = "restricted_package_name"
	fieldDryRun                = "dry_run"
	fieldData                  = "data"
	fieldNotification          = "notification"
)

type kind uint8

const (
	kindString kind = iota + 1
	kindInt
	kindFloat
	kindBool
	kindStrings
	kindMapping
)

// Value is the closed set of shapes a payload field can take: string,
// integer, float, bool, list of strings, or a nested mapping.
type Value struct {
	kind    kind
	str     string
	integer int64
	real    float64
	boolean bool
	list    []string
	mapping *Fields
}

func String(s string) Value { return Value{kind: kindString, str: s} }

func Int(n int64) Value { return Value{kind: kindInt, integer: n} }

func Float(f float64) Value { return Value{kind: kindFloat, real: f} }

func Bool(b bool) Value { return Value{kind: kindBool, boolean: b} }

func Strings(ids ...string) Value {
	return Value{kind: kindStrings, list: append([]string(nil), ids...)}
}

func Mapping(f *Fields) Value { return Value{kind: kindMapping, mapping: f} }

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case kindString:
		encoded, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case kindInt:
		buf.WriteString(strconv.FormatInt(v.integer, 10))
	case kindFloat:
		encoded, err := json.Marshal(v.real)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case kindBool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case kindStrings:
		if v.list == nil {
			buf.WriteString("[]")
			return nil
		}
		encoded, err := json.Marshal(v.list)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case kindMapping:
		if v.mapping == nil {
			buf.WriteString("{}")
			return nil
		}
		encoded, err := v.mapping.MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(encoded)
	default:
		return fmt.Errorf("%w: field has no value", ErrValidation)
	}

	return nil
}

func (v Value) formStrings() ([]string, error) {
	switch v.kind {
	case kindString:
		return []string{v.str}, nil
	case kindInt:
		return []string{strconv.FormatInt(v.integer, 10)}, nil
	case kindFloat:
		return []string{strconv.FormatFloat(v.real, 'g', -1, 64)}, nil
	case kindBool:
		return []string{strconv.FormatBool(v.boolean)}, nil
	case kindStrings:
		return v.list, nil
	default:
		return nil, fmt.Errorf("%w: nested mappings cannot be form encoded", ErrValidation)
	}
}

// Fields is an ordered set of named payload fields. First-insertion
// order is preserved and is the order fields serialize in; setting an
// existing name updates its value in place.
type Fields struct {
	names  []string
	values map[string]Value
}

func NewFields() *Fields {
	return &Fields{values: make(map[string]Value)}
}

func (f *Fields) Set(name string, value Value) *Fields {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = value
	return f
}

func (f *Fields) SetString(name, value string) *Fields { return f.Set(name, String(value)) }

func (f *Fields) SetInt(name string, value int64) *Fields { return f.Set(name, Int(value)) }

func (f *Fields) SetBool(name string, value bool) *Fields { return f.Set(name, Bool(value)) }

// SetTo addresses the message to a single recipient id.
func (f *Fields) SetTo(id string) *Fields { return f.Set(fieldTo, String(id)) }

// SetRegistrationIDs addresses the message to up to 1000 recipient ids.
func (f *Fields) SetRegistrationIDs(ids ...string) *Fields {
	return f.Set(fieldRegistrationIDs, Strings(ids...))
}

func (f *Fields) SetCondition(expr string) *Fields { return f.Set(fieldCondition, String(expr)) }

func (f *Fields) SetCollapseKey(key string) *Fields { return f.Set(fieldCollapseKey, String(key)) }

func (f *Fields) SetPriority(priority string) *Fields {
	return f.Set(fieldPriority, String(priority))
}

func (f *Fields) SetContentAvailable(available bool) *Fields {
	return f.Set(fieldContentAvailable, Bool(available))
}

func (f *Fields) SetMutableContent(mutable bool) *Fields {
	return f.Set(fieldMutableContent, Bool(mutable))
}

func (f *Fields) SetTimeToLive(seconds int64) *Fields {
	return f.Set(fieldTimeToLive, Int(seconds))
}

func (f *Fields) SetRestrictedPackageName(name string) *Fields {
	return f.Set(fieldRestrictedPackageName, String(name))
}

func (f *Fields) SetDryRun(dryRun bool) *Fields { return f.Set(fieldDryRun, Bool(dryRun)) }

// SetData attaches the custom key-value payload delivered to the app.
func (f *Fields) SetData(data *Fields) *Fields { return f.Set(fieldData, Mapping(data)) }

// SetNotification attaches the display notification fields.
func (f *Fields) SetNotification(notification *Fields) *Fields {
	return f.Set(fieldNotification, Mapping(notification))
}

func (f *Fields) Get(name string) (Value, bool) {
	if f == nil || f.values == nil {
		return Value{}, false
	}
	value, ok := f.values[name]
	return value, ok
}

func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.names)
}

func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.names...)
}

// Recipients returns the recipient ids the payload addresses, in the
// order the provider reports results for them: the registration_ids
// list when present, otherwise the single to target.
func (f *Fields) Recipients() []string {
	if ids, ok := f.Get(fieldRegistrationIDs); ok && ids.kind == kindStrings {
		return append([]string(nil), ids.list...)
	}
	if to, ok := f.Get(fieldTo); ok && to.kind == kindString && to.str != "" {
		return []string{to.str}
	}
	return nil
}

// validators maps field names to their payload checks. Fields without
// an entry pass through unvalidated.
var validators = map[string]func(Value) error{
	fieldRegistrationIDs: validateRegistrationIDs,
}

func validateRegistrationIDs(v Value) error {
	if v.kind != kindStrings {
		return fmt.Errorf("%w: registration_ids must be a list of strings", ErrValidation)
	}
	if len(v.list) > maxRegistrationIDs {
		return fmt.Errorf("%w: %d ids exceed the limit of %d", ErrTooManyRegistrationIDs, len(v.list), maxRegistrationIDs)
	}
	return nil
}

// Validate runs the per-field checks. It is called by the payload
// builders before serialization, so a failing payload never reaches
// the network.
func (f *Fields) Validate() error {
	if f == nil {
		return nil
	}

	for _, name := range f.names {
		check, ok := validators[name]
		if !ok {
			continue
		}
		if err := check(f.values[name]); err != nil {
			return err
		}
	}

	return nil
}

var _ json.Marshaler = (*Fields)(nil)

// MarshalJSON serializes fields as a JSON object in insertion order.
func (f *Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range f.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := f.values[name].appendJSON(&buf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
