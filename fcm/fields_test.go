package fcm

import (
	"errors"
	"fmt"
	"testing"
)

func TestFieldsSetKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	fields := NewFields().
		SetTo("device-1").
		SetCollapseKey("updates").
		SetPriority("high")

	want := []string{"to", "collapse_key", "priority"}
	got := fields.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFieldsSetOverwriteKeepsPosition(t *testing.T) {
	t.Parallel()

	fields := NewFields().
		SetTo("device-1").
		SetCollapseKey("updates").
		SetTo("device-2")

	if fields.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", fields.Len())
	}

	names := fields.Names()
	if names[0] != "to" {
		t.Fatalf("Names()[0] = %q, want to", names[0])
	}

	value, ok := fields.Get("to")
	if !ok {
		t.Fatal("Get(to) not found")
	}
	if value.str != "device-2" {
		t.Fatalf("to = %q, want device-2", value.str)
	}
}

func TestFieldsMarshalJSONInsertionOrder(t *testing.T) {
	t.Parallel()

	data := NewFields().
		SetString("score", "5x1").
		SetString("time", "15:10")

	fields := NewFields().
		SetTo("device-1").
		SetTimeToLive(0).
		SetDryRun(true).
		SetData(data)

	got, err := fields.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	want := `{"to":"device-1","time_to_live":0,"dry_run":true,"data":{"score":"5x1","time":"15:10"}}`
	if string(got) != want {
		t.Fatalf("MarshalJSON() = %s, want %s", got, want)
	}
}

func TestFieldsMarshalJSONValueKinds(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		value Value
		want  string
	}{
		{name: "string", value: String("hello"), want: `{"k":"hello"}`},
		{name: "string escaping", value: String(`say "hi"`), want: `{"k":"say \"hi\""}`},
		{name: "int", value: Int(-7), want: `{"k":-7}`},
		{name: "float", value: Float(1.5), want: `{"k":1.5}`},
		{name: "bool", value: Bool(false), want: `{"k":false}`},
		{name: "strings", value: Strings("a", "b"), want: `{"k":["a","b"]}`},
		{name: "empty strings", value: Strings(), want: `{"k":[]}`},
		{name: "nil mapping", value: Mapping(nil), want: `{"k":{}}`},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fields := NewFields().Set("k", tc.value)
			got, err := fields.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON() error = %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("MarshalJSON() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFieldsMarshalJSONZeroValue(t *testing.T) {
	t.Parallel()

	fields := NewFields().Set("k", Value{})
	if _, err := fields.MarshalJSON(); !errors.Is(err, ErrValidation) {
		t.Fatalf("MarshalJSON() error = %v, want ErrValidation", err)
	}
}

func TestFieldsValidateRegistrationIDs(t *testing.T) {
	t.Parallel()

	makeIDs := func(n int) []string {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("device-%d", i)
		}
		return ids
	}

	testCases := []struct {
		name    string
		count   int
		wantErr bool
	}{
		{name: "one id", count: 1},
		{name: "exactly at the limit", count: 1000},
		{name: "one over the limit", count: 1001, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fields := NewFields().SetRegistrationIDs(makeIDs(tc.count)...)
			err := fields.Validate()

			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}

			if !errors.Is(err, ErrTooManyRegistrationIDs) {
				t.Fatalf("Validate() error = %v, want ErrTooManyRegistrationIDs", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation through the chain", err)
			}
		})
	}
}

func TestFieldsValidateRegistrationIDsKind(t *testing.T) {
	t.Parallel()

	fields := NewFields().Set("registration_ids", String("not-a-list"))
	err := fields.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
	if errors.Is(err, ErrTooManyRegistrationIDs) {
		t.Fatalf("Validate() error = %v, should not be ErrTooManyRegistrationIDs", err)
	}
}

func TestFieldsValidateUnknownFieldsPass(t *testing.T) {
	t.Parallel()

	fields := NewFields().
		SetString("custom_option", "anything").
		SetInt("another", 42)

	if err := fields.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestFieldsRecipients(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		fields *Fields
		want   []string
	}{
		{
			name:   "registration ids",
			fields: NewFields().SetRegistrationIDs("a", "b", "c"),
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "registration ids win over to",
			fields: NewFields().SetTo("single").SetRegistrationIDs("a", "b"),
			want:   []string{"a", "b"},
		},
		{
			name:   "single to",
			fields: NewFields().SetTo("single"),
			want:   []string{"single"},
		},
		{
			name:   "no addressing",
			fields: NewFields().SetCollapseKey("updates"),
			want:   nil,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tc.fields.Recipients()
			if len(got) != len(tc.want) {
				t.Fatalf("Recipients() = %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("Recipients()[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestFieldsRecipientsCopies(t *testing.T) {
	t.Parallel()

	fields := NewFields().SetRegistrationIDs("a", "b")
	recipients := fields.Recipients()
	recipients[0] = "mutated"

	again := fields.Recipients()
	if again[0] != "a" {
		t.Fatalf("Recipients()[0] = %q after caller mutation, want a", again[0])
	}
}
