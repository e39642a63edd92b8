package mockfcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/fcm-courier/fcm"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	server, err := New("test-key", zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sequence := 0
	server.newMessageID = func() string {
		sequence++
		return fmt.Sprintf("0:msg%d", sequence)
	}
	server.newMulticastID = func() int64 { return 4815162342 }

	return server
}

func sendRequestBody(t *testing.T, server *Server, contentType, authorization, body string, header map[string]string) (int, []byte) {
	t.Helper()

	req := httptest.NewRequest("POST", sendPath, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}

	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, payload
}

func TestSendRequiresAuthorization(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	testCases := []struct {
		name          string
		authorization string
	}{
		{name: "missing header"},
		{name: "wrong key", authorization: "key=other-key"},
		{name: "wrong scheme", authorization: "Bearer test-key"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			status, body := sendRequestBody(t, server,
				fiber.MIMEApplicationJSON, tc.authorization, `{"to":"device-1"}`, nil)
			if status != fiber.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", status)
			}
			if !strings.Contains(string(body), "authenticate") {
				t.Fatalf("body = %q", body)
			}
		})
	}
}

func TestSendJSONOutcomesByPrefix(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	status, body := sendRequestBody(t, server,
		fiber.MIMEApplicationJSON, "key=test-key",
		`{"registration_ids":["gone-a","bad-b","flaky-c","moved-d","device-e"]}`, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	var response fcm.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if response.MulticastID != 4815162342 {
		t.Fatalf("multicast_id = %d", response.MulticastID)
	}
	if response.Success != 2 || response.Failure != 3 || response.CanonicalIDs != 1 {
		t.Fatalf("counts = %d/%d/%d, want 2/3/1",
			response.Success, response.Failure, response.CanonicalIDs)
	}

	want := []fcm.Result{
		{Error: fcm.ReasonNotRegistered},
		{Error: fcm.ReasonInvalidRegistration},
		{Error: fcm.ReasonUnavailable},
		{MessageID: "0:msg1", RegistrationID: "canonical-d"},
		{MessageID: "0:msg2"},
	}
	if len(response.Results) != len(want) {
		t.Fatalf("results = %d entries, want %d", len(response.Results), len(want))
	}
	for i, result := range response.Results {
		if result != want[i] {
			t.Fatalf("results[%d] = %+v, want %+v", i, result, want[i])
		}
	}
}

func TestSendJSONDryRun(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	_, body := sendRequestBody(t, server,
		fiber.MIMEApplicationJSON, "key=test-key",
		`{"to":"device-1","dry_run":true}`, nil)

	var response fcm.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Results) != 1 || response.Results[0].MessageID != dryRunMessageID {
		t.Fatalf("results = %+v, want canned dry run id", response.Results)
	}
}

func TestSendJSONMalformedBody(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	status, body := sendRequestBody(t, server,
		fiber.MIMEApplicationJSON, "key=test-key", `{"to":`, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if !strings.Contains(string(body), "JSON_PARSING_ERROR") {
		t.Fatalf("body = %q", body)
	}
}

func TestSendJSONMissingRecipients(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	status, body := sendRequestBody(t, server,
		fiber.MIMEApplicationJSON, "key=test-key", `{"data":{"k":"v"}}`, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	var response fcm.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Failure != 1 || len(response.Results) != 1 ||
		response.Results[0].Error != fcm.ReasonMissingRegistration {
		t.Fatalf("response = %+v, want MissingRegistration", response)
	}
}

func TestSendJSONBulkLimit(t *testing.T) {
	t.Parallel()

	ids := make([]string, maxRecipients+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("device-%d", i)
	}
	payload, err := json.Marshal(map[string]any{"registration_ids": ids})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	server := newTestServer(t)
	status, body := sendRequestBody(t, server,
		fiber.MIMEApplicationJSON, "key=test-key", string(payload), nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if !strings.Contains(string(body), "exceeds maximum allowed") {
		t.Fatalf("body = %q", body)
	}
}

func TestSendPlainTextOutcomes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want string
	}{
		{name: "success", body: "to=device-1&data.score=3", want: "id=0:msg1"},
		{name: "gone", body: "to=gone-a", want: "Error=NotRegistered"},
		{name: "bad", body: "to=bad-b", want: "Error=InvalidRegistration"},
		{name: "flaky", body: "to=flaky-c", want: "Error=Unavailable"},
		{name: "moved", body: "to=moved-d", want: "id=0:msg1\nregistration_id=canonical-d"},
		{name: "missing recipient", body: "data.score=3", want: "Error=MissingRegistration"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t)
			status, body := sendRequestBody(t, server,
				"application/x-www-form-urlencoded;charset=UTF-8", "key=test-key", tc.body, nil)
			if status != fiber.StatusOK {
				t.Fatalf("status = %d, want 200", status)
			}
			if string(body) != tc.want {
				t.Fatalf("body = %q, want %q", body, tc.want)
			}
		})
	}
}

func TestSendPlainTextRejectsRegistrationIDs(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	status, _ := sendRequestBody(t, server,
		"application/x-www-form-urlencoded;charset=UTF-8", "key=test-key",
		"registration_ids=a&to=b", nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestSendUnsupportedContentType(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	status, _ := sendRequestBody(t, server, "text/xml", "key=test-key", "<send/>", nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestStatusOverride(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	status, body := sendRequestBody(t, server,
		fiber.MIMEApplicationJSON, "", `{}`,
		map[string]string{StatusOverrideHeader: "503"})
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
	if string(body) != "Service Unavailable" {
		t.Fatalf("body = %q", body)
	}
}

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go server.App().Listener(listener) //nolint:errcheck
	t.Cleanup(func() { _ = server.Shutdown() })

	client, err := fcm.NewWithOptions("test-key", fcm.Options{
		Endpoint: "http://" + listener.Addr().String() + sendPath,
	})
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}

	fields := fcm.NewFields().
		SetRegistrationIDs("gone-a", "device-b", "moved-c").
		SetData(fcm.NewFields().SetString("k", "v"))

	report, err := client.SendData(context.Background(), fields)
	if err != nil {
		t.Fatalf("SendData() error = %v", err)
	}

	if got := report.Errors.IDs(fcm.ReasonNotRegistered); len(got) != 1 || got[0] != "gone-a" {
		t.Fatalf("NotRegistered ids = %v, want [gone-a]", got)
	}
	if got := report.Canonical["moved-c"]; got != "canonical-c" {
		t.Fatalf("canonical[moved-c] = %q, want canonical-c", got)
	}
	if len(report.Success) != 2 {
		t.Fatalf("success = %v, want entries for device-b and moved-c", report.Success)
	}

	if _, err := client.SendData(context.Background(), fcm.NewFields().SetTo("flaky-x")); err != nil {
		t.Fatalf("SendData() error = %v, flaky recipients fail per result, not per request", err)
	}

	badClient, err := fcm.NewWithOptions("wrong-key", fcm.Options{
		Endpoint: "http://" + listener.Addr().String() + sendPath,
	})
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	if _, err := badClient.SendData(context.Background(), fcm.NewFields().SetTo("device-b")); !errors.Is(err, fcm.ErrAuthentication) {
		t.Fatalf("SendData() error = %v, want ErrAuthentication", err)
	}
}
