// Package mockfcm is a stand-in for the legacy messaging endpoint,
// used in development compose stacks and integration tests. Recipient
// id prefixes drive the per-recipient outcome, so callers can script
// any mix of results without provider credentials.
package mockfcm

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/fcm-courier/fcm"
	"github.com/kursadbilgin/fcm-courier/internal/transport"
	"go.uber.org/zap"
)

// Recipient id prefixes and the outcome they produce.
const (
	// PrefixGone answers NotRegistered: the token should be removed.
	PrefixGone = "gone-"
	// PrefixBad answers InvalidRegistration.
	PrefixBad = "bad-"
	// PrefixFlaky answers Unavailable, the only retryable reason.
	PrefixFlaky = "flaky-"
	// PrefixMoved answers success plus a canonical registration id.
	PrefixMoved = "moved-"

	canonicalPrefix = "canonical-"
)

// StatusOverrideHeader forces the named HTTP status, bypassing all
// other handling. Tests use it to drive the client's status mapping.
const StatusOverrideHeader = "X-Mock-Status"

const (
	maxRecipients    = 1000
	dryRunMessageID  = "fake_message_id"
	sendPath         = "/fcm/send"
	plainContentType = "application/x-www-form-urlencoded"
)

// CanonicalID returns the replacement registration id the mock reports
// for a moved recipient.
func CanonicalID(id string) string {
	return canonicalPrefix + strings.TrimPrefix(id, PrefixMoved)
}

// Server simulates the provider's send endpoint.
type Server struct {
	apiKey string
	logger *zap.Logger
	app    *fiber.App

	newMessageID   func() string
	newMulticastID func() int64
}

func New(apiKey string, logger *zap.Logger) (*Server, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		apiKey: key,
		logger: logger,
		newMessageID: func() string {
			return "0:" + uuid.NewString()
		},
		newMulticastID: rand.Int63,
	}

	app := transport.NewApp(logger)
	app.Post(sendPath, s.handleSend)
	app.Get("/livez", transport.LivezHandler())
	s.app = app

	return s, nil
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) handleSend(c *fiber.Ctx) error {
	// Fault injection wins over everything else, including auth.
	if override := strings.TrimSpace(c.Get(StatusOverrideHeader)); override != "" {
		code, err := strconv.Atoi(override)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status override")
		}
		return c.Status(code).SendString(http.StatusText(code))
	}

	if c.Get(fiber.HeaderAuthorization) != "key="+s.apiKey {
		return c.Status(fiber.StatusUnauthorized).
			SendString("unable to authenticate sender account")
	}

	contentType := c.Get(fiber.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		return s.sendJSON(c)
	case strings.HasPrefix(contentType, plainContentType):
		return s.sendPlainText(c)
	default:
		return c.Status(fiber.StatusBadRequest).
			SendString("unsupported content type " + contentType)
	}
}

type sendRequest struct {
	To              string   `json:"to"`
	RegistrationIDs []string `json:"registration_ids"`
	DryRun          bool     `json:"dry_run"`
}

func (r sendRequest) recipients() []string {
	if len(r.RegistrationIDs) > 0 {
		return r.RegistrationIDs
	}
	if strings.TrimSpace(r.To) != "" {
		return []string{r.To}
	}
	return nil
}

func (s *Server) sendJSON(c *fiber.Ctx) error {
	var req sendRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).
			SendString("JSON_PARSING_ERROR: " + err.Error())
	}

	if len(req.RegistrationIDs) > maxRecipients {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf(
			"Number of messages on bulk (%d) exceeds maximum allowed (%d)",
			len(req.RegistrationIDs), maxRecipients,
		))
	}

	response := fcm.Response{MulticastID: s.newMulticastID()}

	recipients := req.recipients()
	if len(recipients) == 0 {
		response.Failure = 1
		response.Results = []fcm.Result{{Error: fcm.ReasonMissingRegistration}}
		return c.JSON(response)
	}

	for _, id := range recipients {
		result := s.resultFor(id, req.DryRun)
		if result.Error != "" {
			response.Failure++
		} else {
			response.Success++
		}
		if result.RegistrationID != "" {
			response.CanonicalIDs++
		}
		response.Results = append(response.Results, result)
	}

	s.logger.Debug("send handled",
		zap.Int("recipients", len(recipients)),
		zap.Int("failure", response.Failure),
		zap.Bool("dryRun", req.DryRun),
	)
	return c.JSON(response)
}

func (s *Server) sendPlainText(c *fiber.Ctx) error {
	values, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			SendString("FORM_PARSING_ERROR: " + err.Error())
	}
	if values.Has("registration_ids") {
		return c.Status(fiber.StatusBadRequest).
			SendString("registration_ids is not accepted as form data")
	}

	to := strings.TrimSpace(values.Get("to"))
	if to == "" {
		return c.SendString("Error=" + fcm.ReasonMissingRegistration)
	}

	result := s.resultFor(to, false)
	if result.Error != "" {
		return c.SendString("Error=" + result.Error)
	}
	if result.RegistrationID != "" {
		return c.SendString(fmt.Sprintf("id=%s\nregistration_id=%s",
			result.MessageID, result.RegistrationID))
	}
	return c.SendString("id=" + result.MessageID)
}

func (s *Server) resultFor(id string, dryRun bool) fcm.Result {
	messageID := s.newMessageID
	if dryRun {
		// Dry runs are not delivered; the provider answers a canned id.
		messageID = func() string { return dryRunMessageID }
	}

	switch {
	case strings.HasPrefix(id, PrefixGone):
		return fcm.Result{Error: fcm.ReasonNotRegistered}
	case strings.HasPrefix(id, PrefixBad):
		return fcm.Result{Error: fcm.ReasonInvalidRegistration}
	case strings.HasPrefix(id, PrefixFlaky):
		return fcm.Result{Error: fcm.ReasonUnavailable}
	case strings.HasPrefix(id, PrefixMoved):
		return fcm.Result{MessageID: messageID(), RegistrationID: CanonicalID(id)}
	default:
		return fcm.Result{MessageID: messageID()}
	}
}
