// Command send pushes one message through the legacy messaging API,
// either directly or by enqueueing a job for the relay. Provider
// settings come from the environment (FCM_API_KEY, FCM_ENDPOINT,
// RABBITMQ_URL); the message comes from flags.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/fcm-courier/fcm"
	"github.com/kursadbilgin/fcm-courier/internal/config"
	"github.com/kursadbilgin/fcm-courier/internal/observability"
	"github.com/kursadbilgin/fcm-courier/internal/queue"
)

const publishTimeout = 10 * time.Second

// keyValues collects repeatable key=value flags in the order they were
// passed.
type keyValues struct {
	names  []string
	values map[string]string
}

var _ flag.Value = (*keyValues)(nil)

func (kv *keyValues) String() string {
	pairs := make([]string, 0, len(kv.names))
	for _, name := range kv.names {
		pairs = append(pairs, name+"="+kv.values[name])
	}
	return strings.Join(pairs, ",")
}

func (kv *keyValues) Set(arg string) error {
	key, value, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", arg)
	}

	if kv.values == nil {
		kv.values = make(map[string]string)
	}
	if _, exists := kv.values[key]; !exists {
		kv.names = append(kv.names, key)
	}
	kv.values[key] = value
	return nil
}

func (kv *keyValues) fields() *fcm.Fields {
	if len(kv.names) == 0 {
		return nil
	}

	fields := fcm.NewFields()
	for _, name := range kv.names {
		fields.SetString(name, kv.values[name])
	}
	return fields
}

func (kv *keyValues) asMap() map[string]string {
	if len(kv.values) == 0 {
		return nil
	}

	out := make(map[string]string, len(kv.values))
	for name, value := range kv.values {
		out[name] = value
	}
	return out
}

type sendFlags struct {
	to        string
	ids       []string
	plainText bool
	title     string
	body      string
	collapse  string
	priority  string
	ttl       int64
	dryRun    bool
	enqueue   bool
	data      *keyValues
}

func parseFlags() sendFlags {
	var flags sendFlags
	var ids string

	flag.StringVar(&flags.to, "to", "", "single recipient registration id")
	flag.StringVar(&ids, "ids", "", "comma separated registration ids for multicast")
	flag.BoolVar(&flags.plainText, "text", false, "send form encoded instead of JSON")
	flag.StringVar(&flags.title, "title", "", "notification title")
	flag.StringVar(&flags.body, "body", "", "notification body")
	flag.StringVar(&flags.collapse, "collapse-key", "", "collapse key")
	flag.StringVar(&flags.priority, "priority", "", "delivery priority: normal or high")
	flag.Int64Var(&flags.ttl, "ttl", -1, "time to live in seconds, -1 leaves it unset")
	flag.BoolVar(&flags.dryRun, "dry-run", false, "validate on the provider without delivering")
	flag.BoolVar(&flags.enqueue, "enqueue", false, "publish to the relay queue instead of sending now")
	flags.data = &keyValues{}
	flag.Var(flags.data, "data", "data entry as key=value, repeatable")
	flag.Parse()

	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			flags.ids = append(flags.ids, id)
		}
	}

	return flags
}

func main() {
	log.SetFlags(0)

	flags := parseFlags()
	if flags.to == "" && len(flags.ids) == 0 {
		log.Fatal("one of -to or -ids is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.enqueue {
		enqueueJob(ctx, cfg, flags)
		return
	}
	sendNow(ctx, cfg, flags)
}

func sendNow(ctx context.Context, cfg *config.Config, flags sendFlags) {
	switch strings.ToLower(flags.priority) {
	case "", "normal", "high":
	default:
		log.Fatalf("invalid priority %q: the provider accepts normal or high", flags.priority)
	}

	client, err := fcm.NewWithOptions(cfg.APIKey, fcm.Options{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout(),
		Debug:    cfg.Debug,
	})
	if err != nil {
		log.Fatalf("client initialization failed: %v", err)
	}

	fields := buildFields(flags)

	if flags.plainText {
		raw, err := client.SendPlainText(ctx, fields)
		if err != nil {
			log.Fatalf("send failed: %v", err)
		}
		fmt.Println(strings.TrimSpace(string(raw)))
		return
	}

	report, err := client.SendData(ctx, fields)
	if err != nil {
		log.Fatalf("send failed: %v", err)
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("encode report: %v", err)
	}
	fmt.Println(string(output))
}

func buildFields(flags sendFlags) *fcm.Fields {
	fields := fcm.NewFields()

	if flags.to != "" {
		fields.SetTo(flags.to)
	}
	if len(flags.ids) > 0 {
		fields.SetRegistrationIDs(flags.ids...)
	}
	if flags.priority != "" {
		fields.SetPriority(strings.ToLower(flags.priority))
	}
	if flags.collapse != "" {
		fields.SetCollapseKey(flags.collapse)
	}
	if flags.ttl >= 0 {
		fields.SetTimeToLive(flags.ttl)
	}
	if flags.dryRun {
		fields.SetDryRun(true)
	}
	if data := flags.data.fields(); data != nil {
		fields.SetData(data)
	}
	if notification := notificationFields(flags.title, flags.body); notification != nil {
		fields.SetNotification(notification)
	}

	return fields
}

func notificationFields(title, body string) *fcm.Fields {
	if title == "" && body == "" {
		return nil
	}

	fields := fcm.NewFields()
	if title != "" {
		fields.SetString("title", title)
	}
	if body != "" {
		fields.SetString("body", body)
	}
	return fields
}

func enqueueJob(ctx context.Context, cfg *config.Config, flags sendFlags) {
	priority := queue.PriorityNormal
	if flags.priority != "" {
		parsed, err := queue.ParsePriorityFromString(flags.priority)
		if err != nil {
			log.Fatalf("invalid priority: %v", err)
		}
		priority = parsed
	}

	mode := queue.ModeJSON
	if flags.plainText {
		mode = queue.ModePlainText
	}

	ctx, correlationID := observability.EnsureCorrelationID(ctx)

	job := queue.SendJob{
		ID:              uuid.NewString(),
		CorrelationID:   correlationID,
		Mode:            mode,
		Priority:        priority,
		To:              flags.to,
		RegistrationIDs: flags.ids,
		Data:            flags.data.asMap(),
		Notification:    notificationMap(flags.title, flags.body),
		CollapseKey:     flags.collapse,
		DryRun:          flags.dryRun,
	}
	if flags.ttl >= 0 {
		ttl := flags.ttl
		job.TimeToLiveSeconds = &ttl
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq initialization failed: %v", err)
	}
	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close() //nolint:errcheck

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := publisher.Publish(publishCtx, queue.SendQueue, job); err != nil {
		log.Fatalf("publish failed: %v", err)
	}

	output, err := json.MarshalIndent(map[string]string{
		"jobId":         job.ID,
		"correlationId": correlationID,
		"queue":         queue.SendQueue,
	}, "", "  ")
	if err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Println(string(output))
}

func notificationMap(title, body string) map[string]string {
	if title == "" && body == "" {
		return nil
	}

	out := make(map[string]string, 2)
	if title != "" {
		out["title"] = title
	}
	if body != "" {
		out["body"] = body
	}
	return out
}
