package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers user-facing events. Fire and forget: implementations
// never block the caller and never surface delivery failures to it.
type Notifier interface {
	Notify(ctx context.Context, userID int, eventKind string, payload interface{})
}

// NoopNotifier is used when no webhook is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, userID int, eventKind string, payload interface{}) {}

type HTTPClientI interface {
	Post(url string, headers http.Header, body []byte) (statusCode int, respBody []byte, err error)
}

type event struct {
	UserID    int         `json:"user_id"`
	EventKind string      `json:"event_kind"`
	Payload   interface{} `json:"payload"`
	At        time.Time   `json:"at"`
}

// WebhookNotifier posts events as JSON to a configured URL from a fixed pool
// of delivery workers. A full queue drops the event with a log line rather
// than backing up the caller.
type WebhookNotifier struct {
	url    string
	client HTTPClientI
	queue  chan event
}

func NewWebhookNotifier(url string, client HTTPClientI, workers, queueSize int) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: client,
		queue:  make(chan event, queueSize),
	}
	for i := 0; i < workers; i++ {
		go n.worker()
	}
	return n
}

func (n *WebhookNotifier) Notify(ctx context.Context, userID int, eventKind string, payload interface{}) {
	e := event{UserID: userID, EventKind: eventKind, Payload: payload, At: time.Now()}
	select {
	case n.queue <- e:
	default:
		zap.L().Warn("notification queue full, event dropped",
			zap.Int("userID", userID),
			zap.String("eventKind", eventKind),
		)
	}
}

func (n *WebhookNotifier) worker() {
	headers := http.Header{"Content-Type": []string{"application/json"}}
	for e := range n.queue {
		body, err := json.Marshal(e)
		if err != nil {
			zap.L().Error("failed to encode notification", zap.Error(err))
			continue
		}
		statusCode, _, err := n.client.Post(n.url, headers, body)
		if err != nil {
			zap.L().Error("failed to deliver notification",
				zap.String("eventKind", e.EventKind),
				zap.Error(err),
			)
			continue
		}
		if statusCode >= http.StatusBadRequest {
			zap.L().Warn("notification sink rejected event",
				zap.String("eventKind", e.EventKind),
				zap.Int("statusCode", statusCode),
			)
		}
	}
}

// Close stops accepting events and lets workers drain the queue.
func (n *WebhookNotifier) Close() {
	close(n.queue)
}
