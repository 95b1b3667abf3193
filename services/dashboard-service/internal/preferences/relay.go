package preferences

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	otelx "github.com/tourdesk/tourdesk/libs/otel"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

const channelPrefix = "tourdesk:prefs:"

type envelope struct {
	Instance    string            `json:"instance"`
	UserID      string            `json:"user_id"`
	Preferences model.Preferences `json:"preferences"`
	Traceparent string            `json:"traceparent,omitempty"`
	Tracestate  string            `json:"tracestate,omitempty"`
}

// RedisRelay carries bus publications between service instances so that every open view sees
// a save made through any instance.
type RedisRelay struct {
	rdb      *redis.Client
	bus      *Bus
	logger   *slog.Logger
	instance string
}

func NewRedisRelay(rdb *redis.Client, bus *Bus, logger *slog.Logger) *RedisRelay {
	r := &RedisRelay{rdb: rdb, bus: bus, logger: logger, instance: uuid.NewString()}
	bus.SetForwarder(r.publish)
	return r
}

func (r *RedisRelay) publish(ctx context.Context, userID string, prefs model.Preferences) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	payload, err := json.Marshal(envelope{
		Instance:    r.instance,
		UserID:      userID,
		Preferences: prefs,
		Traceparent: traceparent,
		Tracestate:  tracestate,
	})
	if err != nil {
		r.logger.Error("preferences relay encode failed", "err", err)
		return
	}
	if err := r.rdb.Publish(ctx, channelPrefix+userID, payload).Err(); err != nil {
		r.logger.Warn("preferences relay publish failed", "user_id", userID, "err", err)
	}
}

// Run delivers publications from other instances to local subscribers until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Warn("invalid preferences relay payload", "channel", msg.Channel, "err", err)
		return
	}
	if env.Instance == r.instance {
		return
	}
	if env.UserID == "" {
		env.UserID = strings.TrimPrefix(msg.Channel, channelPrefix)
	}
	ctx = otelx.ContextWithTraceContext(ctx, env.Traceparent, env.Tracestate)
	r.logger.DebugContext(ctx, "preferences update relayed", "user_id", env.UserID)
	r.bus.deliver(env.UserID, env.Preferences)
}
