package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const webhookOutcomesKey = "webhook:counters:outcomes"

// WebhookOutcomes counts admission pipeline outcomes in a Redis hash, one
// field per outcome code.
type WebhookOutcomes struct {
	rdb redis.Cmdable
	key string
}

func NewWebhookOutcomes(rdb redis.Cmdable) *WebhookOutcomes {
	return &WebhookOutcomes{rdb: rdb, key: webhookOutcomesKey}
}

// RecordOutcome increments the counter for outcome. Failures are logged and
// never reach the request.
func (w *WebhookOutcomes) RecordOutcome(ctx context.Context, outcome string) {
	if err := w.rdb.HIncrBy(ctx, w.key, outcome, 1).Err(); err != nil {
		log.Warnf("counter: failed to record webhook outcome %q: %v", outcome, err)
	}
}

// Counts returns the current counters without resetting them.
func (w *WebhookOutcomes) Counts(ctx context.Context) (map[string]int64, error) {
	data, err := w.rdb.HGetAll(ctx, w.key).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

// Drain atomically moves the hash aside and returns its counters, so
// increments that arrive while draining land in a fresh hash.
func (w *WebhookOutcomes) Drain(ctx context.Context) (map[string]int64, error) {
	tmpKey := fmt.Sprintf("%s:tmp:%d", w.key, time.Now().UnixNano())
	if err := w.rdb.Rename(ctx, w.key, tmpKey).Err(); err != nil {
		// Nothing recorded since the last drain.
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	defer w.rdb.Del(ctx, tmpKey)

	data, err := w.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

func parseCounts(data map[string]string) map[string]int64 {
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n == 0 {
			continue
		}
		out[k] = n
	}
	return out
}
