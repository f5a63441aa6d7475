package counter

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const webhookOutcomesKey = "billing:counters:webhook_outcomes"

// OutcomeCounter tallies webhook outcomes in a Redis hash keyed "kind:outcome".
type OutcomeCounter struct {
	rdb *redis.Client
	key string
}

func NewOutcomeCounter(rdb *redis.Client) *OutcomeCounter {
	return &OutcomeCounter{rdb: rdb, key: webhookOutcomesKey}
}

// RecordOutcome increments the counter for one handled event.
func (c *OutcomeCounter) RecordOutcome(ctx context.Context, kind, outcome string) error {
	return c.rdb.HIncrBy(ctx, c.key, kind+":"+outcome, 1).Err()
}

// OutcomeCount is one row of a snapshot.
type OutcomeCount struct {
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// Snapshot returns all counters sorted by kind then outcome.
func (c *OutcomeCounter) Snapshot(ctx context.Context) ([]OutcomeCount, error) {
	data, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}

	out := make([]OutcomeCount, 0, len(data))
	for field, raw := range data {
		kind, outcome, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		out = append(out, OutcomeCount{Kind: kind, Outcome: outcome, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out, nil
}

// Reset drops all counters.
func (c *OutcomeCounter) Reset(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
