// Package queue publishes domain verification events to a redis list for
// downstream consumers (provisioning, retention) to pick up.
package queue

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const verifiedList = "domain_verified_events"

type Queue struct {
	client *redis.Client
}

func New(url string) (*Queue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	return &Queue{client: client}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Event describes a completed domain ownership verification.
type Event struct {
	UserID string
	Domain string
}

func (e Event) encode() string {
	return e.UserID + "|" + e.Domain
}

func decodeEvent(raw string) Event {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return Event{}
	}
	return Event{UserID: parts[0], Domain: parts[1]}
}

func (q *Queue) PushVerified(ctx context.Context, ev Event) error {
	return q.client.LPush(ctx, verifiedList, ev.encode()).Err()
}

func (q *Queue) PopVerified(ctx context.Context, timeout time.Duration) (Event, error) {
	res, err := q.client.BRPop(ctx, timeout, verifiedList).Result()
	if err != nil {
		return Event{}, err
	}
	if len(res) < 2 {
		return Event{}, redis.Nil
	}
	return decodeEvent(res[1]), nil
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, verifiedList).Result()
}

func (q *Queue) Close() error {
	return q.client.Close()
}
