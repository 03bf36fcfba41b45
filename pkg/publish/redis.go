package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/metrics"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

// RedisPublisher is the part of redis.Client the sink needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink PUBLISHes every Reading as JSON on Channel. Nothing is stored.
type RedisSink struct {
	Client  RedisPublisher
	Channel string
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

func (s *RedisSink) Deliver(ctx context.Context, r stream.Reading) {
	payload, err := json.Marshal(r)
	if err == nil {
		err = s.Client.Publish(ctx, s.Channel, payload).Err()
	}
	s.Metrics.Publish("redis", err)
	if err != nil && s.Log != nil {
		s.Log.WithError(err).WithField("channel", s.Channel).Warn("redis publish failed")
	}
}

// DialRedis connects and pings the server before returning the sink.
func DialRedis(ctx context.Context, opts *redis.Options, channel string, log logrus.FieldLogger, m *metrics.Metrics) (*RedisSink, func() error, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	log.WithField("addr", opts.Addr).Info("redis connected")
	return &RedisSink{Client: client, Channel: channel, Log: log, Metrics: m}, client.Close, nil
}
