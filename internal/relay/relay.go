package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis"
	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/constants"
	"github.com/debulol/dota2-inhouse/internal/types"
)

// Sink is where notifications received from other instances are delivered.
type Sink interface {
	Publish(types.Notification)
}

// Relay spreads room notifications across server instances through Redis
// pub/sub. Every instance, the publishing one included, delivers to its
// local subscribers from the Redis stream.
type Relay struct {
	client *redis.Client
	local  Sink
	prefix string
	log    *zap.Logger
}

func Dial(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func New(client *redis.Client, local Sink, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		client: client,
		local:  local,
		prefix: constants.RelayChannel,
		log:    log.Named("relay"),
	}
}

// Publish implements store.Publisher. When Redis is unreachable the
// notification still reaches this instance's subscribers.
func (r *Relay) Publish(n types.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		r.log.Error("encode notification", zap.String("room_id", n.RoomID), zap.Error(err))
		r.local.Publish(n)
		return
	}
	if err := r.client.Publish(r.prefix+n.RoomID, payload).Err(); err != nil {
		r.log.Warn("redis publish failed, delivering locally",
			zap.String("room_id", n.RoomID),
			zap.Int("version", n.Version),
			zap.Error(err),
		)
		r.local.Publish(n)
	}
}

// Run forwards notifications from Redis into the local sink until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(r.prefix + "*")
	defer ps.Close()

	if _, err := ps.Receive(); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.log.Info("relay subscribed", zap.String("pattern", r.prefix+"*"))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n, err := r.decode(msg.Channel, msg.Payload)
			if err != nil {
				r.log.Warn("dropping relay message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.local.Publish(n)
		}
	}
}

func (r *Relay) decode(channel, payload string) (types.Notification, error) {
	var n types.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return types.Notification{}, err
	}
	if roomID := strings.TrimPrefix(channel, r.prefix); roomID != n.RoomID {
		return types.Notification{}, fmt.Errorf("channel %q carries room %q", channel, n.RoomID)
	}
	return n, nil
}

func (r *Relay) Close() error { return r.client.Close() }
