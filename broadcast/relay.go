package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/persistence"
)

// RefreshFunc rebroadcasts a room to local sessions after a commit made
// elsewhere. room.Manager.Refresh matches it.
type RefreshFunc func(ctx context.Context, roomID string, version int64, deleted bool)

type commitNotice struct {
	Instance string `json:"instance"`
	RoomID   string `json:"room_id"`
	Version  int64  `json:"version"`
}

// RedisRelay tells the other server instances about every commit over a
// redis pub/sub channel, so their sessions in the room get the new state.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string
}

func NewRedisRelay(client *redis.Client, channel, instance string) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, instance: instance}
}

// Publish implements room.Publisher.
func (r *RedisRelay) Publish(ctx context.Context, roomID string, version int64) error {
	data, err := json.Marshal(commitNotice{Instance: r.instance, RoomID: roomID, Version: version})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run delivers notices from other instances to refresh until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, refresh RefreshFunc) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var n commitNotice
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				logger.Log.Warnw("bad commit notice", "payload", msg.Payload, "error", err)
				continue
			}
			if n.Instance == r.instance {
				continue
			}
			refresh(ctx, n.RoomID, n.Version, false)
		}
	}
}

// FollowStore forwards a store's change feed to refresh until ctx is done.
// Commits of this instance are filtered by refresh itself, by version.
func FollowStore(ctx context.Context, watcher persistence.Watcher, refresh RefreshFunc) error {
	changes, err := watcher.Watch(ctx)
	if err != nil {
		return err
	}
	for c := range changes {
		refresh(ctx, c.RoomID, c.Version, c.Deleted)
	}
	return nil
}
