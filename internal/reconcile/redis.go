package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/recall/internal/eventlog"
)

// saveMax raises each field of KEYS[1] to the paired value in ARGV
// (device, count, device, count, ...) and never lowers one.
var saveMax = redis.NewScript(`
for i = 1, #ARGV, 2 do
  local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[i]) or '0')
  local n = tonumber(ARGV[i + 1])
  if n > cur then
    redis.call('HSET', KEYS[1], ARGV[i], n)
  end
end
return 1
`)

// RedisCursors keeps cursors in Redis, one hash per (peer, stream) with a
// field per device. Works with single-node and cluster clients.
type RedisCursors struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisCursors stores cursors under keys "<prefix>:{<peer>:<stream>}".
// An empty prefix uses "recall:cursor".
func NewRedisCursors(rdb redis.UniversalClient, prefix string) *RedisCursors {
	if prefix == "" {
		prefix = "recall:cursor"
	}
	return &RedisCursors{rdb: rdb, prefix: prefix}
}

// key uses a hash tag so all devices of one cursor live in one slot.
func (r *RedisCursors) key(peer string, stream eventlog.StreamID) string {
	return fmt.Sprintf("%s:{%s:%s}", r.prefix, peer, stream)
}

// Cursor implements CursorStore.
func (r *RedisCursors) Cursor(ctx context.Context, peer string, stream eventlog.StreamID) (eventlog.Counts, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key(peer, stream)).Result()
	if err != nil {
		return nil, fmt.Errorf("load cursor %s/%s: %w", peer, stream, err)
	}
	counts := make(eventlog.Counts, len(fields))
	for device, v := range fields {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("load cursor %s/%s: device %s: %w", peer, stream, device, err)
		}
		counts[eventlog.DeviceID(device)] = n
	}
	return counts, nil
}

// SaveCursor implements CursorStore.
func (r *RedisCursors) SaveCursor(ctx context.Context, peer string, stream eventlog.StreamID, counts eventlog.Counts) error {
	if len(counts) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(counts))
	for _, device := range counts.Devices() {
		args = append(args, string(device), counts[device])
	}
	if err := saveMax.Run(ctx, r.rdb, []string{r.key(peer, stream)}, args...).Err(); err != nil {
		return fmt.Errorf("save cursor %s/%s: %w", peer, stream, err)
	}
	return nil
}
