package leader

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

const DefaultKey = "auction:finalizer:leader"

var _ domain.LeaderElection = (*RedisLeaderElection)(nil)

var (
	// extend the TTL only while we still hold the key
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)
)

// RedisLeaderElection holds a single SET NX lease key. The holder renews it
// at a third of the TTL until it loses the key or releases it.
type RedisLeaderElection struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logger.Logger

	mu         sync.Mutex
	heartbeats map[string]*heartbeat
}

type heartbeat struct {
	cancel context.CancelFunc
}

func NewRedisLeaderElection(client *redis.Client, key string, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLeaderElection{
		client:     client,
		key:        key,
		ttl:        ttl,
		log:        log,
		heartbeats: make(map[string]*heartbeat),
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	acquired, err := r.client.SetNX(ctx, r.key, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if acquired {
		r.log.Info("Acquired leadership", "instance_id", instanceID, "key", r.key)
		r.startHeartbeat(instanceID)
	}

	return acquired, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopHeartbeat(instanceID)
	return releaseScript.Run(ctx, r.client, []string{r.key}, instanceID).Err()
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.heartbeats[instanceID]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel}
	r.heartbeats[instanceID] = hb
	go r.maintainLeadership(ctx, instanceID, hb)
}

func (r *RedisLeaderElection) stopHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hb, ok := r.heartbeats[instanceID]; ok {
		hb.cancel()
		delete(r.heartbeats, instanceID)
	}
}

// endHeartbeat forgets hb unless a newer heartbeat already replaced it.
func (r *RedisLeaderElection) endHeartbeat(instanceID string, hb *heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hb.cancel()
	if r.heartbeats[instanceID] == hb {
		delete(r.heartbeats, instanceID)
	}
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string, hb *heartbeat) {
	defer r.endHeartbeat(instanceID, hb)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		renewed, err := renewScript.Run(renewCtx, r.client, []string{r.key}, instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if ctx.Err() != nil {
			return
		}
		if err != nil || renewed == 0 {
			r.log.Warn("Lost leadership", "instance_id", instanceID, "error", err)
			return
		}
	}
}
