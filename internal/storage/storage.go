package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"sector-strength-sentry/pkg/types"
)

const (
	monitoringStatusKey   = "sector:monitoring:status"
	snapshotKeyPrefix     = "sector:classification:snapshot:"
	latestSnapshotKey     = snapshotKeyPrefix + "latest"
	defaultSnapshotTTL    = 24 * time.Hour
	redisOperationTimeout = 5 * time.Second
)

// SnapshotStore 缓存监控状态与每日分类快照，Redis不可用时只保存在内存
type SnapshotStore struct {
	mutex       sync.RWMutex
	status      *types.MonitoringStatus
	snapshots   map[string][]types.ClassificationRecord
	latestDate  string
	redisClient *redis.Client
	useRedis    bool
	ttl         time.Duration
}

// NewSnapshotStore 按配置创建快照存储
func NewSnapshotStore(redisConfig types.RedisConfig) *SnapshotStore {
	store := newMemoryStore(redisConfig.SnapshotTTL)

	// 尝试连接Redis
	if redisConfig.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		return store
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), redisOperationTimeout)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
		_ = client.Close()
		return store
	}

	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
	store.redisClient = client
	store.useRedis = true
	return store
}

// NewSnapshotStoreWithClient 使用已有的Redis客户端创建快照存储
func NewSnapshotStoreWithClient(client *redis.Client, ttl time.Duration) *SnapshotStore {
	store := newMemoryStore(ttl)
	store.redisClient = client
	store.useRedis = client != nil
	return store
}

func newMemoryStore(ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotStore{
		snapshots: make(map[string][]types.ClassificationRecord),
		ttl:       ttl,
	}
}

// SaveMonitoringStatus 保存最近一次成功拉取的监控状态
func (s *SnapshotStore) SaveMonitoringStatus(ctx context.Context, status *types.MonitoringStatus) error {
	if status == nil {
		return errors.New("监控状态为空")
	}

	s.mutex.Lock()
	s.status = status
	s.mutex.Unlock()

	if !s.useRedis {
		return nil
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("序列化监控状态失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisOperationTimeout)
	defer cancel()

	if err := s.redisClient.Set(ctx, monitoringStatusKey, string(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("写入Redis失败: %w", err)
	}
	return nil
}

// LoadMonitoringStatus 读取缓存的监控状态，优先Redis，读取失败时回退到内存
func (s *SnapshotStore) LoadMonitoringStatus(ctx context.Context) (*types.MonitoringStatus, error) {
	if s.useRedis {
		ctx, cancel := context.WithTimeout(ctx, redisOperationTimeout)
		defer cancel()

		data, err := s.redisClient.Get(ctx, monitoringStatusKey).Result()
		switch {
		case err == nil:
			var status types.MonitoringStatus
			if err := json.Unmarshal([]byte(data), &status); err != nil {
				return nil, fmt.Errorf("解析缓存的监控状态失败: %w", err)
			}
			return &status, nil
		case errors.Is(err, redis.Nil):
		default:
			zap.L().Warn("⚠️ 读取Redis监控状态失败，使用内存数据", zap.Error(err))
		}
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.status, nil
}

// SaveClassificationSnapshot 保存某个交易日的分类快照，并标记为最新
func (s *SnapshotStore) SaveClassificationSnapshot(ctx context.Context, date string, records []types.ClassificationRecord) error {
	if date == "" {
		return errors.New("快照日期为空")
	}

	copied := make([]types.ClassificationRecord, len(records))
	copy(copied, records)

	s.mutex.Lock()
	s.snapshots[date] = copied
	if date >= s.latestDate {
		s.latestDate = date
	}
	s.mutex.Unlock()

	if !s.useRedis {
		return nil
	}

	data, err := json.Marshal(copied)
	if err != nil {
		return fmt.Errorf("序列化分类快照失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisOperationTimeout)
	defer cancel()

	if err := s.redisClient.Set(ctx, snapshotKeyPrefix+date, string(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("写入Redis失败: %w", err)
	}
	if err := s.redisClient.Set(ctx, latestSnapshotKey, date, s.ttl).Err(); err != nil {
		return fmt.Errorf("写入Redis失败: %w", err)
	}
	return nil
}

// LoadLatestSnapshot 读取最新的分类快照，没有快照时返回空日期
func (s *SnapshotStore) LoadLatestSnapshot(ctx context.Context) (string, []types.ClassificationRecord, error) {
	if s.useRedis {
		date, records, err := s.loadLatestFromRedis(ctx)
		switch {
		case err == nil:
			return date, records, nil
		case errors.Is(err, redis.Nil):
		default:
			zap.L().Warn("⚠️ 读取Redis分类快照失败，使用内存数据", zap.Error(err))
		}
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.latestDate == "" {
		return "", nil, nil
	}
	records := make([]types.ClassificationRecord, len(s.snapshots[s.latestDate]))
	copy(records, s.snapshots[s.latestDate])
	return s.latestDate, records, nil
}

func (s *SnapshotStore) loadLatestFromRedis(ctx context.Context) (string, []types.ClassificationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOperationTimeout)
	defer cancel()

	date, err := s.redisClient.Get(ctx, latestSnapshotKey).Result()
	if err != nil {
		return "", nil, err
	}

	data, err := s.redisClient.Get(ctx, snapshotKeyPrefix+date).Result()
	if err != nil {
		return "", nil, err
	}

	var records []types.ClassificationRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return "", nil, fmt.Errorf("解析缓存的分类快照失败: %w", err)
	}
	return date, records, nil
}

// GetStats 获取存储状态
func (s *SnapshotStore) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return map[string]interface{}{
		"redis_enabled":    s.useRedis,
		"memory_snapshots": len(s.snapshots),
		"latest_date":      s.latestDate,
		"has_status":       s.status != nil,
	}
}

// Close 关闭Redis连接
func (s *SnapshotStore) Close() error {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient.Close()
}
