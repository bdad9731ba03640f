package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// 模型响应缓存的键命名空间
// 任务队列与缓存可能共用同一个Redis实例，Clear只清理本命名空间
const redisKeyPrefix = "tcgen:"

// RedisCache 基于Redis实现的缓存
// 多个工作进程共享同一份模型响应缓存时使用
type RedisCache struct {
	client     *redis.Client
	ctx        context.Context
	defaultTTL time.Duration
}

// NewRedisCache 创建一个新的Redis缓存
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// 测试连接
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client:     client,
		ctx:        ctx,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// Get 获取缓存内容
func (r *RedisCache) Get(key string) (string, bool, error) {
	value, err := r.client.Get(r.ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		// 键不存在
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// Set 设置缓存内容
// ttl为0时使用配置的默认过期时间
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.client.Set(r.ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Delete 删除缓存项
func (r *RedisCache) Delete(key string) error {
	return r.client.Del(r.ctx, redisKeyPrefix+key).Err()
}

// Clear 清空本系统写入的所有缓存项
// 通过SCAN遍历命名空间下的键，不影响同库中任务队列的数据
func (r *RedisCache) Clear() error {
	iter := r.client.Scan(r.ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// 在包初始化时注册Redis缓存
func init() {
	RegisterCache("redis", NewRedisCache)
}
