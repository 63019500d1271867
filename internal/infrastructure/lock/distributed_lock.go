package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【用途】多个实例同时运行交易补偿任务时，同一笔交易只允许一个实例去网关查询
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止进程崩溃导致死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证"检查+删除"的原子性
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// Key 锁的 redis key
func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 非阻塞加锁，锁已被占用时返回 false
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Unlock 释放锁
//
// 【关键点】只删除自己持有的锁：
// A 处理超时，锁过期后被 B 获取，A 的 Unlock 不能把 B 的锁删掉。
// 这种情况返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// ============================================================================
// 便捷函数：按交易加锁
// ============================================================================

// NewTransactionLock 交易维度的锁，owner 标识持有锁的实例
func NewTransactionLock(client *redis.Client, transactionID, owner string) *DistributedLock {
	key := fmt.Sprintf("splitpay:lock:txn:%s", transactionID)
	return NewDistributedLock(client, key, owner, 30*time.Second)
}
