package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyJobQueue        = "flipper:embed:queue"
	KeyProcessingQueue = "flipper:embed:queue:processing"
	KeyPendingSet      = "flipper:embed:queue:pending" // 去重集合
	KeyStartedHash     = "flipper:embed:queue:started" // product_id -> unix 毫秒时间戳
)

var (
	ErrNoJob     = errors.New("no job available")
	ErrJobExists = errors.New("job already in queue")
)

// Job 向量回填任务。
type Job struct {
	ProductID  string    `json:"product_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Client wraps Redis List operations for the embedding backfill queue.
type Client struct {
	rdb *redis.Client
}

// NewClient 基于已有 redis 连接创建队列客户端。
func NewClient(rdb *redis.Client) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Client{rdb: rdb}, nil
}

// pushScript 原子执行 SADD + LPUSH，避免中间状态不一致。
// KEYS[1] = pending set, KEYS[2] = job queue
// ARGV[1] = product_id, ARGV[2] = job JSON
// 返回: 1 = 成功推送, 0 = 任务已存在
var pushScript = redis.NewScript(`
	local added = redis.call('SADD', KEYS[1], ARGV[1])
	if added == 0 then
		return 0
	end
	redis.call('LPUSH', KEYS[2], ARGV[2])
	return 1
`)

// Push 把商品 ID 推入回填队列。已在队列中返回 ErrJobExists。
func (c *Client) Push(ctx context.Context, productID string) error {
	if productID == "" {
		return errors.New("product id is empty")
	}

	payload, err := json.Marshal(Job{ProductID: productID, EnqueuedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	res, err := pushScript.Run(ctx, c.rdb, []string{KeyPendingSet, KeyJobQueue}, productID, payload).Int()
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	if res == 0 {
		return ErrJobExists
	}
	return nil
}

// Pop 阻塞取出一个任务并移入 processing 队列。
// timeout 内无任务返回 ErrNoJob。返回的 raw 用于后续 Ack。
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*Job, string, error) {
	raw, err := c.rdb.BRPopLPush(ctx, KeyJobQueue, KeyProcessingQueue, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", ErrNoJob
		}
		return nil, "", fmt.Errorf("pop job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// 无法解析的载荷直接丢弃，避免毒丸任务阻塞队列
		_ = c.rdb.LRem(ctx, KeyProcessingQueue, 1, raw).Err()
		return nil, "", fmt.Errorf("unmarshal job: %w", err)
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := c.rdb.HSet(ctx, KeyStartedHash, job.ProductID, now).Err(); err != nil {
		return nil, "", fmt.Errorf("mark job started: %w", err)
	}
	return &job, raw, nil
}

// Ack 确认任务完成，清除 processing 队列与去重集合中的痕迹。
func (c *Client) Ack(ctx context.Context, job *Job, raw string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	pipe := c.rdb.TxPipeline()
	pipe.LRem(ctx, KeyProcessingQueue, 1, raw)
	pipe.SRem(ctx, KeyPendingSet, job.ProductID)
	pipe.HDel(ctx, KeyStartedHash, job.ProductID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// RescueStale 把 processing 队列中滞留超过 olderThan 的任务搬回主队列。
// worker 崩溃后任务不会永久丢失。返回救回的任务数。
func (c *Client) RescueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	raws, err := c.rdb.LRange(ctx, KeyProcessingQueue, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan processing queue: %w", err)
	}

	cutoff := time.Now().Add(-olderThan).UnixMilli()
	rescued := 0
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = c.rdb.LRem(ctx, KeyProcessingQueue, 1, raw).Err()
			continue
		}

		startedStr, err := c.rdb.HGet(ctx, KeyStartedHash, job.ProductID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return rescued, fmt.Errorf("read job start time: %w", err)
		}
		started, _ := strconv.ParseInt(startedStr, 10, 64)
		if started > cutoff {
			continue
		}

		pipe := c.rdb.TxPipeline()
		pipe.LRem(ctx, KeyProcessingQueue, 1, raw)
		pipe.LPush(ctx, KeyJobQueue, raw)
		pipe.HDel(ctx, KeyStartedHash, job.ProductID)
		if _, err := pipe.Exec(ctx); err != nil {
			return rescued, fmt.Errorf("rescue job: %w", err)
		}
		rescued++
	}
	return rescued, nil
}

// Depth 返回主队列中等待的任务数。
func (c *Client) Depth(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, KeyJobQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
