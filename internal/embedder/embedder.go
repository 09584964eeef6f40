package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flipper/internal/match"
	"flipper/internal/model"
	"flipper/internal/pkg/metrics"
	"flipper/internal/pkg/queue"
	"flipper/internal/pkg/redisqueue"
)

// Provider 计算单张图片向量的能力。
type Provider interface {
	Embed(ctx context.Context, imageURL string) ([]float64, error)
}

// Cache 单图向量缓存。
type Cache interface {
	Get(ctx context.Context, imageURL string) ([]float64, bool, error)
	Put(ctx context.Context, imageURL string, vec []float64) error
}

// Store 回填所需的目录能力。
type Store interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	MissingEmbeddings(ctx context.Context, limit int) ([]model.Product, error)
	SetEmbedding(ctx context.Context, productID string, embedding []float64) error
}

// Backfiller 为缺少向量的商品补算向量的后台调度器。
//
// 调度循环周期性扫描目录，把缺向量的商品 ID 推入 Redis 队列（带去重），
// 消费循环取出任务交给 worker 池：逐图取缓存或调用向量服务，
// 对多图求均值后写回商品记录。
type Backfiller struct {
	store    Store
	provider Provider
	cache    Cache
	jobs     *redisqueue.Client
	pool     *queue.Pool
	logger   *slog.Logger

	interval       time.Duration
	batchSize      int
	rescueInterval time.Duration
	rescueTimeout  time.Duration
}

// New 创建回填调度器。
func New(store Store, provider Provider, cache Cache, jobs *redisqueue.Client, logger *slog.Logger, workers, capacity int, interval time.Duration, batchSize int, rescueInterval, rescueTimeout time.Duration) *Backfiller {
	if workers <= 0 {
		workers = 4
	}
	if capacity <= 0 {
		capacity = 256
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if rescueInterval <= 0 {
		rescueInterval = 10 * time.Minute
	}
	if rescueTimeout <= 0 {
		rescueTimeout = 30 * time.Minute
	}

	pool := queue.NewPool(logger, workers, capacity)
	pool.SetErrorHandler(func(err error, _ queue.Job) {
		logger.Error("embedding job failed", slog.String("error", err.Error()))
	})

	return &Backfiller{
		store:          store,
		provider:       provider,
		cache:          cache,
		jobs:           jobs,
		pool:           pool,
		logger:         logger,
		interval:       interval,
		batchSize:      batchSize,
		rescueInterval: rescueInterval,
		rescueTimeout:  rescueTimeout,
	}
}

// Run 启动调度/消费/巡检三个循环，直到 ctx 取消。
func (b *Backfiller) Run(ctx context.Context) {
	b.pool.Start(ctx)
	go b.dispatchLoop(ctx)
	go b.consumeLoop(ctx)
	go b.janitorLoop(ctx)
}

// dispatchLoop 周期性扫描缺向量的商品并入队。
func (b *Backfiller) dispatchLoop(ctx context.Context) {
	b.logger.Info("embedding backfill dispatcher started",
		slog.String("interval", b.interval.String()),
		slog.Int("batch_size", b.batchSize))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.dispatchOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.dispatchOnce(ctx)
		}
	}
}

func (b *Backfiller) dispatchOnce(ctx context.Context) {
	products, err := b.store.MissingEmbeddings(ctx, b.batchSize)
	if err != nil {
		b.logger.Error("scan missing embeddings failed", slog.String("error", err.Error()))
		return
	}

	enqueued := 0
	for _, p := range products {
		if err := b.jobs.Push(ctx, p.ID); err != nil {
			if errors.Is(err, redisqueue.ErrJobExists) {
				continue
			}
			b.logger.Error("enqueue embedding job failed",
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()))
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		b.logger.Info("embedding jobs enqueued", slog.Int("count", enqueued))
	}

	if depth, err := b.jobs.Depth(ctx); err == nil {
		metrics.EmbedQueueDepth.Set(float64(depth))
	}
}

// consumeLoop 把 Redis 队列中的任务搬进 worker 池执行。
func (b *Backfiller) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, raw, err := b.jobs.Pop(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, redisqueue.ErrNoJob) || ctx.Err() != nil {
				continue
			}
			b.logger.Error("pop embedding job failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		j, r := job, raw
		err = b.pool.EnqueueBlocking(ctx, func(jobCtx context.Context) error {
			defer func() {
				ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := b.jobs.Ack(ackCtx, j, r); err != nil {
					b.logger.Warn("ack embedding job failed",
						slog.String("product_id", j.ProductID),
						slog.String("error", err.Error()))
				}
			}()
			return b.processProduct(jobCtx, j.ProductID)
		})
		if err != nil {
			return
		}
	}
}

// processProduct 为单个商品补算向量。
func (b *Backfiller) processProduct(ctx context.Context, productID string) error {
	product, err := b.store.GetProduct(ctx, productID)
	if err != nil {
		metrics.EmbeddingJobsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("load product %s: %w", productID, err)
	}
	if len(product.Embedding) > 0 || len(product.Images) == 0 {
		metrics.EmbeddingJobsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	embeddings := make([][]float64, 0, len(product.Images))
	for _, imageURL := range product.Images {
		vec, err := b.resolveImage(ctx, imageURL)
		if err != nil {
			b.logger.Warn("image embedding failed",
				slog.String("product_id", productID),
				slog.String("image", imageURL),
				slog.String("error", err.Error()))
			continue
		}
		embeddings = append(embeddings, vec)
	}
	if len(embeddings) == 0 {
		metrics.EmbeddingJobsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("no image embedding resolved for product %s", productID)
	}

	avg, err := match.AverageEmbeddings(embeddings)
	if err != nil {
		metrics.EmbeddingJobsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("average embeddings for product %s: %w", productID, err)
	}

	if err := b.store.SetEmbedding(ctx, productID, avg); err != nil {
		metrics.EmbeddingJobsTotal.WithLabelValues("failed").Inc()
		return err
	}

	metrics.EmbeddingJobsTotal.WithLabelValues("succeeded").Inc()
	b.logger.Info("embedding backfilled",
		slog.String("product_id", productID),
		slog.Int("images", len(embeddings)),
		slog.Int("dim", len(avg)))
	return nil
}

// resolveImage 先查缓存，未命中再调用向量服务并写缓存。
func (b *Backfiller) resolveImage(ctx context.Context, imageURL string) ([]float64, error) {
	if b.cache != nil {
		if vec, ok, err := b.cache.Get(ctx, imageURL); err != nil {
			b.logger.Warn("embedding cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return vec, nil
		}
	}

	vec, err := b.provider.Embed(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache.Put(ctx, imageURL, vec); err != nil {
			b.logger.Warn("embedding cache write failed", slog.String("error", err.Error()))
		}
	}
	return vec, nil
}

// janitorLoop 周期性救回 processing 队列里的滞留任务。
func (b *Backfiller) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.rescueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rescued, err := b.jobs.RescueStale(ctx, b.rescueTimeout)
			if err != nil {
				b.logger.Error("rescue stale jobs failed", slog.String("error", err.Error()))
				continue
			}
			if rescued > 0 {
				b.logger.Warn("stale embedding jobs rescued", slog.Int("count", rescued))
			}
		}
	}
}

// Shutdown 停止 worker 池并等待存量任务完成。
func (b *Backfiller) Shutdown(timeout time.Duration) error {
	return b.pool.Shutdown(timeout)
}
