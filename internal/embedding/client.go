package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"flipper/internal/config"
	"flipper/internal/pkg/metrics"
)

// ErrGenerationFailed 向量服务报告预测失败（终态，重试无意义）。
var ErrGenerationFailed = errors.New("embedding generation failed")

// Limiter 对向量服务调用的限流接口。
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Client 调用外部向量服务（Replicate 风格的异步预测 API）。
//
// 计算向量是秒级的慢操作：先创建预测任务，再轮询直到终态。
// 每次 Embed 的总耗时受 PollTimeout 约束，不会无限阻塞。
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiToken     string
	modelVersion string
	pollInterval time.Duration
	pollTimeout  time.Duration
	limiter      Limiter
	logger       *slog.Logger
}

// NewClient 创建向量服务客户端。limiter 可为 nil（不限流）。
func NewClient(cfg *config.EmbeddingConfig, limiter Limiter, logger *slog.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      cfg.BaseURL,
		apiToken:     cfg.APIToken,
		modelVersion: cfg.ModelVersion,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		limiter:      limiter,
		logger:       logger,
	}
}

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"` // starting / processing / succeeded / failed / canceled
	Output struct {
		Embedding []float64 `json:"embedding"`
	} `json:"output"`
	Error string `json:"error"`
}

// Embed 计算单张图片的向量。
//
// 创建预测任务后按 pollInterval 轮询，直到 succeeded/failed 或超出
// pollTimeout。失败与超时都作为错误上抛，不会返回空向量冒充结果。
func (c *Client) Embed(ctx context.Context, imageURL string) ([]float64, error) {
	if imageURL == "" {
		return nil, errors.New("image url is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	pred, err := c.createPrediction(ctx, imageURL)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	for pred.Status != "succeeded" && pred.Status != "failed" && pred.Status != "canceled" {
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			metrics.EmbeddingRequestsTotal.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("poll prediction %s: %w", pred.ID, ctx.Err())
		case <-timer.C:
		}

		pred, err = c.pollPrediction(ctx, pred.ID)
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	if pred.Status != "succeeded" {
		metrics.EmbeddingRequestsTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("embedding prediction failed",
			slog.String("prediction_id", pred.ID),
			slog.String("status", pred.Status),
			slog.String("error", pred.Error))
		return nil, ErrGenerationFailed
	}
	if len(pred.Output.Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues("failed").Inc()
		return nil, ErrGenerationFailed
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("succeeded").Inc()
	return pred.Output.Embedding, nil
}

func (c *Client) createPrediction(ctx context.Context, imageURL string) (*prediction, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"version": c.modelVersion,
		"input":   map[string]string{"image": imageURL},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiToken)

	return c.doPredictionRequest(req)
}

func (c *Client) pollPrediction(ctx context.Context, predictionID string) (*prediction, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+predictionID, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiToken)

	return c.doPredictionRequest(req)
}

func (c *Client) doPredictionRequest(req *http.Request) (*prediction, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding provider status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	return &pred, nil
}
