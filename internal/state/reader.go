package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"inspector/internal/chain"
	"inspector/internal/config"
	ierrors "inspector/internal/errors"
	"inspector/internal/retry"
	"inspector/internal/selector"
	"inspector/pkg/models"
)

// Reader 批量状态读取器
//
// 用固定大小的工作协程池并发执行只读调用，所有调用锚定在
// 同一个区块高度上。单个调用失败只影响自身的结果记录，
// 整个批次被取消时不返回部分快照。
type Reader struct {
	client      chain.Client
	workers     int
	callTimeout time.Duration
	retrier     *retry.Retrier
	logger      *logrus.Logger
}

// NewReader 创建批量状态读取器
func NewReader(client chain.Client, cfg *config.ReaderConfig, logger *logrus.Logger) *Reader {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	callTimeout, err := time.ParseDuration(cfg.CallTimeout)
	if err != nil || callTimeout <= 0 {
		callTimeout = 10 * time.Second
		logger.Warnf("解析调用超时配置失败，使用默认值10s: %v", err)
	}

	// 瞬时错误在记录为失败结果前按配置的预算重试，
	// revert等终态错误只尝试一次
	retryConfig := *retry.NetworkRetryConfig
	if cfg.RetryLimit > 0 {
		retryConfig.MaxAttempts = cfg.RetryLimit
	}

	return &Reader{
		client:      client,
		workers:     workers,
		callTimeout: callTimeout,
		retrier:     retry.NewRetrier(&retryConfig, logger),
		logger:      logger,
	}
}

// callTask 单个调用任务
type callTask struct {
	plan selector.CallPlan
}

// callResult 单个调用结果
type callResult struct {
	selector string
	outcome  models.CallOutcome
}

// CaptureSnapshot 在指定区块捕获合约状态快照
//
// 每个调用计划恰好产生一条结果记录。上下文被取消时
// 返回错误而不是不完整的快照。
func (r *Reader) CaptureSnapshot(ctx context.Context, address common.Address, plans []selector.CallPlan, block chain.BlockReference) (*models.StateSnapshot, error) {
	blockNumber, err := block.Pin(ctx, r.client)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"address": models.CanonicalAddress(address),
		"block":   blockNumber,
		"calls":   len(plans),
		"workers": r.workers,
	}).Info("开始捕获状态快照")

	taskChan := make(chan callTask, len(plans))
	resultChan := make(chan callResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, address, blockNumber, taskChan, resultChan)
	}

	for _, plan := range plans {
		taskChan <- callTask{plan: plan}
	}
	close(taskChan)

	wg.Wait()
	close(resultChan)

	if ctx.Err() != nil {
		return nil, ierrors.WrapError(
			ctx.Err(), ierrors.ErrorTypeSystem, ierrors.SeverityMedium,
			"SNAPSHOT_CANCELLED", "快照捕获被取消",
		).WithAddress(models.CanonicalAddress(address)).WithBlockNumber(blockNumber)
	}

	snapshot := &models.StateSnapshot{
		ContractAddress: models.CanonicalAddress(address),
		BlockNumber:     blockNumber,
		CapturedAt:      time.Now(),
		Outcomes:        make(map[string]models.CallOutcome, len(plans)),
	}

	for result := range resultChan {
		snapshot.Outcomes[result.selector] = result.outcome
		if result.outcome.Success {
			snapshot.SuccessCount++
		} else {
			snapshot.FailureCount++
		}
	}

	r.logger.WithFields(logrus.Fields{
		"address":  snapshot.ContractAddress,
		"block":    blockNumber,
		"success":  snapshot.SuccessCount,
		"failures": snapshot.FailureCount,
	}).Info("状态快照捕获完成")

	return snapshot, nil
}

// worker 工作协程：从任务通道取调用并执行
func (r *Reader) worker(ctx context.Context, wg *sync.WaitGroup, address common.Address, blockNumber uint64, taskChan <-chan callTask, resultChan chan<- callResult) {
	defer wg.Done()

	for task := range taskChan {
		select {
		case <-ctx.Done():
			// 批次已取消，剩余任务直接丢弃
			return
		default:
		}

		outcome := r.executeCall(ctx, address, blockNumber, task.plan)
		resultChan <- callResult{
			selector: task.plan.Descriptor.Selector,
			outcome:  outcome,
		}
	}
}

// executeCall 执行单个只读调用并解码返回值
func (r *Reader) executeCall(ctx context.Context, address common.Address, blockNumber uint64, plan selector.CallPlan) models.CallOutcome {
	outcome := models.CallOutcome{
		Function:  plan.Descriptor.Name,
		Signature: plan.Descriptor.Signature,
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	var raw []byte
	err := r.retrier.Execute(callCtx, "只读调用 "+plan.Descriptor.Signature, func() error {
		var callErr error
		raw, callErr = r.client.Call(callCtx, address, plan.CallData, blockNumber)
		return callErr
	})
	if err != nil {
		outcome.Reason = failureReason(err)
		r.logger.WithFields(logrus.Fields{
			"function": plan.Descriptor.Signature,
			"reason":   outcome.Reason,
		}).Debug("只读调用失败")
		return outcome
	}

	value, err := decodeReturn(plan, raw)
	if err != nil {
		outcome.Reason = fmt.Sprintf("返回值解码失败: %v", err)
		return outcome
	}

	outcome.Success = true
	outcome.Value = value
	return outcome
}

// decodeReturn 按输出参数定义解码返回数据
func decodeReturn(plan selector.CallPlan, raw []byte) (interface{}, error) {
	if len(plan.Outputs) == 0 {
		return nil, nil
	}

	values, err := plan.Outputs.UnpackValues(raw)
	if err != nil {
		return nil, err
	}

	if len(values) == 1 {
		return formatValue(values[0]), nil
	}

	// 多返回值按输出名（无名时按位置）展开
	formatted := make(map[string]interface{}, len(values))
	for i, value := range values {
		name := ""
		if i < len(plan.Outputs) {
			name = plan.Outputs[i].Name
		}
		if name == "" {
			name = fmt.Sprintf("output_%d", i)
		}
		formatted[name] = formatValue(value)
	}
	return formatted, nil
}

// failureReason 归一化调用失败原因
func failureReason(err error) string {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "execution reverted"):
		return msg
	case strings.Contains(lower, "context deadline exceeded"):
		return "调用超时"
	case strings.Contains(lower, "context canceled"):
		return "调用被取消"
	default:
		return msg
	}
}
