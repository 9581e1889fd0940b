package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"inspector/internal/config"
	"inspector/internal/retry"
)

// Client 链状态访问接口
//
// 所有读取都必须携带显式区块号，核心逻辑内不允许隐式latest读取。
type Client interface {
	// GetCode 获取指定区块高度的合约字节码
	GetCode(ctx context.Context, address common.Address, blockNumber uint64) ([]byte, error)
	// GetStorageAt 读取指定区块高度的存储槽
	GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, blockNumber uint64) ([]byte, error)
	// Call 在指定区块高度执行只读调用
	Call(ctx context.Context, address common.Address, data []byte, blockNumber uint64) ([]byte, error)
	// LatestBlock 获取当前最新区块号
	LatestBlock(ctx context.Context) (uint64, error)
}

// NodeClient 节点客户端
type NodeClient struct {
	Name         string
	URL          string
	Priority     int
	Client       *ethclient.Client
	Available    bool
	RateLimited  bool      // 是否被速率限制
	RateLimitEnd time.Time // 速率限制结束时间
	ErrorCount   int       // 错误计数
	minInterval  time.Duration // 按配置速率限制的最小请求间隔
	nextRequest  time.Time
	mu           sync.RWMutex
}

// throttle 按节点配置的每秒请求数上限主动限速
//
// 与429触发的被动冷却互补：这里在发送前排队等位，
// 避免一开始就把节点打到限流。
func (n *NodeClient) throttle(ctx context.Context) error {
	if n.minInterval <= 0 {
		return nil
	}

	n.mu.Lock()
	now := time.Now()
	next := n.nextRequest
	if next.Before(now) {
		next = now
	}
	n.nextRequest = next.Add(n.minInterval)
	n.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiNodeClient 多节点链客户端
//
// 按优先级轮换节点，被限流的节点在冷却期内跳过；
// 瞬时网络错误在客户端边界做有界退避重试。
type MultiNodeClient struct {
	nodes            []*NodeClient
	logger           *logrus.Logger
	retrier          *retry.Retrier
	mu               sync.Mutex
	currentNodeIndex int
}

// rateLimitCooldown 节点限流后的冷却时间
const rateLimitCooldown = 5 * time.Minute

// NewMultiNodeClient 创建多节点链客户端
func NewMultiNodeClient(cfg *config.BlockchainConfig, logger *logrus.Logger) (*MultiNodeClient, error) {
	if cfg == nil || len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("至少需要配置一个区块链节点")
	}

	var nodes []*NodeClient
	for _, nodeConfig := range cfg.Nodes {
		if nodeConfig.URL == "" {
			logger.Warnf("节点 %s 缺少URL，已跳过", nodeConfig.Name)
			continue
		}

		client, err := ethclient.Dial(nodeConfig.URL)
		if err != nil {
			logger.Warnf("连接节点 %s 失败: %v", nodeConfig.Name, err)
			continue
		}

		var minInterval time.Duration
		if nodeConfig.RateLimit > 0 {
			minInterval = time.Second / time.Duration(nodeConfig.RateLimit)
		}

		nodes = append(nodes, &NodeClient{
			Name:        nodeConfig.Name,
			URL:         nodeConfig.URL,
			Priority:    nodeConfig.Priority,
			Client:      client,
			Available:   true,
			minInterval: minInterval,
		})
		logger.Infof("成功连接到节点: %s", nodeConfig.Name)
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("无法连接到任何区块链节点")
	}

	// 按优先级排序节点（优先级数字越小越优先）
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Priority < nodes[j].Priority
	})

	return &MultiNodeClient{
		nodes:   nodes,
		logger:  logger,
		retrier: retry.NewRetrier(retry.NetworkRetryConfig, logger),
	}, nil
}

// getNextAvailableNode 获取下一个可用节点
func (mc *MultiNodeClient) getNextAvailableNode() *NodeClient {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()

	for i := 0; i < len(mc.nodes); i++ {
		index := (mc.currentNodeIndex + i) % len(mc.nodes)
		node := mc.nodes[index]

		node.mu.RLock()
		available := node.Available
		rateLimited := node.RateLimited
		rateLimitEnd := node.RateLimitEnd
		node.mu.RUnlock()

		// 检查速率限制是否已过期
		if rateLimited && now.After(rateLimitEnd) {
			node.mu.Lock()
			node.RateLimited = false
			node.ErrorCount = 0
			node.mu.Unlock()
			mc.logger.Infof("节点 %s 速率限制已解除", node.Name)
			rateLimited = false
		}

		if available && !rateLimited {
			mc.currentNodeIndex = index
			return node
		}
	}

	// 所有节点不可用时重置非限流节点再试
	mc.logger.Warn("所有节点都不可用，尝试重置节点状态...")
	for _, node := range mc.nodes {
		node.mu.Lock()
		if !node.RateLimited {
			node.Available = true
		}
		node.mu.Unlock()
	}

	if len(mc.nodes) > 0 {
		return mc.nodes[0]
	}
	return nil
}

// handleNodeError 处理节点错误
func (mc *MultiNodeClient) handleNodeError(node *NodeClient, err error) {
	if isRateLimitError(err) {
		node.mu.Lock()
		node.RateLimited = true
		node.RateLimitEnd = time.Now().Add(rateLimitCooldown)
		node.ErrorCount++
		node.mu.Unlock()
		mc.logger.Warnf("节点 %s 达到速率限制，冷却 %v", node.Name, rateLimitCooldown)
		return
	}

	if retry.IsRetryableError(err) {
		node.mu.Lock()
		node.ErrorCount++
		if node.ErrorCount >= 3 {
			node.Available = false
			mc.logger.Warnf("节点 %s 错误次数过多，暂时禁用", node.Name)
		}
		node.mu.Unlock()
	}
}

// isRateLimitError 检测是否为429错误
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	patterns := []string{
		"429", "Too Many Requests", "rate limit", "Rate limit",
		"quota exceeded", "request limit", "requests per second",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// execute 在可用节点上执行操作，封装重试与节点错误记账
func (mc *MultiNodeClient) execute(ctx context.Context, operation string, fn func(client *ethclient.Client) error) error {
	return mc.retrier.Execute(ctx, operation, func() error {
		node := mc.getNextAvailableNode()
		if node == nil {
			return fmt.Errorf("没有可用的节点")
		}

		if err := node.throttle(ctx); err != nil {
			return err
		}

		if err := fn(node.Client); err != nil {
			mc.handleNodeError(node, err)
			return err
		}
		return nil
	})
}

// GetCode 获取指定区块高度的合约字节码
func (mc *MultiNodeClient) GetCode(ctx context.Context, address common.Address, blockNumber uint64) ([]byte, error) {
	var code []byte
	err := mc.execute(ctx, fmt.Sprintf("获取字节码 %s", address.Hex()), func(client *ethclient.Client) error {
		var callErr error
		code, callErr = client.CodeAt(ctx, address, new(big.Int).SetUint64(blockNumber))
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return code, nil
}

// GetStorageAt 读取指定区块高度的存储槽
func (mc *MultiNodeClient) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, blockNumber uint64) ([]byte, error) {
	var value []byte
	err := mc.execute(ctx, fmt.Sprintf("读取存储槽 %s", slot.Hex()), func(client *ethclient.Client) error {
		var callErr error
		value, callErr = client.StorageAt(ctx, address, slot, new(big.Int).SetUint64(blockNumber))
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Call 在指定区块高度执行只读调用
func (mc *MultiNodeClient) Call(ctx context.Context, address common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	msg := ethereum.CallMsg{
		To:   &address,
		Data: data,
	}

	var result []byte
	err := mc.execute(ctx, fmt.Sprintf("调用合约 %s", address.Hex()), func(client *ethclient.Client) error {
		var callErr error
		result, callErr = client.CallContract(ctx, msg, new(big.Int).SetUint64(blockNumber))
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LatestBlock 获取当前最新区块号
func (mc *MultiNodeClient) LatestBlock(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	err := mc.execute(ctx, "获取最新区块号", func(client *ethclient.Client) error {
		var callErr error
		blockNumber, callErr = client.BlockNumber(ctx)
		return callErr
	})
	if err != nil {
		return 0, err
	}
	return blockNumber, nil
}

// Close 关闭所有节点连接
func (mc *MultiNodeClient) Close() {
	for _, node := range mc.nodes {
		if node.Client != nil {
			node.Client.Close()
		}
	}
}
