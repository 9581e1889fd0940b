package abiprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"inspector/internal/config"
	ierrors "inspector/internal/errors"
	"inspector/pkg/models"
)

// ABICache ABI缓存接口
//
// 由缓存层实现，提供方自身不关心存储介质。
type ABICache interface {
	GetABI(address string) ([]byte, bool)
	PutABI(address string, abiJSON []byte) error
}

// Provider 合约ABI提供方
type Provider interface {
	// FetchABI 获取合约ABI定义
	//
	// 未验证的合约返回 (nil, nil)：没有ABI不是错误，
	// 调用方据此降级为空函数集。
	FetchABI(ctx context.Context, address common.Address) ([]byte, error)
}

// etherscanResponse Etherscan API响应
type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// EtherscanProvider 基于Etherscan的ABI提供方
type EtherscanProvider struct {
	logger *logrus.Logger
	config *config.ABIProviderConfig
	client *http.Client
	cache  ABICache
}

var _ Provider = (*EtherscanProvider)(nil)

// NewEtherscanProvider 创建Etherscan ABI提供方
//
// cache可为nil，此时每次都走远程API。
func NewEtherscanProvider(cfg *config.ABIProviderConfig, cache ABICache, logger *logrus.Logger) *EtherscanProvider {
	timeout, err := time.ParseDuration(cfg.APITimeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
		logger.Warnf("解析API超时配置失败，使用默认值10s: %v", err)
	}

	if !cfg.EnableCache {
		cache = nil
	}

	return &EtherscanProvider{
		logger: logger,
		config: cfg,
		client: &http.Client{Timeout: timeout},
		cache:  cache,
	}
}

// FetchABI 获取合约ABI定义
func (p *EtherscanProvider) FetchABI(ctx context.Context, address common.Address) ([]byte, error) {
	canonical := models.CanonicalAddress(address)

	if p.cache != nil {
		if abiJSON, ok := p.cache.GetABI(canonical); ok {
			p.logger.WithField("address", canonical).Debug("ABI缓存命中")
			return abiJSON, nil
		}
	}

	abiJSON, err := p.fetchFromEtherscan(ctx, canonical)
	if err != nil {
		return nil, err
	}

	if abiJSON != nil && p.cache != nil {
		if err := p.cache.PutABI(canonical, abiJSON); err != nil {
			// 缓存写入失败不影响本次结果
			p.logger.Warnf("写入ABI缓存失败: %v", err)
		}
	}

	return abiJSON, nil
}

// fetchFromEtherscan 从Etherscan API获取ABI
func (p *EtherscanProvider) fetchFromEtherscan(ctx context.Context, address string) ([]byte, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getabi")
	params.Set("address", address)
	if p.config.APIKey != "" {
		params.Set("apikey", p.config.APIKey)
	}

	requestURL := fmt.Sprintf("%s?%s", p.config.EtherscanURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构造ABI请求失败: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ierrors.WrapError(
			err, ierrors.ErrorTypeEtherscan, ierrors.SeverityMedium,
			"ETHERSCAN_REQUEST_FAILED", "请求Etherscan API失败",
		).WithAddress(address)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ierrors.NewInspectorError(
			ierrors.ErrorTypeEtherscan, ierrors.SeverityMedium, "ETHERSCAN_HTTP_ERROR",
			fmt.Sprintf("Etherscan API返回状态码 %d", resp.StatusCode),
		).WithAddress(address)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取Etherscan响应失败: %w", err)
	}

	var apiResp etherscanResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("解析Etherscan响应失败: %w", err)
	}

	if apiResp.Status != "1" {
		// 未验证的合约没有ABI，这不是错误
		if strings.Contains(apiResp.Result, "not verified") {
			p.logger.WithField("address", address).Info("合约源码未验证，无可用ABI")
			return nil, nil
		}
		return nil, ierrors.NewInspectorError(
			ierrors.ErrorTypeEtherscan, ierrors.SeverityMedium, "ETHERSCAN_API_ERROR",
			fmt.Sprintf("Etherscan API错误: %s", apiResp.Result),
		).WithAddress(address)
	}

	return []byte(apiResp.Result), nil
}

// StaticProvider 直接使用给定ABI的提供方，用于离线场景
type StaticProvider struct {
	abiJSON []byte
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider 创建静态ABI提供方
func NewStaticProvider(abiJSON []byte) *StaticProvider {
	return &StaticProvider{abiJSON: abiJSON}
}

// FetchABI 返回预置的ABI
func (p *StaticProvider) FetchABI(ctx context.Context, address common.Address) ([]byte, error) {
	return p.abiJSON, nil
}
