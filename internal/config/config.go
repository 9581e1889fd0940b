package config

import (
	"fmt"
	"os"

	"inspector/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 主配置
type Config struct {
	Blockchain *BlockchainConfig  `mapstructure:"blockchain"`
	Resolver   *ResolverConfig    `mapstructure:"resolver"`
	Reader     *ReaderConfig      `mapstructure:"reader"`
	ABI        *ABIProviderConfig `mapstructure:"abi"`
	Cache      *CacheConfig       `mapstructure:"cache"`
	Output     *OutputConfig      `mapstructure:"output"`
	API        *APIConfig         `mapstructure:"api"`
	Logging    *logging.LogConfig `mapstructure:"logging"`
}

// BlockchainConfig 区块链配置
type BlockchainConfig struct {
	Nodes []*NodeConfig `mapstructure:"nodes"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	Type      string `mapstructure:"type"`
	RateLimit int    `mapstructure:"rate_limit"` // 每秒请求数上限，0为不限
	Priority  int    `mapstructure:"priority"`
}

// ResolverConfig 代理解析器配置
//
// 网络重试由链客户端统一负责，这里不单独设重试预算。
type ResolverConfig struct {
	MaxDepth int    `mapstructure:"max_depth"` // 代理链最大递归深度
	Timeout  string `mapstructure:"timeout"`   // 整次解析的总超时
}

// ReaderConfig 状态读取器配置
type ReaderConfig struct {
	Workers     int    `mapstructure:"workers"`      // 并发工作协程数
	CallTimeout string `mapstructure:"call_timeout"` // 单次调用超时
	RetryLimit  int    `mapstructure:"retry_limit"`  // 瞬时错误重试次数
}

// ABIProviderConfig ABI提供方配置
type ABIProviderConfig struct {
	EtherscanURL string `mapstructure:"etherscan_url"` // Etherscan API地址
	APIKey       string `mapstructure:"api_key"`       // API密钥
	APITimeout   string `mapstructure:"api_timeout"`   // API超时
	EnableCache  bool   `mapstructure:"enable_cache"`  // 启用ABI缓存
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"` // 启用缓存
	Path    string `mapstructure:"path"`    // bbolt数据库路径
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Format    string       `mapstructure:"format"`
	Directory string       `mapstructure:"directory"`
	Kafka     *KafkaConfig `mapstructure:"kafka"`
}

// APIConfig API服务配置
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 首先尝试从环境变量获取数据库配置
	dbDSN := os.Getenv("INSPECTOR_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	// 数据库配置不可用时回退到YAML文件
	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		// 配置文件不存在时使用默认配置
		return GetDefaultConfig(), nil
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults 为缺失的段补默认值
func applyDefaults(config *Config) {
	defaults := GetDefaultConfig()
	if config.Blockchain == nil {
		config.Blockchain = defaults.Blockchain
	}
	if config.Resolver == nil {
		config.Resolver = defaults.Resolver
	}
	if config.Reader == nil {
		config.Reader = defaults.Reader
	}
	if config.ABI == nil {
		config.ABI = defaults.ABI
	}
	if config.Cache == nil {
		config.Cache = defaults.Cache
	}
	if config.Output == nil {
		config.Output = defaults.Output
	}
	if config.API == nil {
		config.API = defaults.API
	}
	if config.Logging == nil {
		config.Logging = defaults.Logging
	}
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Blockchain: &BlockchainConfig{
			Nodes: []*NodeConfig{
				{
					Name:      "default_node",
					URL:       os.Getenv("ETH_NODE_URL"),
					Type:      "rpc",
					RateLimit: 1000,
					Priority:  1,
				},
			},
		},
		Resolver: &ResolverConfig{
			MaxDepth: 4,
			Timeout:  "15s",
		},
		Reader: &ReaderConfig{
			Workers:     8,
			CallTimeout: "10s",
			RetryLimit:  3,
		},
		ABI: &ABIProviderConfig{
			EtherscanURL: "https://api.etherscan.io/api",
			APIKey:       os.Getenv("ETHERSCAN_API_KEY"),
			APITimeout:   "10s",
			EnableCache:  true,
		},
		Cache: &CacheConfig{
			Enabled: false,
			Path:    "./inspector_cache.db",
		},
		Output: &OutputConfig{
			Format:    "file",
			Directory: "./outputs",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"resolutions": "contract_resolutions",
					"snapshots":   "contract_snapshots",
					"diffs":       "contract_diffs",
				},
			},
		},
		API: &APIConfig{
			Port: 8080,
		},
		Logging: &logging.LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate 校验配置的必要字段
func (c *Config) Validate() error {
	if c.Blockchain == nil || len(c.Blockchain.Nodes) == 0 {
		return fmt.Errorf("至少需要配置一个区块链节点")
	}
	for _, node := range c.Blockchain.Nodes {
		if node.URL == "" {
			return fmt.Errorf("节点 %s 缺少URL配置", node.Name)
		}
	}
	if c.Resolver != nil && c.Resolver.MaxDepth <= 0 {
		return fmt.Errorf("resolver.max_depth 必须大于0")
	}
	if c.Reader != nil && c.Reader.Workers <= 0 {
		return fmt.Errorf("reader.workers 必须大于0")
	}
	return nil
}
