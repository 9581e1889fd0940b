package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	blockchainConfig, err := dc.loadBlockchainConfig()
	if err != nil {
		return nil, fmt.Errorf("加载区块链配置失败: %w", err)
	}
	config.Blockchain = blockchainConfig

	if err := dc.loadInspectorConfig(config); err != nil {
		return nil, fmt.Errorf("加载检查器配置失败: %w", err)
	}

	return config, nil
}

// loadBlockchainConfig 加载区块链配置
func (dc *DatabaseConfig) loadBlockchainConfig() (*BlockchainConfig, error) {
	query := `SELECT name, url, node_type, rate_limit, priority FROM blockchain_nodes WHERE is_active = true ORDER BY priority`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*NodeConfig
	for rows.Next() {
		var node NodeConfig
		err := rows.Scan(&node.Name, &node.URL, &node.Type, &node.RateLimit, &node.Priority)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &node)
	}

	return &BlockchainConfig{
		Nodes: nodes,
	}, nil
}

// loadInspectorConfig 加载检查器键值配置
func (dc *DatabaseConfig) loadInspectorConfig(config *Config) error {
	query := `SELECT config_key, config_value FROM inspector_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}

		switch key {
		case "resolver_max_depth":
			if v, err := strconv.Atoi(value); err == nil {
				config.Resolver.MaxDepth = v
			}
		case "resolver_timeout":
			config.Resolver.Timeout = value
		case "reader_workers":
			if v, err := strconv.Atoi(value); err == nil {
				config.Reader.Workers = v
			}
		case "reader_call_timeout":
			config.Reader.CallTimeout = value
		case "reader_retry_limit":
			if v, err := strconv.Atoi(value); err == nil {
				config.Reader.RetryLimit = v
			}
		case "etherscan_url":
			config.ABI.EtherscanURL = value
		case "etherscan_api_key":
			config.ABI.APIKey = value
		case "cache_path":
			config.Cache.Path = value
			config.Cache.Enabled = true
		case "output_format":
			config.Output.Format = value
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				config.Output.Kafka.Brokers = brokers
			}
		}
	}

	return rows.Err()
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
