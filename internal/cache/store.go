package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"inspector/pkg/models"
)

const (
	// DefaultDBPath 默认缓存数据库路径
	DefaultDBPath = "./data/inspector_cache.db"

	// 存储桶名称
	ResolutionBucket = "resolutions"
	SnapshotBucket   = "snapshots"
	ABIBucket        = "abis"
)

// Store 检查结果缓存
//
// 解析结果和快照都锚定在具体区块上，是不可变值，
// 按 (地址, 区块) 键缓存永不失效。ABI按地址缓存。
type Store struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
}

// NewStore 创建缓存存储
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开缓存数据库失败: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化缓存数据库失败: %w", err)
	}

	logger.Infof("结果缓存已初始化，数据库路径: %s", dbPath)
	return store, nil
}

// initDB 初始化存储桶结构
func (s *Store) initDB() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{ResolutionBucket, SnapshotBucket, ABIBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", bucket, err)
			}
		}
		return nil
	})
}

// blockKey 构造 (地址, 区块) 复合键
func blockKey(address string, blockNumber uint64) []byte {
	return []byte(fmt.Sprintf("%s|%d", address, blockNumber))
}

// GetResolution 按地址和区块查询缓存的代理解析结果
func (s *Store) GetResolution(address string, blockNumber uint64) (*models.ProxyResolution, bool) {
	var resolution models.ProxyResolution
	if !s.get(ResolutionBucket, blockKey(address, blockNumber), &resolution) {
		return nil, false
	}
	return &resolution, true
}

// PutResolution 缓存代理解析结果
func (s *Store) PutResolution(resolution *models.ProxyResolution) error {
	return s.put(ResolutionBucket, blockKey(resolution.Address, resolution.ResolvedAtBlock), resolution)
}

// GetSnapshot 按地址和区块查询缓存的状态快照
func (s *Store) GetSnapshot(address string, blockNumber uint64) (*models.StateSnapshot, bool) {
	var snapshot models.StateSnapshot
	if !s.get(SnapshotBucket, blockKey(address, blockNumber), &snapshot) {
		return nil, false
	}
	return &snapshot, true
}

// PutSnapshot 缓存状态快照
func (s *Store) PutSnapshot(snapshot *models.StateSnapshot) error {
	return s.put(SnapshotBucket, blockKey(snapshot.ContractAddress, snapshot.BlockNumber), snapshot)
}

// GetABI 按地址查询缓存的ABI
func (s *Store) GetABI(address string) ([]byte, bool) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ABIBucket))
		if bucket == nil {
			return nil
		}
		if value := bucket.Get([]byte(address)); value != nil {
			data = make([]byte, len(value))
			copy(data, value)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, false
	}
	return data, true
}

// PutABI 缓存ABI
func (s *Store) PutABI(address string, abiJSON []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ABIBucket))
		if bucket == nil {
			return fmt.Errorf("存储桶 %s 不存在", ABIBucket)
		}
		return bucket.Put([]byte(address), abiJSON)
	})
}

// get 查询并反序列化一条记录
func (s *Store) get(bucketName string, key []byte, target interface{}) bool {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		if value := bucket.Get(key); value != nil {
			data = make([]byte, len(value))
			copy(data, value)
		}
		return nil
	})
	if err != nil || data == nil {
		return false
	}

	if err := json.Unmarshal(data, target); err != nil {
		// 损坏的缓存条目按未命中处理
		s.logger.Warnf("缓存条目 %s 反序列化失败: %v", key, err)
		return false
	}
	return true
}

// put 序列化并写入一条记录
func (s *Store) put(bucketName string, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化缓存条目失败: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return fmt.Errorf("存储桶 %s 不存在", bucketName)
		}
		return bucket.Put(key, data)
	})
}

// Close 关闭缓存数据库
func (s *Store) Close() error {
	return s.db.Close()
}
