package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"inspector/internal/config"
	"inspector/pkg/models"
)

// Output 检查结果输出接口
type Output interface {
	WriteResolution(resolution *models.ProxyResolution) error
	WriteSnapshot(snapshot *models.StateSnapshot) error
	WriteDiff(diff *models.SnapshotDiff) error
	WriteReport(report *models.InspectionReport) error
	WriteComparison(comparison *models.ComparisonReport) error
	WriteBatch(batch *models.BatchAnalysis) error
	Close() error
}

// NewOutput 根据配置创建输出器
func NewOutput(cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		cfg = &config.OutputConfig{Format: "file", Directory: "./outputs"}
	}

	switch cfg.Format {
	case "kafka":
		brokers := []string{"localhost:9092"}
		if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
			brokers = strings.Split(kafkaBrokers, ",")
		}

		topics := map[string]string{
			"resolutions": "contract_resolutions",
			"snapshots":   "contract_snapshots",
			"diffs":       "contract_diffs",
			"reports":     "contract_reports",
		}

		if cfg.Kafka != nil {
			if len(cfg.Kafka.Brokers) > 0 {
				brokers = cfg.Kafka.Brokers
			}
			for key, topic := range cfg.Kafka.Topics {
				topics[key] = topic
			}
		}

		return NewKafkaOutput(brokers, topics, logger)
	case "file", "json", "":
		return NewFileOutput(cfg.Directory, logger)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s", cfg.Format)
	}
}

// FileOutput 文件输出器
//
// 每条结果写独立的JSON文件，文件名携带地址和区块号，
// 同一 (地址, 区块) 的结果可被重复写入覆盖。
type FileOutput struct {
	outputDir string
	logger    *logrus.Logger
}

// NewFileOutput 创建文件输出器
func NewFileOutput(outputDir string, logger *logrus.Logger) (*FileOutput, error) {
	if outputDir == "" {
		outputDir = "./outputs"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	return &FileOutput{
		outputDir: outputDir,
		logger:    logger,
	}, nil
}

// writeJSON 序列化并写入一个JSON文件
func (f *FileOutput) writeJSON(filename string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化输出数据失败: %w", err)
	}

	path := filepath.Join(f.outputDir, filename)
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}

	f.logger.Infof("已写入输出文件: %s", path)
	return nil
}

// WriteResolution 写入代理解析结果
func (f *FileOutput) WriteResolution(resolution *models.ProxyResolution) error {
	if resolution == nil {
		return nil
	}
	filename := fmt.Sprintf("resolution_%s_%d.json", resolution.Address, resolution.ResolvedAtBlock)
	return f.writeJSON(filename, resolution)
}

// WriteSnapshot 写入状态快照
func (f *FileOutput) WriteSnapshot(snapshot *models.StateSnapshot) error {
	if snapshot == nil {
		return nil
	}
	filename := fmt.Sprintf("snapshot_%s_%d.json", snapshot.ContractAddress, snapshot.BlockNumber)
	return f.writeJSON(filename, snapshot)
}

// WriteDiff 写入快照差异
func (f *FileOutput) WriteDiff(diff *models.SnapshotDiff) error {
	if diff == nil {
		return nil
	}
	filename := fmt.Sprintf("diff_%s_%d_%d.json", diff.AddressAfter, diff.BlockBefore, diff.BlockAfter)
	return f.writeJSON(filename, diff)
}

// WriteReport 写入检查报告
func (f *FileOutput) WriteReport(report *models.InspectionReport) error {
	if report == nil {
		return nil
	}
	filename := fmt.Sprintf("report_%s_%d.json", report.Address, report.BlockNumber)
	return f.writeJSON(filename, report)
}

// WriteComparison 写入对比报告
func (f *FileOutput) WriteComparison(comparison *models.ComparisonReport) error {
	if comparison == nil {
		return nil
	}
	filename := fmt.Sprintf("comparison_%s_%d_%d.json",
		comparison.Address, comparison.BlockBefore, comparison.BlockAfter)
	return f.writeJSON(filename, comparison)
}

// WriteBatch 写入批量检查汇总
func (f *FileOutput) WriteBatch(batch *models.BatchAnalysis) error {
	if batch == nil {
		return nil
	}
	filename := fmt.Sprintf("batch_%d_%d.json", batch.BlockNumber, len(batch.Entries))
	return f.writeJSON(filename, batch)
}

// Close 关闭输出器
func (f *FileOutput) Close() error {
	return nil
}

// LoadSnapshot 从JSON文件载入状态快照
//
// 用于离线比较两个先前导出的快照。
func LoadSnapshot(path string) (*models.StateSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取快照文件失败: %w", err)
	}

	var snapshot models.StateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("解析快照文件失败: %w", err)
	}

	if snapshot.ContractAddress == "" || snapshot.Outcomes == nil {
		return nil, fmt.Errorf("快照文件 %s 缺少必要字段", path)
	}

	return &snapshot, nil
}
