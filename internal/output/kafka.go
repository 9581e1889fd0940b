package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"inspector/pkg/models"
)

// KafkaOutput Kafka输出器
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string // 数据类型到topic的映射
	producer sarama.SyncProducer
}

var _ Output = (*KafkaOutput)(nil)

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaOutput, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v", brokers)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")

	return &KafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}, nil
}

// sendToKafka 发送数据到Kafka
func (k *KafkaOutput) sendToKafka(topic, key string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到Kafka失败: %w", err)
	}

	k.logger.Debugf("成功发送数据到Kafka topic '%s' (partition: %d, offset: %d)",
		topic, partition, offset)

	return nil
}

// topicFor 查询数据类型对应的topic
func (k *KafkaOutput) topicFor(kind, fallback string) string {
	if topic, exists := k.topics[kind]; exists {
		return topic
	}
	return fallback
}

// WriteResolution 写入代理解析结果
//
// 消息按合约地址分区，同一合约的结果保持有序。
func (k *KafkaOutput) WriteResolution(resolution *models.ProxyResolution) error {
	if resolution == nil {
		return nil
	}
	return k.sendToKafka(k.topicFor("resolutions", "contract_resolutions"), resolution.Address, resolution)
}

// WriteSnapshot 写入状态快照
func (k *KafkaOutput) WriteSnapshot(snapshot *models.StateSnapshot) error {
	if snapshot == nil {
		return nil
	}
	return k.sendToKafka(k.topicFor("snapshots", "contract_snapshots"), snapshot.ContractAddress, snapshot)
}

// WriteDiff 写入快照差异
func (k *KafkaOutput) WriteDiff(diff *models.SnapshotDiff) error {
	if diff == nil {
		return nil
	}
	return k.sendToKafka(k.topicFor("diffs", "contract_diffs"), diff.AddressAfter, diff)
}

// WriteReport 写入检查报告
func (k *KafkaOutput) WriteReport(report *models.InspectionReport) error {
	if report == nil {
		return nil
	}
	return k.sendToKafka(k.topicFor("reports", "contract_reports"), report.Address, report)
}

// WriteComparison 写入对比报告
func (k *KafkaOutput) WriteComparison(comparison *models.ComparisonReport) error {
	if comparison == nil {
		return nil
	}
	return k.sendToKafka(k.topicFor("reports", "contract_reports"), comparison.Address, comparison)
}

// WriteBatch 写入批量检查汇总，按批次内首个地址分区
func (k *KafkaOutput) WriteBatch(batch *models.BatchAnalysis) error {
	if batch == nil || len(batch.Entries) == 0 {
		return nil
	}
	return k.sendToKafka(k.topicFor("reports", "contract_reports"), batch.Entries[0].Address, batch)
}

// Close 关闭Kafka生产者
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
