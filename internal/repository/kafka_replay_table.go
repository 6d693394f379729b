package repository

import (
	"context"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	pkgkafka "SPXEngine/pkg/kafka"
)

// batchPublisher is satisfied by *kafka.Producer.
type batchPublisher interface {
	PublishBatch(ctx context.Context, messages []pkgkafka.Message) error
	Close() error
}

// KafkaReplayTable publishes each replay row as a JSON record keyed by
// symbol:session_date so one session stays on one partition.
type KafkaReplayTable struct {
	producer batchPublisher
}

func NewKafkaReplayTable(producer batchPublisher) *KafkaReplayTable {
	return &KafkaReplayTable{producer: producer}
}

// ReplayMessageKey is the partition key for r.
func ReplayMessageKey(r models.ReplaySnapshotRow) []byte {
	return []byte(r.Symbol + ":" + r.SessionDate)
}

func (k *KafkaReplayTable) Insert(ctx context.Context, rows []models.ReplaySnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(rows))
	for i, r := range rows {
		msgs[i] = pkgkafka.Message{Key: ReplayMessageKey(r), Value: r}
	}
	if err := k.producer.PublishBatch(ctx, msgs); err != nil {
		return &models.InsertError{Code: "kafka", Message: "replay publish failed", Err: err}
	}
	return nil
}

func (k *KafkaReplayTable) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}

var _ domrepo.ReplaySnapshotTable = (*KafkaReplayTable)(nil)
