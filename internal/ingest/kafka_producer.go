package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/trip-tracking/internal/models"
)

// LocationRecord is the audit-trail record written for every accepted driver
// position report. Consumers use it to rebuild the advisory location cache
// and for offline analysis; it is not on the hot delivery path.
type LocationRecord struct {
	TripID    string          `json:"tripId"`
	DriverID  string          `json:"driverId"`
	Location  models.Location `json:"location"`
	Timestamp int64           `json:"timestamp"`
	ServerID  string          `json:"serverId"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

// PublishLocation writes one audit record, keyed by driver id so a driver's
// reports stay ordered within a partition.
func (k *KafkaProducer) PublishLocation(rec LocationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(rec)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.DriverID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
