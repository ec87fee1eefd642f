package mq

import (
	"log"

	"github.com/backmoon7/webhookengine/internal/config"

	"github.com/IBM/sarama"
)

// InitKafka constructs a synchronous producer for the outbox sender. The
// caller owns the returned producer's lifetime (Close on shutdown); no
// package-level singleton, per §5's "no in-process singletons carry
// per-request data."
func InitKafka(cfg *config.KafkaConfig) sarama.SyncProducer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("create kafka producer: %v", err)
	}

	log.Println("kafka producer created")
	return producer
}
