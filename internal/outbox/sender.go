package outbox

import (
	"context"
	"log"
	"time"

	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/backmoon7/webhookengine/pkg/idgen"

	"github.com/IBM/sarama"
)

// Sender drains pending outbox rows onto Kafka on a fixed interval,
// attempting each row up to maxRetry times in total before marking it Failed.
type Sender struct {
	repo      *Repository
	producer  sarama.SyncProducer
	interval  time.Duration
	batchSize int
	maxRetry  int
}

func NewSender(repo *Repository, producer sarama.SyncProducer, interval time.Duration, batchSize, maxRetry int) *Sender {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sender{repo: repo, producer: producer, interval: interval, batchSize: batchSize, maxRetry: maxRetry}
}

// Run drains the outbox until ctx is canceled.
func (s *Sender) Run(ctx context.Context) {
	log.Println("[outbox] sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[outbox] sender stopping")
			return
		case <-ticker.C:
			s.drainOnce(ctx)
		}
	}
}

func (s *Sender) drainOnce(ctx context.Context) {
	messages, err := s.repo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[outbox] fetch pending failed: %v", err)
		return
	}
	for _, msg := range messages {
		s.send(ctx, msg)
	}
}

func (s *Sender) send(ctx context.Context, msg *model.OutboxMessage) {
	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: msg.Topic,
		Key:   sarama.StringEncoder(msg.MessageKey),
		Value: sarama.StringEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("x-delivery-attempt"), Value: []byte(idgen.GenerateTransactionNo())},
		},
	})
	if err == nil {
		if updateErr := s.repo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Printf("[outbox] mark sent failed: id=%d err=%v", msg.ID, updateErr)
		}
		return
	}

	log.Printf("[outbox] send failed: id=%d err=%v", msg.ID, err)
	if incErr := s.repo.IncrementRetryCount(ctx, msg.ID); incErr != nil {
		log.Printf("[outbox] increment retry failed: id=%d err=%v", msg.ID, incErr)
	}
	if msg.RetryCount+1 >= s.maxRetry {
		if failErr := s.repo.MarkAsFailed(ctx, msg.ID); failErr != nil {
			log.Printf("[outbox] mark failed failed: id=%d err=%v", msg.ID, failErr)
		}
	}
}
