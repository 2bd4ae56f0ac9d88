package broker

import (
	"context"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/cockroachdb/errors"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka-backed broker.
type KafkaConfig struct {
	Brokers      []string
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// partitionReader reads one partition from a fixed start offset.
type partitionReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// partitionSource hides partition discovery and offset lookup so the
// subscription logic does not depend on a live cluster.
type partitionSource interface {
	Partitions(ctx context.Context, topic string) ([]int, error)
	LastOffset(ctx context.Context, topic string, partition int) (int64, error)
	OpenReader(topic string, partition int, offset int64) (partitionReader, error)
}

// KafkaBroker publishes through one shared writer. Each subscription reads
// every partition of its topic without a consumer group, starting at the
// end offsets seen when Subscribe returns.
type KafkaBroker struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	source partitionSource
	logger cmtlog.Logger
}

// NewKafkaBroker creates a broker. No connection is made until first use.
func NewKafkaBroker(cfg KafkaConfig, logger cmtlog.Logger) *KafkaBroker {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &KafkaBroker{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           cfg.WriteTimeout,
		},
		source: &kafkaSource{brokers: cfg.Brokers, dialer: &kafka.Dialer{Timeout: cfg.DialTimeout}},
		logger: logger,
	}
}

// Publish writes msg synchronously.
func (b *KafkaBroker) Publish(ctx context.Context, msg Message) error {
	km := kafka.Message{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
	}
	for k, v := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := b.writer.WriteMessages(ctx, km); err != nil {
		return apperr.Network("BROKER_PUBLISH_FAILED", "Failed to publish message", err).
			WithDetail("topic=%s: %v", msg.Topic, err)
	}
	b.logger.Debug("Published message", "topic", msg.Topic, "key", string(msg.Key), "bytes", len(msg.Value))
	return nil
}

// Subscribe pins the current end offset of every partition of topic and
// starts one reader per partition from there.
func (b *KafkaBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	return subscribePartitions(ctx, b.source, topic, b.logger)
}

// Close flushes and closes the writer.
func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

func subscribePartitions(ctx context.Context, src partitionSource, topic string, logger cmtlog.Logger) (*kafkaSubscription, error) {
	partitions, err := src.Partitions(ctx, topic)
	if err != nil {
		return nil, apperr.Network("BROKER_METADATA_FAILED", "Failed to read topic partitions", err).
			WithDetail("topic=%s: %v", topic, err)
	}
	if len(partitions) == 0 {
		return nil, apperr.Network("BROKER_METADATA_FAILED", "Topic has no partitions", nil).
			WithDetail("topic=%s", topic)
	}

	offsets := make(map[int]int64, len(partitions))
	for _, p := range partitions {
		off, err := src.LastOffset(ctx, topic, p)
		if err != nil {
			return nil, apperr.Network("BROKER_OFFSET_FAILED", "Failed to read partition end offset", err).
				WithDetail("topic=%s partition=%d: %v", topic, p, err)
		}
		offsets[p] = off
	}

	readers := make([]partitionReader, 0, len(partitions))
	for _, p := range partitions {
		r, err := src.OpenReader(topic, p, offsets[p])
		if err != nil {
			for _, opened := range readers {
				_ = opened.Close()
			}
			return nil, apperr.Network("BROKER_SUBSCRIBE_FAILED", "Failed to open partition reader", err).
				WithDetail("topic=%s partition=%d: %v", topic, p, err)
		}
		readers = append(readers, r)
	}
	logger.Debug("Subscribed", "topic", topic, "partitions", len(partitions))

	runCtx, cancel := context.WithCancel(context.Background())
	s := &kafkaSubscription{
		topic:   topic,
		readers: readers,
		msgs:    make(chan kafka.Message),
		errs:    make(chan error, len(readers)),
		cancel:  cancel,
	}
	for _, r := range readers {
		s.wg.Add(1)
		go s.pump(runCtx, r)
	}
	return s, nil
}

type kafkaSubscription struct {
	topic   string
	readers []partitionReader
	msgs    chan kafka.Message
	errs    chan error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func (s *kafkaSubscription) pump(ctx context.Context, r partitionReader) {
	defer s.wg.Done()
	for {
		km, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.errs <- err
			}
			return
		}
		select {
		case s.msgs <- km:
		case <-ctx.Done():
			return
		}
	}
}

func (s *kafkaSubscription) Next(ctx context.Context) (Message, error) {
	select {
	case km := <-s.msgs:
		msg := Message{Topic: km.Topic, Key: km.Key, Value: km.Value}
		if len(km.Headers) > 0 {
			msg.Headers = make(map[string]string, len(km.Headers))
			for _, h := range km.Headers {
				msg.Headers[h.Key] = string(h.Value)
			}
		}
		return msg, nil
	case err := <-s.errs:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Message{}, err
		}
		return Message{}, apperr.Network("BROKER_READ_FAILED", "Failed to read message", err).
			WithDetail("topic=%s: %v", s.topic, err)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *kafkaSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		for _, r := range s.readers {
			if cerr := r.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		s.wg.Wait()
	})
	return err
}

// kafkaSource talks to the cluster with plain connections, one per lookup.
type kafkaSource struct {
	brokers []string
	dialer  *kafka.Dialer
}

func (k *kafkaSource) dialAny(ctx context.Context) (*kafka.Conn, error) {
	var lastErr error
	for _, addr := range k.brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return nil, lastErr
}

func (k *kafkaSource) Partitions(ctx context.Context, topic string) ([]int, error) {
	conn, err := k.dialAny(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	parts, err := conn.ReadPartitions(topic)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (k *kafkaSource) LastOffset(ctx context.Context, topic string, partition int) (int64, error) {
	var lastErr error
	for _, addr := range k.brokers {
		conn, err := k.dialer.DialLeader(ctx, "tcp", addr, topic, partition)
		if err != nil {
			lastErr = err
			continue
		}
		off, err := conn.ReadLastOffset()
		_ = conn.Close()
		return off, err
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return 0, lastErr
}

func (k *kafkaSource) OpenReader(topic string, partition int, offset int64) (partitionReader, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   k.brokers,
		Topic:     topic,
		Partition: partition,
		Dialer:    k.dialer,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   500 * time.Millisecond,
	})
	if err := reader.SetOffset(offset); err != nil {
		_ = reader.Close()
		return nil, err
	}
	return reader, nil
}
