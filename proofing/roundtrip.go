// Package proofing hands finished footprint documents to the external
// proofing authority over the message broker and waits for its receipt.
package proofing

import (
	"context"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/broker"
	"github.com/ahmadzakiakmal/carbon-ledger/canonical"
	"github.com/ahmadzakiakmal/carbon-ledger/metrics"
	"github.com/cockroachdb/errors"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// State is the lifecycle state of one round-trip.
type State string

const (
	StateBuilt            State = "BUILT"
	StatePublished        State = "PUBLISHED"
	StateAwaitingResponse State = "AWAITING_RESPONSE"
	StateReceived         State = "RECEIVED"
	StateTimedOut         State = "TIMED_OUT"
	StateFailed           State = "FAILED"
)

// CorrelationHeader carries the correlation key next to the message key.
const CorrelationHeader = "correlation-id"

// Config configures the round-trip.
type Config struct {
	TopicOut string
	TopicIn  string
	Timeout  time.Duration
}

// DefaultConfig returns the standard topics and a thirty second wait.
func DefaultConfig() Config {
	return Config{TopicOut: "shipments", TopicIn: "pcf-results", Timeout: 30 * time.Second}
}

// StateHook observes state transitions.
type StateHook func(correlationID string, s State)

// Service runs proofing round-trips. It is safe for concurrent use; each
// Send owns its own subscription.
type Service struct {
	broker  broker.Broker
	cfg     Config
	logger  cmtlog.Logger
	metrics *metrics.Metrics
	hook    StateHook
}

// NewService creates a proofing service.
func NewService(b broker.Broker, cfg Config, logger cmtlog.Logger, m *metrics.Metrics) *Service {
	def := DefaultConfig()
	if cfg.TopicOut == "" {
		cfg.TopicOut = def.TopicOut
	}
	if cfg.TopicIn == "" {
		cfg.TopicIn = def.TopicIn
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Service{broker: b, cfg: cfg, logger: logger, metrics: m}
}

// OnStateChange installs a transition hook. Not safe to call concurrently with Send.
func (s *Service) OnStateChange(hook StateHook) {
	s.hook = hook
}

func (s *Service) transition(corr string, st State) {
	s.logger.Debug("Proofing state change", "correlation_id", corr, "state", st)
	if s.hook != nil {
		s.hook(corr, st)
	}
}

// Send publishes doc and blocks until the matching receipt arrives, the
// configured timeout elapses or ctx ends. The subscription pins its start
// position before publishing, so a reply produced right after the publish is
// still delivered and receipts from earlier attempts are not. It is closed on
// every exit path.
func (s *Service) Send(ctx context.Context, doc *Document) (*Receipt, error) {
	start := time.Now()
	var corr string
	if doc != nil {
		corr = doc.ProductFootprint.ID
	}
	s.transition(corr, StateBuilt)
	if err := doc.Validate(); err != nil {
		s.finish(corr, StateFailed, start)
		return nil, err
	}

	payload, err := canonical.Marshal(doc)
	if err != nil {
		return nil, apperr.ContractViolation("PROOFING_DOCUMENT_NOT_SERIALIZABLE", "Proofing document could not be serialized", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	sub, err := s.broker.Subscribe(waitCtx, s.cfg.TopicIn)
	if err != nil {
		s.finish(corr, StateFailed, start)
		return nil, apperr.Network("BROKER_SUBSCRIBE_FAILED", "Failed to subscribe to proofing results", err)
	}
	defer sub.Close()

	err = s.broker.Publish(waitCtx, broker.Message{
		Topic:   s.cfg.TopicOut,
		Key:     []byte(corr),
		Value:   payload,
		Headers: map[string]string{CorrelationHeader: corr},
	})
	if err != nil {
		s.finish(corr, StateFailed, start)
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Network("BROKER_PUBLISH_FAILED", "Failed to publish proofing document", err)
		}
		return nil, err
	}
	s.transition(corr, StatePublished)
	s.logger.Info("Sent proofing document", "topic", s.cfg.TopicOut, "correlation_id", corr, "bytes", len(payload))

	s.transition(corr, StateAwaitingResponse)
	for {
		msg, err := sub.Next(waitCtx)
		if err != nil {
			return nil, s.waitError(ctx, corr, start, err)
		}

		receipt, accepted, err := s.match(corr, msg)
		if err != nil {
			s.finish(corr, StateFailed, start)
			return nil, err
		}
		if !accepted {
			continue
		}

		s.finish(corr, StateReceived, start)
		s.logger.Info("Received proof receipt", "correlation_id", corr, "proof_reference", receipt.ProofReference)
		return receipt, nil
	}
}

// match decides whether msg answers corr. A keyed message is matched on its
// key; an unkeyed one on the productFootprintId in its body.
func (s *Service) match(corr string, msg broker.Message) (*Receipt, bool, error) {
	key := string(msg.Key)
	if key == "" {
		key = msg.Headers[CorrelationHeader]
	}
	if key != "" && key != corr {
		s.logger.Debug("Skipping receipt for other document", "correlation_id", corr, "key", key)
		return nil, false, nil
	}

	receipt, err := ParseReceipt(msg.Value)
	if err != nil {
		if key == corr {
			return nil, false, err
		}
		s.logger.Error("Skipping unparseable unkeyed receipt", "correlation_id", corr, "err", err)
		return nil, false, nil
	}

	if key == "" && receipt.ProductFootprintID != corr {
		s.logger.Debug("Skipping receipt for other document", "correlation_id", corr, "product_footprint_id", receipt.ProductFootprintID)
		return nil, false, nil
	}
	if receipt.ProductFootprintID == "" {
		receipt.ProductFootprintID = corr
	}
	return receipt, true, nil
}

func (s *Service) waitError(parent context.Context, corr string, start time.Time, err error) error {
	switch {
	case parent.Err() != nil:
		s.finish(corr, StateFailed, start)
		return errors.Wrap(parent.Err(), "proofing round-trip aborted")
	case errors.Is(err, context.DeadlineExceeded):
		s.finish(corr, StateTimedOut, start)
		return apperr.Timeout("PROOFING_TIMEOUT", "No proof receipt before the deadline", err).
			WithDetail("correlation_id=%s timeout=%s", corr, s.cfg.Timeout)
	default:
		s.finish(corr, StateFailed, start)
		if apperr.KindOf(err) == apperr.KindInternal {
			return apperr.Network("BROKER_READ_FAILED", "Failed to read proofing results", err)
		}
		return err
	}
}

func (s *Service) finish(corr string, st State, start time.Time) {
	s.transition(corr, st)
	s.metrics.ObserveRoundTrip(string(st), time.Since(start))
}
