// Package events publishes ping domain events to RabbitMQ.
//
// Publishing is best effort: events are queued in memory and delivered by a
// background goroutine, so a slow or unreachable broker never holds up an
// API request. Events that cannot be delivered are logged and dropped.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/ieraasyl/PingService/pkg/utils"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Event types.
const (
	TypePingCreated   = "ping.created"
	TypePingResponded = "ping.responded"
)

const (
	defaultBuffer  = 256
	dialTimeout    = 5 * time.Second
	publishTimeout = 5 * time.Second
	redialInterval = 5 * time.Second
)

var (
	// ErrBufferFull is returned when too many events are waiting for the
	// broker. The event is dropped.
	ErrBufferFull = errors.New("event buffer full")

	// ErrPublisherClosed is returned by PublishPing after Close.
	ErrPublisherClosed = errors.New("publisher closed")

	errNotConnected = errors.New("not connected to the broker")
)

// PingEvent is the message body published for a new ping.
type PingEvent struct {
	Type         string    `json:"type"`
	PingID       int64     `json:"ping_id"`
	UserID       uuid.UUID `json:"user_id"`
	ParentPingID *int64    `json:"parent_ping_id,omitempty"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewPingEvent builds the event for p. A ping with a parent is reported as
// a response.
func NewPingEvent(p *models.Ping) PingEvent {
	eventType := TypePingCreated
	if p.ParentPingID != nil {
		eventType = TypePingResponded
	}
	return PingEvent{
		Type:         eventType,
		PingID:       p.ID,
		UserID:       p.UserID,
		ParentPingID: p.ParentPingID,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Timestamp:    p.Timestamp,
	}
}

// Publisher sends ping events somewhere.
type Publisher interface {
	PublishPing(ctx context.Context, event PingEvent) error
	Close() error
}

// NewPublisher returns an AMQP publisher when cfg.URL is set and a no-op
// publisher otherwise.
func NewPublisher(ctx context.Context, cfg *config.AMQPConfig) (Publisher, error) {
	if cfg.URL == "" {
		log.Info().Msg("AMQP_URL not set, ping events disabled")
		return NoopPublisher{}, nil
	}
	return NewAMQPPublisher(ctx, cfg)
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishPing(context.Context, PingEvent) error { return nil }
func (NoopPublisher) Close() error                                 { return nil }

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// dialFunc opens a channel on which queue is declared. The closer releases
// the underlying connection.
type dialFunc func(url, queue string) (channel, io.Closer, error)

// AMQPPublisher publishes persistent JSON messages to a durable queue on the
// default exchange.
//
// PublishPing only enqueues. A single goroutine owns the connection and
// delivers events in order; when the broker has gone away it redials at most
// once per redial interval and drops events in between.
type AMQPPublisher struct {
	url   string
	queue string
	dial  dialFunc

	redialEvery time.Duration
	events      chan PingEvent
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once

	// Owned by run once it has started.
	conn     io.Closer
	ch       channel
	lastDial time.Time
}

type publisherOptions struct {
	dial        dialFunc
	buffer      int
	redialEvery time.Duration
}

// NewAMQPPublisher dials the broker with retries, declares the queue and
// starts the delivery goroutine.
//
// Example:
//
//	pub, err := events.NewAMQPPublisher(ctx, &cfg.AMQP)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("RabbitMQ connection failed")
//	}
//	defer pub.Close()
func NewAMQPPublisher(ctx context.Context, cfg *config.AMQPConfig) (*AMQPPublisher, error) {
	return newAMQPPublisher(ctx, cfg, publisherOptions{
		dial:        dialBroker,
		buffer:      cfg.Buffer,
		redialEvery: redialInterval,
	})
}

func newAMQPPublisher(ctx context.Context, cfg *config.AMQPConfig, opts publisherOptions) (*AMQPPublisher, error) {
	if opts.buffer <= 0 {
		opts.buffer = defaultBuffer
	}

	p := &AMQPPublisher{
		url:         cfg.URL,
		queue:       cfg.Queue,
		dial:        opts.dial,
		redialEvery: opts.redialEvery,
		events:      make(chan PingEvent, opts.buffer),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	err := utils.Retry(ctx, utils.BrokerRetryConfig(), func() error {
		if err := p.connect(); err != nil {
			log.Warn().Err(err).Msg("Failed to connect to RabbitMQ, retrying...")
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	go p.run()

	log.Info().Str("queue", p.queue).Int("buffer", opts.buffer).Msg("Successfully connected to RabbitMQ")
	return p, nil
}

func dialBroker(url, queue string) (channel, io.Closer, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial:      amqp.DefaultDial(dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}

	return ch, conn, nil
}

// connect is only called before run starts or from run itself.
func (p *AMQPPublisher) connect() error {
	p.lastDial = time.Now()
	ch, conn, err := p.dial(p.url, p.queue)
	if err != nil {
		return err
	}
	p.ch = ch
	p.conn = conn
	return nil
}

// PublishPing queues the event for delivery and returns immediately. It
// fails with ErrBufferFull when the queue is full and with
// ErrPublisherClosed after Close.
func (p *AMQPPublisher) PublishPing(_ context.Context, event PingEvent) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}

	select {
	case p.events <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops the delivery goroutine, sending whatever is still queued if
// the connection is up, and closes the connection. It is safe to call more
// than once.
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped
	return nil
}

func (p *AMQPPublisher) run() {
	defer close(p.stopped)
	defer p.disconnect()

	for {
		select {
		case <-p.done:
			p.drain()
			return
		case event := <-p.events:
			p.deliver(event, true)
		}
	}
}

// drain delivers queued events without redialling.
func (p *AMQPPublisher) drain() {
	for {
		select {
		case event := <-p.events:
			p.deliver(event, false)
		default:
			return
		}
	}
}

func (p *AMQPPublisher) deliver(event PingEvent, redial bool) {
	if err := p.ensureChannel(redial); err != nil {
		log.Warn().
			Err(err).
			Str("type", event.Type).
			Int64("ping_id", event.PingID).
			Msg("Dropped ping event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.publish(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("type", event.Type).
			Int64("ping_id", event.PingID).
			Msg("Failed to publish ping event")
		p.disconnect()
		return
	}

	log.Debug().
		Str("type", event.Type).
		Int64("ping_id", event.PingID).
		Msg("Published ping event")
}

func (p *AMQPPublisher) ensureChannel(redial bool) error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.disconnect()

	if !redial {
		return errNotConnected
	}
	if wait := p.redialEvery - time.Since(p.lastDial); wait > 0 {
		return fmt.Errorf("%w: next attempt in %s", errNotConnected, wait.Round(time.Millisecond))
	}

	if err := p.connect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	log.Info().Str("queue", p.queue).Msg("Reconnected to RabbitMQ")
	return nil
}

// publish sends the event as a persistent message. The routing key is the
// queue name; the event type travels in the message Type header.
func (p *AMQPPublisher) publish(ctx context.Context, event PingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         event.Type,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) disconnect() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
