package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fundwatch/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// OpportunityMessage is the wire format consumed by the CMS importer. The
// deadline is omitted entirely for rolling opportunities.
type OpportunityMessage struct {
	Link            string     `json:"link"`
	Title           string     `json:"title"`
	SourceName      string     `json:"source_name"`
	Funder          string     `json:"funder,omitempty"`
	FundingAmount   string     `json:"funding_amount,omitempty"`
	Summary         string     `json:"summary"`
	FocusAreas      []string   `json:"focus_areas"`
	Regions         []string   `json:"regions"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	RawDeadlineText string     `json:"raw_deadline_text,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

func (r *RabbitMQ) Publish(ctx context.Context, opp *domain.ProcessedOpportunity) error {
	msg := OpportunityMessage{
		Link:            opp.Link,
		Title:           opp.Title,
		SourceName:      opp.SourceName,
		Funder:          opp.Funder,
		FundingAmount:   opp.FundingAmount,
		Summary:         opp.Summary,
		FocusAreas:      opp.FocusAreas,
		Regions:         opp.Regions,
		Deadline:        opp.Deadline,
		RawDeadlineText: opp.RawDeadlineText,
		Timestamp:       time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published opportunity", "link", opp.Link)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
