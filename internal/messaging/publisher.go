package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"

	"dcawallet-api/internal/models"
)

// TransactionEvent is published whenever a transaction enters the ledger,
// so downstream consumers (alerting, analytics) see new entries without
// polling Mongo.
type TransactionEvent struct {
	EventID         string    `json:"event_id"`
	WalletID        string    `json:"wallet_id"`
	TransactionID   string    `json:"transaction_id"`
	Type            string    `json:"transaction_type"`
	Direction       string    `json:"direction"`
	AmountBTC       string    `json:"amount_btc"`
	PricePerBTCUSD  string    `json:"price_per_btc_usd"`
	TransactionDate time.Time `json:"transaction_date"`
	PublishedAt     time.Time `json:"published_at"`
}

// TransactionPublisher emits transaction events to RabbitMQ. A nil publisher
// is valid and drops events, so messaging stays optional.
type TransactionPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logrus.Entry
}

// NewTransactionPublisher connects and declares the durable events exchange.
func NewTransactionPublisher(rabbitURL, exchange string) (*TransactionPublisher, error) {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &TransactionPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		log:      logrus.WithField("component", "messaging"),
	}, nil
}

// PublishTransaction emits one event. Failures are logged, never fatal:
// the ledger write already happened and must not be rolled back for a
// broker hiccup.
func (p *TransactionPublisher) PublishTransaction(tx *models.Transaction) {
	if p == nil {
		return
	}

	event := TransactionEvent{
		EventID:         uuid.New().String(),
		WalletID:        tx.WalletID,
		TransactionID:   tx.ID.Hex(),
		Type:            string(tx.Type),
		Direction:       string(tx.Direction()),
		AmountBTC:       tx.AmountBTC.String(),
		PricePerBTCUSD:  tx.PricePerBTCUSD.String(),
		TransactionDate: tx.TransactionDate,
		PublishedAt:     time.Now(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("Failed to marshal transaction event")
		return
	}

	routingKey := "transaction." + string(tx.Direction())
	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		p.log.WithError(err).WithField("wallet_id", tx.WalletID).Error("Failed to publish transaction event")
	}
}

// Close tears down the channel and connection.
func (p *TransactionPublisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
