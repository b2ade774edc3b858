package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Booking lifecycle event types
const (
	TypeBookingReserved  = "booking.reserved"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingExpired   = "booking.expired"
)

// BookingEvent is published after a booking change commits. Notification and
// ticket rendering consume it.
type BookingEvent struct {
	Type             string               `json:"type"`
	BookingID        string               `json:"booking_id"`
	BookingReference string               `json:"booking_reference"`
	BusID            string               `json:"bus_id"`
	TravelDate       string               `json:"travel_date"`
	SeatNumbers      []int                `json:"seat_numbers"`
	Status           models.BookingStatus `json:"status"`
	TotalAmount      int64                `json:"total_amount"`
	RefundAmount     int64                `json:"refund_amount,omitempty"`
	ActorRole        models.Role          `json:"actor_role,omitempty"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

// NewBookingEvent builds an event from the booking's current state
func NewBookingEvent(eventType string, booking *models.Booking, actor models.Role, at time.Time) BookingEvent {
	return BookingEvent{
		Type:             eventType,
		BookingID:        booking.ID,
		BookingReference: booking.BookingReference,
		BusID:            booking.BusID,
		TravelDate:       booking.TravelDate,
		SeatNumbers:      append([]int(nil), booking.SeatNumbers...),
		Status:           booking.Status,
		TotalAmount:      booking.TotalAmount,
		RefundAmount:     booking.RefundAmount,
		ActorRole:        actor,
		OccurredAt:       at,
	}
}

// Publisher delivers booking events
type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close()
}

// KafkaPublisher produces booking events to a Kafka topic, keyed by booking
// id so one booking's events stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher creates a producer for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("seat-reservation-engine"),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish produces the event and waits for the broker acknowledgement
func (p *KafkaPublisher) Publish(ctx context.Context, event BookingEvent) error {
	record, err := newRecord(p.topic, event)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the producer
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

func newRecord(topic string, event BookingEvent) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.BookingID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Timestamp: event.OccurredAt,
	}, nil
}

// LogPublisher writes events to the log; used when no brokers are configured
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event BookingEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event":       event.Type,
		"booking_id":  event.BookingID,
		"bus_id":      event.BusID,
		"travel_date": event.TravelDate,
		"seats":       event.SeatNumbers,
		"status":      event.Status,
	}).Info("Booking event")
	return nil
}

func (p *LogPublisher) Close() {}
