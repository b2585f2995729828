// Package kafka consumes raw chain-data updates (account writes and
// instruction payloads) from a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/arbengine/internal/registry"
)

// Message headers carried by every chain-data record. The record key is the
// base58 program id and the value is the raw account or instruction data.
const (
	HeaderKind    = "kind"
	HeaderAddress = "address"
	HeaderSlot    = "slot"
)

// ReaderConfig holds the consumer settings.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// AccountReader reads chain-data records and converts them to
// registry.RawUpdate values.
type AccountReader struct {
	reader *kafka.Reader
}

// NewAccountReader creates a consumer-group reader for cfg.Topic.
func NewAccountReader(cfg ReaderConfig) *AccountReader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	return &AccountReader{reader: reader}
}

// Consume reads records until ctx is cancelled or the reader fails. Records
// that do not convert are passed to onInvalid (when non-nil) and skipped; a
// handler error stops consumption and is returned.
func (r *AccountReader) Consume(ctx context.Context, handler func(context.Context, registry.RawUpdate) error, onInvalid func(error)) error {
	for {
		msg, err := r.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}

		u, err := ToRawUpdate(msg)
		if err != nil {
			if onInvalid != nil {
				onInvalid(err)
			}
			continue
		}
		if err := handler(ctx, u); err != nil {
			return err
		}
	}
}

// Close closes the underlying Kafka reader.
func (r *AccountReader) Close() error {
	return r.reader.Close()
}

// ToRawUpdate converts one record. The address header is optional for
// instructions; the slot header defaults to the record offset.
func ToRawUpdate(msg kafka.Message) (registry.RawUpdate, error) {
	program, err := registry.ParseProgramID(string(msg.Key))
	if err != nil {
		return registry.RawUpdate{}, fmt.Errorf("kafka: offset %d: %w", msg.Offset, err)
	}
	u := registry.RawUpdate{
		Program: program,
		Slot:    uint64(msg.Offset),
		Data:    msg.Value,
	}

	var haveKind bool
	for _, h := range msg.Headers {
		switch h.Key {
		case HeaderKind:
			if u.Kind, err = registry.ParseKind(string(h.Value)); err != nil {
				return registry.RawUpdate{}, fmt.Errorf("kafka: offset %d: %w", msg.Offset, err)
			}
			haveKind = true
		case HeaderAddress:
			if u.Address, err = registry.ParsePubkey(string(h.Value)); err != nil {
				return registry.RawUpdate{}, fmt.Errorf("kafka: offset %d: address: %w", msg.Offset, err)
			}
		case HeaderSlot:
			if u.Slot, err = strconv.ParseUint(string(h.Value), 10, 64); err != nil {
				return registry.RawUpdate{}, fmt.Errorf("kafka: offset %d: slot: %w", msg.Offset, err)
			}
		}
	}
	if !haveKind {
		return registry.RawUpdate{}, fmt.Errorf("kafka: offset %d: missing %q header", msg.Offset, HeaderKind)
	}
	return u, nil
}
