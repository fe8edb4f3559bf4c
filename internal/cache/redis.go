// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/columns/internal/protocol"
	"github.com/redis/go-redis/v9"
)

const (
	// RoomsKey holds the latest room directory snapshot.
	RoomsKey = "columns:rooms"
	// ResultsKey is a list of finished match records, newest last.
	ResultsKey = "columns:results"

	roomsTTL = 10 * time.Minute
)

// Event is what gets published on the events channel.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"ts"`
}

// MatchRecord is appended to ResultsKey when a match ends.
type MatchRecord struct {
	RoomID      int64                 `json:"room_id"`
	Winner      string                `json:"winner"`
	DurationMS  int64                 `json:"duration_ms"`
	FinalScores []protocol.FinalScore `json:"final_scores"`
	Timestamp   int64                 `json:"timestamp"`
}

// Publisher mirrors room state to Redis for other processes (dashboards,
// a lobby front page) without them talking to the game server.
type Publisher struct {
	rdb     *redis.Client
	channel string
	now     func() time.Time
}

// Connect dials Redis and checks it answers.
func Connect(ctx context.Context, addr string, db int, channel string) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return NewPublisher(rdb, channel), nil
}

// NewPublisher wraps an existing client.
func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, now: time.Now}
}

// PublishRooms stores the room directory under RoomsKey.
func (p *Publisher) PublishRooms(ctx context.Context, rooms []protocol.RoomSummary) error {
	if rooms == nil {
		rooms = []protocol.RoomSummary{}
	}
	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to marshal room directory: %w", err)
	}
	if err := p.rdb.Set(ctx, RoomsKey, data, roomsTTL).Err(); err != nil {
		return fmt.Errorf("failed to SET %s: %w", RoomsKey, err)
	}
	return nil
}

// PublishEvent sends a lifecycle event on the configured channel.
func (p *Publisher) PublishEvent(ctx context.Context, eventType string, data interface{}) error {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: p.now().Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", eventType, err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to PUBLISH to '%s': %w", p.channel, err)
	}
	return nil
}

// RecordResult appends a finished match to ResultsKey.
func (p *Publisher) RecordResult(ctx context.Context, rec MatchRecord) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = p.now().Unix()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, ResultsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", ResultsKey, err)
	}
	return nil
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
