// Package event defines the messages delivered to the tick loop inbox.
package event

import (
	"sync/atomic"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeNewBlock Type = "NEW_BLOCK"
	TypeTimer    Type = "TIMER"
)

// Event is anything the tick loop can consume.
type Event interface {
	GetSeq() uint64
	GetType() Type
	GetTs() time.Time
}

// BaseEvent carries the fields shared by every event.
type BaseEvent struct {
	Seq uint64    `json:"seq"`
	Ts  time.Time `json:"ts"`
}

func (b BaseEvent) GetSeq() uint64   { return b.Seq }
func (b BaseEvent) GetTs() time.Time { return b.Ts }

// BlockEvent announces a new block head on the ledger.
type BlockEvent struct {
	BaseEvent
	Number uint64 `json:"number"`
	Hash   string `json:"hash"`
}

func (e *BlockEvent) GetType() Type { return TypeNewBlock }

// TimerEvent is an interval tick with no ledger trigger.
type TimerEvent struct {
	BaseEvent
}

func (e *TimerEvent) GetType() Type { return TypeTimer }

// Sequence hands out increasing event sequence numbers to producers.
type Sequence struct {
	n atomic.Uint64
}

// Next returns the next sequence number, starting at 1.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}
