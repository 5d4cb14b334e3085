// Package bus implements the Consumer Loop (spec.md §4.7): one worker task
// per assigned (topic, partition), manual offset commits, and rebalance
// handling via kafka-go's low-level ConsumerGroup/Generation API — the
// high-level kafka.Reader the teacher used multiplexes every assigned
// partition through a single goroutine and cannot give each partition its
// own task with its own in-flight state, which spec.md §4.7/§5 requires.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/logging"
)

// Handler is whatever the Consumer Loop hands each message to; in
// production this is Dispatcher.Dispatch.
type Handler func(ctx context.Context, raw []byte, coords event.BusCoordinates) (committed bool)

// CursorStore is the subset of storage.Store a partition worker needs to
// resolve its own starting offset under CURSOR_MODE=store (spec.md §9):
// the co-located `partition_cursors` row, not the broker's own group
// commit, is authoritative for where to resume.
type CursorStore interface {
	LoadCursor(ctx context.Context, topic string, partition int, groupID string) (int64, bool, error)
}

// Config mirrors spec.md §4.7/§6's recognized bus configuration keys.
type Config struct {
	BootstrapServers []string
	ConsumerGroupID  string
	Topics           []string
	AutoOffsetReset  string // "earliest" | "latest"
	MaxPollInterval  time.Duration
	FetchMaxBytes    int
	MaxPollRecords   int
	// CursorMode selects which of spec.md §9's two cursor-commit modes is
	// authoritative when a partition worker starts: "store" makes
	// partition_cursors (CursorStore) win over the broker's own committed
	// offset; "bus" (or empty) leaves the broker's commit as the only
	// source of truth.
	CursorMode string
}

// Consumer runs the group-coordinated, per-partition consumer loop.
type Consumer struct {
	cfg     Config
	group   *kafka.ConsumerGroup
	handler Handler
	logger  *logging.Logger
	cursors CursorStore
}

// New builds a Consumer bound to cfg's topics and group id. cursors may be
// nil when cfg.CursorMode != "store" — it is never consulted in that mode.
// New does not start consuming until Run is called.
func New(cfg Config, cursors CursorStore, handler Handler, logger *logging.Logger) (*Consumer, error) {
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:          cfg.ConsumerGroupID,
		Brokers:     cfg.BootstrapServers,
		Topics:      cfg.Topics,
		StartOffset: startOffsetFor(cfg.AutoOffsetReset),
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Consumer{cfg: cfg, group: group, handler: handler, logger: logger, cursors: cursors}, nil
}

// startOffsetFor maps spec.md §4.7's auto_offset_reset setting to the
// kafka-go starting offset used the first time a group subscribes to a
// partition with no committed offset yet.
func startOffsetFor(autoOffsetReset string) int64 {
	if autoOffsetReset == "earliest" {
		return kafka.FirstOffset
	}
	return kafka.LastOffset
}

// Run drives generations until ctx is cancelled (spec.md §5 shutdown
// semantics): each new Generation spawns one goroutine per assigned
// partition (§4.7), and a Generation ends — cleanly committing whatever
// each partition task reached — whenever the group rebalances or Run's
// context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.group.Close()

	for {
		gen, err := c.group.Next(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrGroupClosed) || ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("consumer group rebalance failed, retrying", map[string]any{"error": err.Error()})
			continue
		}

		c.runGeneration(ctx, gen)
	}
}

// runGeneration spawns one partition worker per assignment and returns
// without waiting for them. The group's next Next call does not hand out a
// new generation until every worker in this one has exited — either because
// the generation ended (rebalance) or the outer context was cancelled.
func (c *Consumer) runGeneration(ctx context.Context, gen *kafka.Generation) {
	for topic, partitions := range gen.Assignments {
		for _, assignment := range partitions {
			topic, assignment := topic, assignment
			gen.Start(func(genCtx context.Context) {
				c.runPartition(ctx, genCtx, gen, topic, assignment.ID, assignment.Offset)
			})
		}
	}
}

// resolveStartOffset picks where a partition worker begins fetching.
// CURSOR_MODE=store makes partition_cursors authoritative over the
// generation's own assigned offset (spec.md §9): the co-located cursor from
// the last successful Persist wins. CURSOR_MODE=bus, a load error, or no
// cursor ever recorded all fall back to fromGeneration, i.e. the broker's
// own externalized group commit that the generation already resolved.
func (c *Consumer) resolveStartOffset(ctx context.Context, topic string, partition int, fromGeneration int64) int64 {
	if c.cfg.CursorMode != "store" || c.cursors == nil {
		return fromGeneration
	}
	offset, found, err := c.cursors.LoadCursor(ctx, topic, partition, c.cfg.ConsumerGroupID)
	if err != nil {
		c.logger.Warn("load cursor failed, falling back to group-assigned offset", map[string]any{
			"topic": topic, "partition": partition, "error": err.Error(),
		})
		return fromGeneration
	}
	if !found {
		return fromGeneration
	}
	return offset + 1
}

// runPartition is the per-(topic,partition) task (spec.md §4.7, §5): fetch,
// dispatch in offset order, and commit the highest-contiguous handled
// offset. It never advances past a message the Handler hasn't resolved to
// Committed or DeadLettered — both of which the Handler reports as
// "committed" since the Dispatcher already materialized the terminal
// outcome (spec.md §4.8).
func (c *Consumer) runPartition(ctx, genCtx context.Context, gen *kafka.Generation, topic string, partition int, offset int64) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:       c.cfg.BootstrapServers,
		Topic:         topic,
		Partition:     partition,
		MaxBytes:      c.cfg.FetchMaxBytes,
		QueueCapacity: c.cfg.MaxPollRecords,
	})
	defer reader.Close()

	startOffset := c.resolveStartOffset(genCtx, topic, partition, offset)
	if err := reader.SetOffset(startOffset); err != nil {
		c.logger.Error("set partition offset failed", map[string]any{"topic": topic, "partition": partition, "error": err.Error()})
		return
	}

	for {
		select {
		case <-genCtx.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(genCtx, c.cfg.MaxPollInterval)
		msg, err := reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Warn("fetch failed", map[string]any{"topic": topic, "partition": partition, "error": err.Error()})
			continue
		}

		coords := event.BusCoordinates{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Key: string(msg.Key)}
		committed := c.handler(genCtx, msg.Value, coords)
		if !committed {
			// The Handler could not even dead-letter the message (e.g. the
			// store is unreachable); rewind the reader so the next fetch
			// re-delivers it rather than skipping past it.
			if err := reader.SetOffset(msg.Offset); err != nil {
				c.logger.Error("rewind partition offset failed", map[string]any{"topic": topic, "partition": partition, "offset": msg.Offset, "error": err.Error()})
				return
			}
			continue
		}

		if err := gen.CommitOffsets(map[string]map[int]int64{topic: {partition: msg.Offset + 1}}); err != nil {
			c.logger.Error("commit offset failed", map[string]any{"topic": topic, "partition": partition, "offset": msg.Offset, "error": err.Error()})
		}
	}
}

// Close releases the consumer group's resources immediately, without
// waiting for a graceful generation handoff. Prefer cancelling Run's
// context for an orderly shutdown.
func (c *Consumer) Close() error {
	return c.group.Close()
}
