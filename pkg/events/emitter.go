// Package events handles event emission for entity lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes directory lifecycle events. The merge executor emits
// after commit; a publish failure is logged, never propagated back into the
// merge result.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitEntityMerged emits an entity.merged event for one applied merge.
func (e *Emitter) EmitEntityMerged(ctx context.Context, result *models.ResolveDuplicatesResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityMerged")
	defer span.End()

	mergeData := map[string]any{
		"schema_version": SchemaVersion,
		"source_count":   len(result.DeletedEntityIDs),
	}
	dataJSON, _ := json.Marshal(mergeData)

	event := &kafka.EntityEvent{
		EventType:       "entity.merged",
		EntityID:        result.MergedEntityID,
		SourceEntityIDs: result.DeletedEntityIDs,
		Data:            dataJSON,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merged event")
		return err
	}

	return nil
}
