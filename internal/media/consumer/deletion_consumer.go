package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/enums"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type deletionRepository interface {
	FindByStorageKey(ctx context.Context, key string) (*models.Media, error)
	ClearAssociation(ctx context.Context, id uuid.UUID) error
	MarkDeleted(ctx context.Context, id uuid.UUID) error
}

// DeletionConsumer watches for GCS OBJECT_DELETE notifications. When a blob
// disappears underneath a row (console cleanup, lifecycle rule), the row is
// detached from its owning entity and marked deleted so the gallery stops
// serving a dead URL.
type DeletionConsumer struct {
	repo         deletionRepository
	notifier     changeNotifier
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewDeletionConsumer wires the dependencies required for deletion cleanup.
func NewDeletionConsumer(repo deletionRepository, notifier changeNotifier, subscription *pubsub.Subscriber, logg *logger.Logger) (*DeletionConsumer, error) {
	if repo == nil {
		return nil, errors.New("media repository is required")
	}
	if subscription == nil {
		return nil, errors.New("media deletion subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &DeletionConsumer{
		repo:         repo,
		notifier:     notifier,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes deletion notifications until the context is canceled.
func (c *DeletionConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *DeletionConsumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	attrs := parseAttributes(msg.Attributes)
	fields := c.buildLogFields(msg.ID, attrs, nil)
	logCtx := c.logg.WithFields(ctx, fields)

	if attrs.EventType != objectDeleteEvent {
		c.logg.Info(logCtx, "skipping non-delete event")
		return processResult{ack: true}
	}
	if attrs.PayloadFormat != payloadFormatJSONAPI {
		c.logg.Warn(logCtx, "unsupported payload format")
		return processResult{ack: true}
	}

	payload, err := decodePayload(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true}
	}

	var gcs gcsPayload
	if err := json.Unmarshal(payload, &gcs); err != nil {
		fields["payload_preview"] = previewBytes(payload, 800)
		fields["payload_len"] = len(payload)
		logCtx = c.logg.WithFields(ctx, fields)
		c.logg.Error(logCtx, "failed to unmarshal payload", err)
		return processResult{ack: true}
	}

	if strings.TrimSpace(gcs.Name) == "" {
		c.logg.Error(logCtx, "payload missing gcs object name", fmt.Errorf("empty name"))
		return processResult{ack: true}
	}

	fields = c.buildLogFields(msg.ID, attrs, &gcs)
	logCtx = c.logg.WithFields(ctx, fields)

	row, err := c.repo.FindByStorageKey(logCtx, gcs.Name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Explicit deletes remove the row before the blob; nothing left to do.
			c.logg.Info(logCtx, "no media row for deleted object")
			return processResult{ack: true}
		}
		return c.handleDBError(logCtx, err)
	}

	fields["media_id"] = row.ID.String()
	logCtx = c.logg.WithFields(ctx, fields)

	if row.Status == enums.MediaStatusDeleted {
		c.logg.Info(logCtx, "media already marked deleted")
		return processResult{ack: true}
	}

	if row.RefType != nil || row.RefID != nil {
		if err := c.repo.ClearAssociation(ctx, row.ID); err != nil {
			return c.handleDBError(logCtx, err)
		}
	}
	if err := c.repo.MarkDeleted(ctx, row.ID); err != nil {
		return c.handleDBError(logCtx, err)
	}

	if c.notifier != nil {
		if err := c.notifier.GalleryChanged(ctx); err != nil {
			c.logg.Warn(logCtx, "gallery change signal failed")
		}
	}

	c.logg.Info(logCtx, "media marked deleted after object removal")
	return processResult{ack: true}
}

func (c *DeletionConsumer) handleDBError(ctx context.Context, err error) processResult {
	c.logg.Error(ctx, "media persistence error", err)
	if isTransientDBError(err) {
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *DeletionConsumer) buildLogFields(messageID string, attrs gcsAttributes, payload *gcsPayload) map[string]any {
	fields := map[string]any{
		"message_id": messageID,
		"event_type": attrs.EventType,
		"bucket":     firstNonEmpty(attrs.BucketID, bucketOf(payload)),
	}
	if payload != nil {
		fields["storage_key"] = payload.Name
	}
	return fields
}
