package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/crewboard/crewboard-backend/pkg/db/models"
	"github.com/crewboard/crewboard-backend/pkg/enums"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository interface {
	FindByStorageKey(ctx context.Context, key string) (*models.Media, error)
	MarkUploaded(ctx context.Context, id uuid.UUID, uploadedAt time.Time, sizeBytes int64) error
}

type changeNotifier interface {
	GalleryChanged(ctx context.Context) error
}

// Consumer processes GCS OBJECT_FINALIZE notifications. This is the
// completion hook that turns an acknowledged upload into an uploaded
// MediaRecord; resolvers only see rows once it has run.
type Consumer struct {
	repo         repository
	notifier     changeNotifier
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	now          func() time.Time
}

// NewConsumer constructs a consumer that watches the provided subscription.
func NewConsumer(repo repository, notifier changeNotifier, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, errors.New("media repository is required")
	}
	if subscription == nil {
		return nil, errors.New("media subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		repo:         repo,
		notifier:     notifier,
		subscription: subscription,
		logg:         logg,
		now:          time.Now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	attrs := parseAttributes(msg.Attributes)
	fields := c.buildLogFields(msg.ID, attrs, nil)
	logCtx := c.logg.WithFields(ctx, fields)

	if attrs.EventType != objectFinalizeEvent {
		c.logg.Info(logCtx, "skipping non-finalize event")
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
			c.logg.Warn(logCtx, "no media row for finalized object")
			return processResult{ack: true}
		}
		return c.handleDBError(logCtx, err)
	}

	fields["media_id"] = row.ID.String()
	logCtx = c.logg.WithFields(ctx, fields)

	if row.Status != enums.MediaStatusPending {
		c.logg.Info(logCtx, "media status already handled")
		return processResult{ack: true}
	}

	if err := c.repo.MarkUploaded(ctx, row.ID, c.now(), gcs.sizeBytes()); err != nil {
		return c.handleDBError(logCtx, err)
	}

	if c.notifier != nil {
		if err := c.notifier.GalleryChanged(ctx); err != nil {
			c.logg.Warn(logCtx, "gallery change signal failed")
		}
	}

	c.logg.Info(logCtx, "media marked as uploaded")
	return processResult{ack: true}
}

func (c *Consumer) handleDBError(ctx context.Context, err error) processResult {
	c.logg.Error(ctx, "media persistence error", err)
	if isTransientDBError(err) {
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) buildLogFields(messageID string, attrs gcsAttributes, payload *gcsPayload) map[string]any {
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

func bucketOf(p *gcsPayload) string {
	if p == nil {
		return ""
	}
	return p.Bucket
}
