package consumer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	objectFinalizeEvent  = "OBJECT_FINALIZE"
	objectDeleteEvent    = "OBJECT_DELETE"
	payloadFormatJSONAPI = "JSON_API_V1"
)

type gcsAttributes struct {
	EventType     string
	BucketID      string
	ObjectID      string
	PayloadFormat string
}

func parseAttributes(attrs map[string]string) gcsAttributes {
	return gcsAttributes{
		EventType:     attrs["eventType"],
		BucketID:      attrs["bucketId"],
		ObjectID:      attrs["objectId"],
		PayloadFormat: attrs["payloadFormat"],
	}
}

type gcsPayload struct {
	Name        string `json:"name"`
	Bucket      string `json:"bucket"`
	Generation  string `json:"generation"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

func (p *gcsPayload) sizeBytes() int64 {
	if p == nil {
		return 0
	}
	n, err := strconv.ParseInt(p.Size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func decodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("payload empty")
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		return decoded, nil
	}
	return data, nil
}

type processResult struct {
	ack  bool
	nack bool
}

func isTransientDBError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func previewBytes(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
