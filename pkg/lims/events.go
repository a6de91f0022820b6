package lims

import (
	"context"

	"github.com/labtrack/lims/pkg/common/kafka"
	"github.com/labtrack/lims/pkg/common/models"
)

const eventSource = "lims"

// Publisher announces committed changes. *kafka.Producer satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, partitionKey string, event models.Event) error
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, string, models.Event) error { return nil }

func changeEvent(resource, action string, id uint) models.Event {
	return kafka.NewEvent(resource+"."+action, eventSource, map[string]interface{}{
		"resource": resource,
		"id":       id,
		"action":   action,
	})
}
