// Package pipeline contains the message processing components for the
// pubsub ingestion path: bulk notification jobs published by the admin
// panel instead of calling the HTTP function.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-guardian-notification-service/pkg/notify"
)

// BulkJob is the payload of one queued bulk notification. It carries the
// same fields as the HTTP function body.
type BulkJob struct {
	Titulo    string `json:"titulo"`
	Mensaje   string `json:"mensaje"`
	GrupoID   string `json:"grupo_id,omitempty"`
	EscuelaID string `json:"escuela_id,omitempty"`
}

// Audience maps the mutually exclusive selector fields onto the audience
// sum type, rejecting jobs that populate zero or both.
func (j *BulkJob) Audience() (notify.Audience, error) {
	switch {
	case j.GrupoID != "" && j.EscuelaID != "":
		return notify.Audience{}, fmt.Errorf("job populates both grupo_id and escuela_id")
	case j.GrupoID != "":
		return notify.GroupAudience(j.GrupoID), nil
	case j.EscuelaID != "":
		return notify.SchoolAudience(j.EscuelaID), nil
	default:
		return notify.Audience{}, fmt.Errorf("job is missing grupo_id or escuela_id")
	}
}

// BulkJobTransformer safely unmarshals and validates a raw message payload
// into a BulkJob. Malformed jobs are skipped so the StreamingService can
// handle the Nack/DLQ logic rather than looping on poison messages.
func BulkJobTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*BulkJob, bool, error) {
	var job BulkJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal bulk job from message %s: %w", msg.ID, err)
	}
	if _, err := job.Audience(); err != nil {
		return nil, true, fmt.Errorf("invalid bulk job in message %s: %w", msg.ID, err)
	}
	return &job, false, nil
}
