// Package delivery provides the bounded job queue and the background
// dispatcher that ships rendered carnets to their owners.
package delivery

import (
	"context"

	"github.com/google/uuid"
)

// Job is one outbound notification. Jobs are transient: they live only in
// the queue and are discarded after delivery or after retries are exhausted.
type Job struct { //nolint:govet // fieldalignment not critical here
	ID         string
	Recipient  string
	Subject    string
	HTMLBody   string
	Attachment *Attachment
}

// Attachment is an optional document carried by a job.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// NewJob builds a job with a fresh ID for log correlation.
func NewJob(recipient, subject, htmlBody string, attachment *Attachment) Job {
	return Job{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Subject:    subject,
		HTMLBody:   htmlBody,
		Attachment: attachment,
	}
}

// Transport performs the actual send. Implementations must respect the
// context deadline: the dispatcher bounds every attempt with a timeout.
type Transport interface {
	Send(ctx context.Context, job Job) error
}
