package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/account-security-service/internal/observability"
)

type EmailKind string

const (
	EmailPasswordReset EmailKind = "password_reset"
	EmailVerification  EmailKind = "email_verification"
)

const (
	emailSendTimeout       = 15 * time.Second
	defaultEmailQueueSize  = 256
	defaultEmailWorkerSize = 2
)

var (
	ErrEmailQueueFull = errors.New("email queue full")
	ErrEmailClosed    = errors.New("email dispatcher closed")
)

// EmailMessage is handed to the delivery collaborator. Link embeds a
// plaintext token and must not be logged.
type EmailMessage struct {
	Kind        EmailKind
	To          string
	DisplayName string
	Link        string
}

type EmailReceipt struct {
	ID string
}

type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) (EmailReceipt, error)
}

// LogEmailSender stands in for a mail provider in local profiles. It records
// that a message would have been sent, without its link.
type LogEmailSender struct {
	logger *slog.Logger
}

func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(ctx context.Context, msg EmailMessage) (EmailReceipt, error) {
	receipt := EmailReceipt{ID: uuid.NewString()}
	s.logger.InfoContext(ctx, "email delivered", "kind", msg.Kind, "to", msg.To, "receipt_id", receipt.ID)
	return receipt, nil
}

type emailJob struct {
	msg     EmailMessage
	receipt EmailReceipt
}

// EmailDispatcher queues messages for a fixed pool of workers so request
// handlers never wait on the mail provider.
type EmailDispatcher struct {
	next   EmailSender
	queue  chan emailJob
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

func NewEmailDispatcher(next EmailSender, workers, queueSize int, logger *slog.Logger) *EmailDispatcher {
	if workers <= 0 {
		workers = defaultEmailWorkerSize
	}
	if queueSize <= 0 {
		queueSize = defaultEmailQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &EmailDispatcher{next: next, queue: make(chan emailJob, queueSize), logger: logger}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Send enqueues msg and returns at once. The receipt id correlates the
// enqueue with the worker's delivery log line.
func (d *EmailDispatcher) Send(ctx context.Context, msg EmailMessage) (EmailReceipt, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return EmailReceipt{}, ErrEmailClosed
	}
	job := emailJob{msg: msg, receipt: EmailReceipt{ID: uuid.NewString()}}
	select {
	case d.queue <- job:
		observability.RecordEmailDispatch(ctx, string(msg.Kind), "queued")
		return job.receipt, nil
	default:
		observability.RecordEmailDispatch(ctx, string(msg.Kind), "dropped")
		return EmailReceipt{}, ErrEmailQueueFull
	}
}

// Close stops accepting messages and waits until queued ones are delivered
// or ctx ends.
func (d *EmailDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *EmailDispatcher) work() {
	defer d.wg.Done()
	for job := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		_, err := d.next.Send(ctx, job.msg)
		cancel()
		if err != nil {
			observability.RecordEmailDispatch(ctx, string(job.msg.Kind), "error")
			d.logger.Error("email delivery failed", "kind", job.msg.Kind, "receipt_id", job.receipt.ID, "error", err)
			continue
		}
		observability.RecordEmailDispatch(ctx, string(job.msg.Kind), "sent")
	}
}
