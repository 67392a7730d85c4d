// Package mailer dispatches rendered documents over email. A buffered queue
// is drained by a pool of worker goroutines so callers enqueue without
// blocking on SMTP; the backend is pluggable behind the Sender interface.
package mailer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vello/vello/pkg/logger"
)

// Attachment is an in-memory file to attach.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is one outbound email.
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

var (
	ErrQueueFull  = errors.New("mailer: queue is full")
	ErrNotRunning = errors.New("mailer: service not running")
)

type Options struct {
	Workers   int
	QueueSize int
	// SendDelay paces each worker between sends (default 100ms).
	SendDelay time.Duration
	// OnResult, when set, is called after every send attempt.
	OnResult func(msg *Message, err error)
}

// Service is the queue-draining dispatch loop.
type Service struct {
	sender Sender
	opts   Options

	queue  chan *Message
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// stopMu orders Enqueue's check-and-send against Stop's close of the
	// queue. Enqueuers hold the read side, Stop takes the write side.
	stopMu  sync.RWMutex
	running atomic.Bool

	sent   atomic.Int64
	failed atomic.Int64
}

func NewService(sender Sender, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendDelay < 0 {
		opts.SendDelay = 0
	} else if opts.SendDelay == 0 {
		opts.SendDelay = 100 * time.Millisecond
	}
	return &Service{
		sender: sender,
		opts:   opts,
		queue:  make(chan *Message, opts.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or the
// queue is closed by Stop.
func (s *Service) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(s.opts.Workers)
	for i := 0; i < s.opts.Workers; i++ {
		go func() {
			defer s.wg.Done()
			s.worker(ctx)
		}()
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			err := s.sender.Send(ctx, msg)
			if err != nil {
				s.failed.Add(1)
				logger.Warnf("mail send failed to=%v subject=%q: %v", msg.To, msg.Subject, err)
			} else {
				s.sent.Add(1)
			}
			if s.opts.OnResult != nil {
				s.opts.OnResult(msg, err)
			}
			if s.opts.SendDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.opts.SendDelay):
				}
			}
		}
	}
}

// Enqueue adds a message without blocking. A full queue is reported, not
// waited on.
func (s *Service) Enqueue(msg *Message) error {
	s.stopMu.RLock()
	defer s.stopMu.RUnlock()
	if !s.running.Load() {
		return ErrNotRunning
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for in-flight sends.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	// Enqueuers that passed the running check finish their send before the
	// write lock admits the close.
	s.stopMu.Lock()
	close(s.queue)
	s.stopMu.Unlock()
	s.wg.Wait()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Service) Sent() int64   { return s.sent.Load() }
func (s *Service) Failed() int64 { return s.failed.Load() }
func (s *Service) Pending() int  { return len(s.queue) }
