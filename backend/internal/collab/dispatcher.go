package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// Dispatcher publishes committed changes to the doc-ops topic through a
// bounded local queue and worker goroutines. ApplyChange only enqueues; a
// full queue drops the event instead of blocking the commit path, and
// transient broker failures are absorbed by capped-backoff retries.
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger

	queue chan ChangeEvent
	done  chan struct{}
	once  sync.Once
	sem   *Semaphore
	wg    sync.WaitGroup

	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxSends    int // concurrent SendMessage cap
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewDispatcher(producer sarama.SyncProducer, topic string, log *slog.Logger, opt DispatcherOptions) *Dispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 10_000
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.MaxSends <= 0 {
		opt.MaxSends = 16
	}
	if opt.BaseBackoff <= 0 {
		opt.BaseBackoff = 50 * time.Millisecond
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = time.Second
	}
	d := &Dispatcher{
		producer:    producer,
		topic:       topic,
		log:         log,
		queue:       make(chan ChangeEvent, opt.QueueSize),
		done:        make(chan struct{}),
		sem:         NewSemaphore(opt.MaxSends),
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	for i := 0; i < opt.Workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
	return d
}

// Enqueue never blocks; the event stream is best-effort and a full queue
// drops rather than stalling a commit inside the document lock. After
// Close it drops silently: a session committing a change while the server
// shuts down must not be able to crash the process.
func (d *Dispatcher) Enqueue(evt ChangeEvent) {
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.queue <- evt:
	default:
		d.log.Warn("dispatch queue full, dropping event",
			"documentId", evt.DocumentID, "version", evt.Version)
	}
}

// Close stops accepting events and waits for the workers to drain what was
// already queued. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for {
		select {
		case evt := <-d.queue:
			d.sendWithRetry(workerID, evt)
		case <-d.done:
			for {
				select {
				case evt := <-d.queue:
					d.sendWithRetry(workerID, evt)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) sendWithRetry(workerID int, evt ChangeEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		_ = d.sem.Acquire(context.Background())
		err := d.sendOnce(evt)
		_ = d.sem.Release()

		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			d.log.Warn("broker send failed, dropping event",
				"documentId", evt.DocumentID, "version", evt.Version,
				"worker", workerID, "error", err)
			return
		}

		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *Dispatcher) sendOnce(evt ChangeEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocumentID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
