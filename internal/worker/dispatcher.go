package worker

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrDispatcherBusy is returned by Submit when the pending limit is reached.
	ErrDispatcherBusy = errors.New("worker: queue full")
	// ErrDispatcherClosed is returned by Submit after Close.
	ErrDispatcherClosed = errors.New("worker: dispatcher closed")
)

const defaultJobTimeout = 60 * time.Second

type Options struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	JobTimeout  time.Duration
}

type keyQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher runs background jobs on a bounded worker pool. Keys take turns
// in LRU order so one busy user cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	log      logrus.FieldLogger
	opts     Options

	mu        sync.Mutex
	queues    map[string]*keyQueue // job queue for each key
	ready     *list.List           // LRU queue storing keys
	positions map[string]*list.Element
	pending   int
	closed    bool
	inflight  sync.WaitGroup
	quit      chan struct{}
}

func NewDispatcher(opts Options, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	d := &Dispatcher{
		jobQueue:  make(chan Job, opts.QueueSize),
		log:       log.WithField("component", "worker"),
		opts:      opts,
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
	}
	d.pool = newJobChannelPool(opts.MinWorkers, opts.MaxWorkers, opts.IdleTimeout, d.execute)

	for i := 0; i < opts.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues a job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("worker: job %q has no run func", job.Name)
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if d.pending >= d.opts.QueueSize {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.pending++
	d.inflight.Add(1)
	d.mu.Unlock()

	d.jobQueue <- job
	return nil
}

// Pending reports jobs accepted but not yet finished.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Close stops accepting jobs and waits for accepted ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	close(d.quit)
	d.pool.close()
	return err
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the key in the front of LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// dispatchOne hands the first key's oldest job to a worker.
func (d *Dispatcher) dispatchOne() bool {
	job, ok := d.next()
	if !ok {
		return false
	}

	workerChan := d.pool.acquire()
	if workerChan == nil {
		d.log.WithFields(logrus.Fields{"job": job.Name, "key": job.Key}).Warn("worker_job_dropped")
		d.finish()
		return true
	}
	debugLog(d.log, "[dispatcher] assign job %s for key %s", job.Name, job.Key)
	workerChan <- job
	return true
}

// next pops one job from the front key and rotates that key to the back.
func (d *Dispatcher) next() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// key drained, it leaves the ready list
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}

func (d *Dispatcher) execute(job Job) {
	defer d.finish()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = d.opts.JobTimeout
	}
	// jobs outlive the request that queued them
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entry := d.log.WithFields(logrus.Fields{"job": job.Name, "key": job.Key})
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("worker_job_panic")
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		entry.WithError(err).Warn("worker_job_failed")
		return
	}
	debugLog(entry, "[worker] job %s done in %s", job.Name, time.Since(start))
}

func (d *Dispatcher) finish() {
	d.mu.Lock()
	d.pending--
	d.mu.Unlock()
	d.inflight.Done()
}
