package chat

import (
	"sync"

	"IMSync/logger"
	safe "IMSync/tools/safe"
)

type fanoutJob struct {
	targets []*Client
	frame   []byte
}

// Fanout pushes marshaled frames to target clients through a fixed worker
// pool, so one broadcast to a large room never runs on the caller's
// goroutine. Enqueue never blocks; when the queue is full the whole job is
// dropped and counted, delivery here is best effort by contract.
type Fanout struct {
	jobs chan fanoutJob
	wg   sync.WaitGroup

	closeOnce sync.Once

	mu      sync.Mutex
	dropped int64
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 8
	}
	if queue <= 0 {
		queue = 4096
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		safe.Go(func() {
			defer f.wg.Done()
			f.run()
		})
	}
	return f
}

// Broadcast queues one frame for delivery to every target.
func (f *Fanout) Broadcast(targets []*Client, frame []byte) {
	if len(targets) == 0 {
		return
	}
	select {
	case f.jobs <- fanoutJob{targets: targets, frame: frame}:
	default:
		f.mu.Lock()
		f.dropped++
		n := f.dropped
		f.mu.Unlock()
		logger.Warnf("[fanout] queue full, job dropped targets=%d total_dropped=%d", len(targets), n)
	}
}

// Dropped reports how many jobs were shed since startup.
func (f *Fanout) Dropped() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close stops accepting jobs and waits for the workers to drain.
func (f *Fanout) Close() {
	f.closeOnce.Do(func() { close(f.jobs) })
	f.wg.Wait()
}

func (f *Fanout) run() {
	for j := range f.jobs {
		for _, c := range j.targets {
			c.Enqueue(j.frame)
		}
	}
}
