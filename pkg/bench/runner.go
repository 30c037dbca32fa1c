package bench

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/downfa11-org/journal/pkg/config"
	"github.com/downfa11-org/journal/pkg/journal"
	"github.com/google/uuid"
)

type BenchmarkRunner struct {
	Config              *config.Config
	NumProducers        int
	NumConsumers        int
	MessagesPerProducer int
	PayloadSize         int
}

type Result struct {
	Appended   int
	Read       int
	AppendTime time.Duration
	ReadTime   time.Duration
	Segments   int
}

func NewBenchmarkRunner(cfg *config.Config, producers, consumers, messages, payloadSize int) *BenchmarkRunner {
	return &BenchmarkRunner{
		Config:              cfg,
		NumProducers:        producers,
		NumConsumers:        consumers,
		MessagesPerProducer: messages,
		PayloadSize:         payloadSize,
	}
}

// payload builds a unique entry of at least size bytes out of uuids.
func payload(size int) []byte {
	out := make([]byte, 0, size+36)
	for len(out) < size {
		out = append(out, uuid.NewString()...)
	}
	return out
}

// Run appends from NumProducers goroutines, then has every consumer read
// the whole journal back.
func (b *BenchmarkRunner) Run() (Result, error) {
	j, err := journal.Open[[]byte](b.Config, journal.BytesCodec{})
	if err != nil {
		return Result{}, err
	}
	defer j.Close()

	var res Result
	var appended atomic.Int64
	errCh := make(chan error, b.NumProducers+b.NumConsumers)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < b.NumProducers; i++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for n := 0; n < b.MessagesPerProducer; n++ {
				if _, err := j.Append(payload(b.PayloadSize)); err != nil {
					errCh <- fmt.Errorf("producer %d: %w", pid, err)
					return
				}
				appended.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if err := j.Flush(); err != nil {
		return res, err
	}
	res.AppendTime = time.Since(start)
	res.Appended = int(appended.Load())

	var read atomic.Int64
	start = time.Now()
	for i := 0; i < b.NumConsumers; i++ {
		wg.Add(1)
		go func(cid int) {
			defer wg.Done()
			r, err := j.OpenReader(j.FirstIndex())
			if err != nil {
				errCh <- fmt.Errorf("consumer %d: %w", cid, err)
				return
			}
			defer r.Close()
			for r.HasNext() {
				if _, err := r.Next(); err != nil {
					errCh <- fmt.Errorf("consumer %d: %w", cid, err)
					return
				}
				read.Add(1)
			}
		}(i)
	}
	wg.Wait()
	res.ReadTime = time.Since(start)
	res.Read = int(read.Load())
	res.Segments = len(j.Segments())

	close(errCh)
	if err, ok := <-errCh; ok {
		return res, err
	}
	return res, nil
}

func (r Result) Print(storage string, producers, consumers int) {
	appendRate := float64(r.Appended) / r.AppendTime.Seconds()
	readRate := float64(r.Read) / r.ReadTime.Seconds()

	fmt.Printf("\n🧪 BENCHMARK RESULT [%s] 🧪\n", storage)
	fmt.Printf("-------------------------------------\n")
	fmt.Printf(" Producers     : %d\n", producers)
	fmt.Printf(" Consumers     : %d\n", consumers)
	fmt.Printf(" Segments      : %d\n", r.Segments)
	fmt.Printf(" Appended      : %d in %v\n", r.Appended, r.AppendTime)
	fmt.Printf(" Append rate   : %.2f entries/sec\n", appendRate)
	fmt.Printf(" Read back     : %d in %v\n", r.Read, r.ReadTime)
	fmt.Printf(" Read rate     : %.2f entries/sec\n", readRate)
	fmt.Printf("-------------------------------------\n")
}
