package device

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// DummyAddress selects the simulated device
const DummyAddress = "dummy"

// Dummy simulates a board with 2 to 5 sensors. Each 'r' queues one line of
// Gaussian readings around per-sensor means.
type Dummy struct {
	mu    sync.Mutex
	rng   *rand.Rand
	meanT []float64
	meanH []float64
	stdT  []float64
	stdH  []float64
	lines [][]byte
}

func NewDummy() *Dummy {
	return NewDummySeeded(rand.Int63())
}

// NewDummySeeded makes the simulated readings reproducible
func NewDummySeeded(seed int64) *Dummy {
	rng := rand.New(rand.NewSource(seed))
	n := 2 + rng.Intn(4)

	d := &Dummy{
		rng:   rng,
		meanT: make([]float64, n),
		meanH: make([]float64, n),
		stdT:  make([]float64, n),
		stdH:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		d.meanT[i] = uniform(rng, 20, 30)
		d.meanH[i] = uniform(rng, 35, 55)
		d.stdT[i] = uniform(rng, 0.3, 3)
		d.stdH[i] = uniform(rng, 0.5, 3)
	}
	return d
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Sensors returns how many sensors the simulated board reports
func (d *Dummy) Sensors() int {
	return len(d.meanT)
}

func (d *Dummy) Write(cmd []byte) error {
	if string(cmd) != string(ReadCommand) {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fields := make([]string, len(d.meanT))
	for i := range d.meanT {
		t := d.rng.NormFloat64()*d.stdT[i] + d.meanT[i]
		h := d.rng.NormFloat64()*d.stdH[i] + d.meanH[i]
		fields[i] = fmt.Sprintf("%d:T=%.2fC,RH=%.2f%%", i, t, h)
	}
	d.lines = append(d.lines, []byte(strings.Join(fields, ";")+"\n"))
	return nil
}

func (d *Dummy) ReadLines() ([][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.lines
	d.lines = nil
	return out, nil
}

func (d *Dummy) Close() error {
	return nil
}
