package server

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// FaultInjector decides what happens to a request that is newer than the
// last one seen from its client, simulating an unreliable network.
type FaultInjector interface {
	Decide() Action
}

// RandomFaults picks uniformly among dropping the request, processing it
// without answering, and processing it normally.
type RandomFaults struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomFaults seeds the generator; seed 0 seeds from the clock.
func NewRandomFaults(seed uint64) *RandomFaults {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomFaults{rng: rand.New(rand.NewSource(seed))}
}

func (f *RandomFaults) Decide() Action {
	f.mu.Lock()
	n := f.rng.Intn(3)
	f.mu.Unlock()

	switch n {
	case 0:
		return DropSilently
	case 1:
		return ProcessNoResponse
	default:
		return ProcessAndRespond
	}
}

// NoFaults answers every new request.
type NoFaults struct{}

func (NoFaults) Decide() Action {
	return ProcessAndRespond
}
