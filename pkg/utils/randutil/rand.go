package randutil

import (
	"math/rand"
	"sync"
	"time"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	mu  sync.Mutex
	rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func Uint64n() uint64 {
	mu.Lock()
	defer mu.Unlock()
	return rnd.Uint64()
}

func Int63n() int64 {
	mu.Lock()
	defer mu.Unlock()
	return rnd.Int63()
}

// Intn returns a value in [0, n).
func Intn(n int) int {
	mu.Lock()
	defer mu.Unlock()
	return rnd.Intn(n)
}

// Float64 returns a value in [0.0, 1.0).
func Float64() float64 {
	mu.Lock()
	defer mu.Unlock()
	return rnd.Float64()
}

func StringN(n int) string {
	mu.Lock()
	defer mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rnd.Intn(len(letters))]
	}
	return string(b)
}
