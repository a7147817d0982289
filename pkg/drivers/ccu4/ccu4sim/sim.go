// Package ccu4sim simulates the line protocol of a CCU4 controller.
package ccu4sim

import (
	"harnsnode/pkg/link/linktest"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultIdentity = "CCU4v2.1 simulated"

// Simulator holds the parameter table of one CCU4. Queries answer
// name=value, sets store the value and echo it.
type Simulator struct {
	*linktest.Server

	mu       sync.Mutex
	identity string
	values   map[string]float64
	limits   map[string][2]float64
	delay    map[string]time.Duration
	silent   map[string]bool
}

func New(addr string) (*Simulator, error) {
	s := &Simulator{
		identity: DefaultIdentity,
		values: map[string]float64{
			"h":   57.3,
			"hsf": 0,
			"hem": 1000,
			"hfu": 100,
			"hf":  0,
		},
		limits: map[string][2]float64{
			"hem": {0, 2000},
			"hfu": {0, 2000},
			"hf":  {0, 1},
		},
		delay:  make(map[string]time.Duration),
		silent: make(map[string]bool),
	}
	srv, err := linktest.NewServer(addr, "\n", s.handle)
	if err != nil {
		return nil, err
	}
	s.Server = srv
	return s, nil
}

func (s *Simulator) SetIdentity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

func (s *Simulator) Set(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
}

func (s *Simulator) Get(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// SetDelay delays answers to name, 0 removes the delay.
func (s *Simulator) SetDelay(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay[name] = d
}

// SetSilent makes the device swallow commands for name.
func (s *Simulator) SetSilent(name string, silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[name] = silent
}

func (s *Simulator) handle(line string) linktest.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	if line == "cid" {
		return linktest.Reply{Line: s.identity}
	}
	name, arg, set := strings.Cut(line, "=")
	reply := linktest.Reply{Delay: s.delay[name], Silent: s.silent[name]}
	v, ok := s.values[name]
	if !ok {
		reply.Line = "?" + line
		return reply
	}
	if set {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			reply.Line = "?" + line
			return reply
		}
		if l, ok := s.limits[name]; ok {
			f = clamp(f, l[0], l[1])
		}
		if name == "hf" {
			f = float64(int(f))
		}
		s.values[name] = f
		v = f
	}
	reply.Line = name + "=" + strconv.FormatFloat(v, 'g', -1, 64)
	return reply
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
