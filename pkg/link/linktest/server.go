// Package linktest provides an in-process line oriented device for tests
// and simulators.
package linktest

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Reply is what the device answers to one line. Silent suppresses the answer.
type Reply struct {
	Line   string
	Delay  time.Duration
	Silent bool
}

type Handler func(line string) Reply

type Received struct {
	Line string
	At   time.Time
}

// Server answers terminator framed lines over TCP, one line at a time in
// arrival order.
type Server struct {
	terminator string
	handler    Handler
	ln         net.Listener

	mu       sync.Mutex
	received []Received
	replied  []time.Time
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

func NewServer(addr, terminator string, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if len(terminator) == 0 {
		terminator = "\n"
	}
	s := &Server{
		terminator: terminator,
		handler:    handler,
		ln:         ln,
		conns:      make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) URI() string {
	return "tcp://" + s.Addr()
}

func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

// Replied returns when each answer was sent, taken just before the write.
func (s *Server) Replied() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.replied...)
}

func (s *Server) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, len(s.received))
	for _, r := range s.received {
		lines = append(lines, r.Line)
	}
	return lines
}

// DropConnections closes every open client connection.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	lines := make(chan string, 64)

	go func() {
		defer close(lines)
		r := bufio.NewReader(conn)
		last := s.terminator[len(s.terminator)-1]
		var pending string
		for {
			chunk, err := r.ReadString(last)
			if err != nil {
				return
			}
			pending += chunk
			if !strings.HasSuffix(pending, s.terminator) {
				continue
			}
			line := strings.TrimSuffix(pending, s.terminator)
			pending = ""
			s.mu.Lock()
			s.received = append(s.received, Received{Line: line, At: time.Now()})
			s.mu.Unlock()
			lines <- line
		}
	}()

	for line := range lines {
		reply := s.handler(line)
		if reply.Delay > 0 {
			time.Sleep(reply.Delay)
		}
		if reply.Silent {
			continue
		}
		s.mu.Lock()
		s.replied = append(s.replied, time.Now())
		s.mu.Unlock()
		if _, err := conn.Write([]byte(reply.Line + s.terminator)); err != nil {
			klog.V(2).InfoS("Failed to write reply", "err", err)
			return
		}
	}
}

// Echo answers queries from a fixed table and echoes set commands.
func Echo(values map[string]string) Handler {
	var mu sync.Mutex
	return func(line string) Reply {
		mu.Lock()
		defer mu.Unlock()
		if i := strings.IndexByte(line, '='); i >= 0 {
			values[line[:i]] = line[i+1:]
			return Reply{Line: line}
		}
		if v, ok := values[line]; ok {
			return Reply{Line: line + "=" + v}
		}
		return Reply{Line: "?" + line}
	}
}
