package fastserver

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fastproto/fast/fastlog"
	"github.com/fastproto/fast/framing"
	"github.com/fastproto/fast/wire"
)

// Acceptor is the minimal listening surface the server dispatcher needs.
// net.Listener satisfies it directly.
type Acceptor interface {
	Accept() (net.Conn, error)
	Close() error
}

// Config configures a Server.
type Config struct {
	Log      fastlog.Logger
	Acceptor Acceptor
}

// Server is the Fast protocol server dispatcher.
type Server struct {
	log      fastlog.Logger
	acceptor Acceptor
	limiter  *rate.Limiter

	mu       sync.Mutex
	methods  map[string]Handler
	conns    map[*connection]struct{}
	closing  bool
	inflight int
	onDone   []func()
}

// New constructs a Server. Call Option functions to customize it, then
// Run to start accepting connections.
func New(cfg Config, opts ...Option) *Server {
	log := cfg.Log
	if log == nil {
		log = fastlog.Nop
	}
	s := &Server{
		log:      log,
		acceptor: cfg.Acceptor,
		methods:  make(map[string]Handler),
		conns:    make(map[*connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option customizes a Server at construction time.
type Option func(*Server)

// WithRateLimit enables an admission limiter: a DATA message exceeding the
// token bucket is answered with a "rate-limited" ERROR terminator rather
// than being handled. One token bucket is shared by every connection the
// server serves; there is no separate bucket per connection.
func WithRateLimit(r float64, burst int) Option {
	return func(s *Server) { s.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// RegisterRpcMethod associates name with handler. Re-registering a name is
// an error.
func (s *Server) RegisterRpcMethod(name string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.methods[name]; exists {
		return fmt.Errorf("fastserver: method %q already registered", name)
	}
	s.methods[name] = handler
	return nil
}

func (s *Server) lookup(name string) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.methods[name]
	return h, ok
}

// Serve attaches the dispatcher to an already-accepted connection. It
// blocks until the connection's dispatch loop exits.
func (s *Server) Serve(netConn net.Conn) {
	stream := framing.NewStream(netConn, wire.NewCodec(), s.log)
	c := newConnection(s, stream)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	c.run()
}

// Run drives the accept loop, calling Serve on every accepted connection
// in its own goroutine, until Close stops the acceptor.
func (s *Server) Run() error {
	for {
		netConn, err := s.acceptor.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}
		go s.Serve(netConn)
	}
}

// Close initiates graceful shutdown: stop accepting new
// requests (fresh request ids get a "server-closing" ERROR), let in-flight
// requests complete naturally, and invoke OnConnsDestroyed's callback once
// the last connection has drained.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	empty := len(s.conns) == 0
	s.mu.Unlock()

	err := s.acceptor.Close()
	if empty {
		s.fireOnDone()
	}
	return err
}

// OnConnsDestroyed registers cb to be invoked once, after Close has been
// called and the last connection has finished draining.
func (s *Server) OnConnsDestroyed(cb func()) {
	s.mu.Lock()
	fireNow := s.closing && len(s.conns) == 0
	if !fireNow {
		s.onDone = append(s.onDone, cb)
	}
	s.mu.Unlock()

	if fireNow {
		cb()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) trackRequest(delta int) {
	s.mu.Lock()
	s.inflight += delta
	s.mu.Unlock()
}

func (s *Server) connDestroyed(c *connection) {
	s.mu.Lock()
	delete(s.conns, c)
	fire := s.closing && len(s.conns) == 0
	s.mu.Unlock()
	if fire {
		s.fireOnDone()
	}
}

func (s *Server) fireOnDone() {
	s.mu.Lock()
	cbs := s.onDone
	s.onDone = nil
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}
