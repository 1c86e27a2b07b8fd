package channel

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehsaniara/ovdbridge/pkg/constants"
	"github.com/ehsaniara/ovdbridge/pkg/logger"
)

// Server accepts remote sessions on a unix socket. Every connection is one
// session; inside it each named channel gets its own plugin instance.
type Server struct {
	socketPath   string
	maxFrameSize int
	logger       *logger.Logger

	factoriesMu sync.RWMutex
	factories   map[string]PluginFactory

	listener net.Listener
	conns    sync.Map // session id -> net.Conn

	sessionSeq     atomic.Uint64
	framesReceived atomic.Uint64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewServer(socketPath string, maxFrameSize int, log *logger.Logger) *Server {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if log == nil {
		log = logger.New()
	}
	return &Server{
		socketPath:   socketPath,
		maxFrameSize: maxFrameSize,
		logger:       log.WithField("component", "channel-server"),
		factories:    make(map[string]PluginFactory),
	}
}

// Register installs the factory used for channel name in every new session.
func (s *Server) Register(name string, factory PluginFactory) {
	s.factoriesMu.Lock()
	defer s.factoriesMu.Unlock()
	s.factories[name] = factory
}

func (s *Server) factory(name string) (PluginFactory, bool) {
	s.factoriesMu.RLock()
	defer s.factoriesMu.RUnlock()
	f, ok := s.factories[name]
	return f, ok
}

// Addr is the socket path the server listens on.
func (s *Server) Addr() string {
	return s.socketPath
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), constants.DirMode); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create unix socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, constants.SocketMode); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.logger.Info("channel server listening", "socket", s.socketPath, "maxFrameSize", s.maxFrameSize)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open session, then waits for all
// plugins to be terminated.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	s.stopOnce.Do(s.stop)
	return nil
}

func (s *Server) stop() {
	s.logger.Info("stopping channel server")
	s.cancel()
	_ = s.listener.Close()

	s.conns.Range(func(_, v any) bool {
		_ = v.(net.Conn).Close()
		return true
	})
	s.wg.Wait()

	_ = os.Remove(s.socketPath)
	s.logger.Info("channel server stopped",
		"sessions", s.sessionSeq.Load(),
		"framesReceived", s.framesReceived.Load())
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept error", "error", err)
			time.Sleep(constants.DefaultPollInterval * time.Millisecond)
			continue
		}

		id := s.sessionSeq.Add(1)
		s.conns.Store(id, conn)
		if s.ctx.Err() != nil {
			// Stop may have walked s.conns before this Store
			s.conns.Delete(id)
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.conns.Delete(id)
			newSession(s, id, conn).run()
		}()
	}
}

type session struct {
	id     uint64
	server *Server
	conn   net.Conn
	logger *logger.Logger

	writeMu sync.Mutex

	// plugins is only touched by the read loop
	plugins map[string]Plugin
}

func newSession(s *Server, id uint64, conn net.Conn) *session {
	return &session{
		id:      id,
		server:  s,
		conn:    conn,
		logger:  s.logger.WithField("session", id),
		plugins: make(map[string]Plugin),
	}
}

func (ss *session) run() {
	defer ss.conn.Close()

	ctx, cancel := context.WithCancel(ss.server.ctx)
	defer cancel()

	ss.logger.Info("session opened")
	defer ss.terminateAll()

	for {
		frame, err := ReadFrame(ss.conn, ss.server.maxFrameSize)
		if err != nil {
			switch {
			case err == io.EOF, stderrors.Is(err, net.ErrClosed):
				ss.logger.Info("session closed by peer")
			default:
				ss.logger.Error("dropping session", "error", err)
			}
			return
		}
		ss.server.framesReceived.Add(1)
		ss.dispatch(ctx, frame)
	}
}

func (ss *session) dispatch(ctx context.Context, frame Frame) {
	log := ss.logger.WithField("channel", frame.Channel)

	switch frame.Kind {
	case KindConnect:
		if _, ok := ss.plugins[frame.Channel]; ok {
			log.Warn("channel already connected")
			return
		}
		factory, ok := ss.server.factory(frame.Channel)
		if !ok {
			log.Warn("no plugin registered for channel")
			ss.sendTerminate(ctx, frame.Channel)
			return
		}
		plugin := factory(&channelSender{session: ss, channel: frame.Channel})
		if err := plugin.OnConnect(ctx); err != nil {
			log.Error("channel connect failed", "error", err)
			ss.sendTerminate(ctx, frame.Channel)
			return
		}
		ss.plugins[frame.Channel] = plugin
		log.Debug("channel connected")

	case KindData:
		plugin, ok := ss.plugins[frame.Channel]
		if !ok {
			log.Warn("data for unconnected channel", "bytes", len(frame.Data))
			return
		}
		if err := plugin.OnReceive(ctx, frame.Data); err != nil {
			log.Warn("channel receive failed", "error", err)
		}

	case KindTerminate:
		plugin, ok := ss.plugins[frame.Channel]
		if !ok {
			return
		}
		delete(ss.plugins, frame.Channel)
		if err := plugin.OnTerminate(ctx); err != nil {
			log.Warn("channel terminate failed", "error", err)
		}
		log.Debug("channel terminated")
	}
}

// terminateAll runs OnTerminate for every channel still connected, in name
// order. It uses a fresh context since the session context may be gone.
func (ss *session) terminateAll() {
	names := make([]string, 0, len(ss.plugins))
	for name := range ss.plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx := context.Background()
	for _, name := range names {
		if err := ss.plugins[name].OnTerminate(ctx); err != nil {
			ss.logger.Warn("channel terminate failed", "channel", name, "error", err)
		}
		delete(ss.plugins, name)
	}
}

func (ss *session) sendTerminate(ctx context.Context, channel string) {
	if err := ss.write(ctx, Frame{Channel: channel, Kind: KindTerminate}); err != nil {
		ss.logger.Debug("failed to send terminate", "channel", channel, "error", err)
	}
}

func (ss *session) write(ctx context.Context, f Frame) error {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = ss.conn.SetWriteDeadline(deadline)
		defer ss.conn.SetWriteDeadline(time.Time{})
	}
	return WriteFrame(ss.conn, f, ss.server.maxFrameSize)
}

type channelSender struct {
	session *session
	channel string
}

func (c *channelSender) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.session.write(ctx, Frame{Channel: c.channel, Kind: KindData, Data: data})
}
