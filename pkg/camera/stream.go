package camera

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-billsense/pkg/detect"
)

// StreamSource reads binary JPEG frames from a websocket, for example a
// phone or a capture box streaming to the detector. The requested facing is
// sent as the "facing" query parameter.
type StreamSource struct {
	url    string
	dialer *websocket.Dialer
	box    *Mailbox
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	err  error
}

// StreamOption configures a StreamSource.
type StreamOption func(*StreamSource)

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) StreamOption {
	return func(s *StreamSource) { s.dialer = d }
}

// WithStreamLogger sets the logger.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(s *StreamSource) { s.logger = l }
}

// WithStreamMailbox sets the mailbox frames are delivered to.
func WithStreamMailbox(m *Mailbox) StreamOption {
	return func(s *StreamSource) { s.box = m }
}

// NewStreamSource creates a source for the websocket at rawURL.
func NewStreamSource(rawURL string, opts ...StreamOption) *StreamSource {
	s := &StreamSource{
		url: rawURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.box == nil {
		s.box = NewMailbox()
	}
	s.logger = s.logger.With("component", "camera.stream")
	return s
}

// Open dials the stream and starts reading frames.
func (s *StreamSource) Open(ctx context.Context, facing Facing) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("camera: stream url: %w", err)
	}
	q := u.Query()
	q.Set("facing", string(facing))
	u.RawQuery = q.Encode()

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %s: HTTP %d", ErrNoDevice, s.url, resp.StatusCode)
		}
		return fmt.Errorf("%w: %s: %v", ErrNoDevice, s.url, err)
	}

	if err := s.box.Open(ctx, facing); err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.done = done
	s.err = nil
	s.mu.Unlock()

	go s.readLoop(conn, done)
	s.logger.Info("stream opened", "url", s.url, "facing", facing)
	return nil
}

func (s *StreamSource) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.err = err
			}
			s.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Debug("stream read ended", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := s.box.Publish(data); err != nil {
			s.logger.Debug("frame rejected", "error", err)
		}
	}
}

// IsReady implements FrameSource.
func (s *StreamSource) IsReady() bool {
	return s.box.IsReady()
}

// Capture implements FrameSource.
func (s *StreamSource) Capture() (detect.Frame, error) {
	return s.box.Capture()
}

// Err returns the error that ended the read loop, if any.
func (s *StreamSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements FrameSource.
func (s *StreamSource) Close() error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn, s.done = nil, nil
	s.mu.Unlock()

	_ = s.box.Close()
	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	<-done
	return err
}

// Stats returns the underlying mailbox counters.
func (s *StreamSource) Stats() MailboxStats {
	return s.box.Stats()
}

var _ FrameSource = (*StreamSource)(nil)
