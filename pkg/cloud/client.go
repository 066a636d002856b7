package cloud

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-billsense/pkg/announce"
	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/protocol"
	"github.com/teslashibe/go-billsense/pkg/session"
	"github.com/teslashibe/go-billsense/pkg/tts"
)

// Client is one connected camera client and the session serving it.
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	session *session.Session
	mailbox *camera.Mailbox
	speaker *announce.Speaker

	// actions queues start and flip requests for runActions.
	actions chan string

	mu          sync.Mutex
	cameraReply chan error
}

// Send writes a message to the client.
func (c *Client) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Session returns the client's detection session.
func (c *Client) Session() *session.Session {
	return c.session
}

// awaitCamera registers for the client's next camera reply.
func (c *Client) awaitCamera() chan error {
	ch := make(chan error, 1)
	c.mu.Lock()
	c.cameraReply = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) forgetCamera(ch chan error) {
	c.mu.Lock()
	if c.cameraReply == ch {
		c.cameraReply = nil
	}
	c.mu.Unlock()
}

// cameraAnswered delivers a camera reply to a waiting start. It reports
// false when nothing was waiting.
func (c *Client) cameraAnswered(err error) bool {
	c.mu.Lock()
	ch := c.cameraReply
	c.cameraReply = nil
	c.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- err
	return true
}

// dropQueuedActions discards start and flip requests not yet running.
func (c *Client) dropQueuedActions() {
	for {
		select {
		case <-c.actions:
		default:
			return
		}
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.LastSeen = time.Now()
	c.mu.Unlock()
}

// clientSink delivers utterances to the browser, which plays them itself.
// A new announce message replaces whatever the client is playing.
type clientSink struct {
	client *Client
	hub    *Hub
}

var _ announce.Silencer = (*clientSink)(nil)

func (s *clientSink) Play(ctx context.Context, u announce.Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := protocol.NewAnnounceMessage(u.Text, u.Locale, u.Forced, u.Audio, audioFormatName(u.Format), u.Format.SampleRate)
	if err != nil {
		return err
	}
	s.hub.announcements.Add(1)
	if s.hub.cfg.Events != nil {
		s.hub.cfg.Events.RecordAnnouncement(s.client.ID, u.Text)
	}
	return s.hub.send(s.client, msg)
}

// Silence implements announce.Silencer: the browser keeps playing after
// Play returns, so cancelled speech has to be stopped over the wire.
func (s *clientSink) Silence() {
	msg, err := protocol.NewSilenceMessage()
	if err != nil {
		return
	}
	_ = s.hub.send(s.client, msg)
}

// audioFormatName maps a synthesizer format to the short names clients know.
func audioFormatName(f tts.AudioFormat) string {
	switch f.MIME() {
	case "audio/pcm":
		return "pcm16"
	case "audio/basic":
		return "ulaw"
	default:
		return "mp3"
	}
}

// statusData converts a session status for the wire.
func statusData(st session.Status) protocol.StatusData {
	data := protocol.StatusData{
		SessionID:  st.ID,
		Running:    st.Running,
		Facing:     string(st.Facing),
		Audio:      st.Audio,
		Phase:      st.Phase.String(),
		Label:      st.Label,
		Confidence: st.Confidence,
		Message:    st.Message,
		Error:      st.Error,
	}
	if st.Scene != nil {
		data.Brightness = st.Scene.Brightness
	}
	return data
}
