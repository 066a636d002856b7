// Package cloud serves camera clients over WebSocket. Each connection gets
// its own detection session fed by the frames the client pushes; the
// server sends back status lines, announcements and camera instructions.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-billsense/pkg/announce"
	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/inference"
	"github.com/teslashibe/go-billsense/pkg/protocol"
	"github.com/teslashibe/go-billsense/pkg/session"
	"github.com/teslashibe/go-billsense/pkg/tts"
)

// Config wires the hub to the shared classifier and speech settings.
type Config struct {
	Classifier  inference.Classifier
	Synthesizer tts.Provider // optional; without it clients speak the text
	Locale      string
	Debounce    time.Duration

	Camera camera.Config

	// SessionOptions are applied to every client session.
	SessionOptions []session.Option

	// AutoStart opens the camera as soon as a client connects.
	AutoStart bool

	// CameraTimeout bounds how long a start waits for the client to report
	// that its camera opened. It covers the browser's permission prompt.
	CameraTimeout time.Duration

	// Events, when set, receives every client's activity.
	Events EventRecorder

	Logger *slog.Logger
}

// EventRecorder receives session activity for monitoring.
type EventRecorder interface {
	RecordStatus(source string, st session.Status)
	RecordAnnouncement(source, text string)
	Forget(source string)
}

// Hub manages WebSocket connections from camera clients
type Hub struct {
	cfg     Config
	camera  *camera.Manager
	logger  *slog.Logger
	mu      sync.RWMutex
	clients map[string]*Client

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesRejected   atomic.Uint64
	announcements    atomic.Uint64
}

// NewHub creates a new client hub
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Locale == "" {
		cfg.Locale = announce.DefaultLocale
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = announce.DefaultDebounce
	}
	if cfg.CameraTimeout <= 0 {
		cfg.CameraTimeout = 30 * time.Second
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera = camera.DefaultConfig()
	}
	return &Hub{
		cfg:     cfg,
		camera:  camera.NewManager(cfg.Camera),
		logger:  cfg.Logger.With("component", "cloud.hub"),
		clients: make(map[string]*Client),
	}
}

// Camera returns the camera settings applied to new sessions.
func (h *Hub) Camera() *camera.Manager {
	return h.camera
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/client", websocket.New(h.handleClient))
	app.Get("/ws/client/:id", websocket.New(h.handleClient))
}

// newClient builds the session pipeline for a connection.
func (h *Hub) newClient(id string, conn *websocket.Conn) (*Client, error) {
	now := time.Now()
	client := &Client{
		ID:        id,
		Conn:      conn,
		Connected: now,
		LastSeen:  now,
		actions:   make(chan string, 4),
	}

	camCfg := h.camera.GetConfig()
	mailbox := camera.NewMailbox(camera.WithMaxFrameAge(time.Duration(camCfg.MaxFrameAgeMs) * time.Millisecond))
	mailbox.OnOpen = func(ctx context.Context, facing camera.Facing) error {
		cfg := h.camera.GetConfig()
		msg, err := protocol.NewCameraMessage(protocol.CameraData{
			Open:       true,
			Facing:     string(facing),
			FacingMode: facing.FacingMode(),
			Width:      cfg.Width,
			Height:     cfg.Height,
			Framerate:  cfg.Framerate,
			Quality:    cfg.Quality,
		})
		if err != nil {
			return err
		}
		reply := client.awaitCamera()
		defer client.forgetCamera(reply)
		if err := h.send(client, msg); err != nil {
			return errors.Join(camera.ErrNoDevice, err)
		}

		timer := time.NewTimer(h.cfg.CameraTimeout)
		defer timer.Stop()
		select {
		case err := <-reply:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: client did not open its camera within %s", camera.ErrNoDevice, h.cfg.CameraTimeout)
		}
	}
	mailbox.OnClose = func() {
		msg, err := protocol.NewCameraMessage(protocol.CameraData{Open: false})
		if err == nil {
			_ = h.send(client, msg)
		}
	}

	speakerOpts := []announce.SpeakerOption{
		announce.WithLocale(h.cfg.Locale),
		announce.WithDebounce(h.cfg.Debounce),
		announce.WithLogger(h.cfg.Logger),
	}
	if h.cfg.Synthesizer != nil {
		speakerOpts = append(speakerOpts, announce.WithSynthesizer(h.cfg.Synthesizer))
	}
	speaker := announce.NewSpeaker(&clientSink{client: client, hub: h}, speakerOpts...)

	opts := []session.Option{
		session.WithFacing(camCfg.Facing),
		session.WithJPEGQuality(camCfg.Quality),
		session.WithPhrases(announce.Phrases(h.cfg.Locale)),
		session.WithLogger(h.cfg.Logger),
	}
	opts = append(opts, h.cfg.SessionOptions...)
	opts = append(opts, session.WithObserver(func(st session.Status) {
		if h.cfg.Events != nil {
			h.cfg.Events.RecordStatus(client.ID, st)
		}
		msg, err := protocol.NewStatusMessage(statusData(st))
		if err == nil {
			_ = h.send(client, msg)
		}
	}))

	sess, err := session.New(mailbox, h.cfg.Classifier, speaker, opts...)
	if err != nil {
		return nil, err
	}

	client.session = sess
	client.mailbox = mailbox
	client.speaker = speaker
	return client, nil
}

// handleClient handles a client WebSocket connection
func (h *Hub) handleClient(c *websocket.Conn) {
	clientID := c.Params("id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client, err := h.newClient(clientID, c)
	if err != nil {
		h.logger.Error("session setup failed", "client", clientID, "error", err)
		if msg, merr := protocol.NewErrorMessage("session", err.Error()); merr == nil {
			data, _ := msg.Bytes()
			_ = c.WriteMessage(websocket.TextMessage, data)
		}
		return
	}

	h.mu.Lock()
	if old, ok := h.clients[clientID]; ok {
		_ = old.Conn.Close()
	}
	h.clients[clientID] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", "client", clientID, "total", clientCount)

	go h.runActions(client)

	defer func() {
		_ = client.session.Close()
		client.speaker.Cancel()
		close(client.actions)

		h.mu.Lock()
		if h.clients[clientID] == client {
			delete(h.clients, clientID)
			if h.cfg.Events != nil {
				h.cfg.Events.Forget(clientID)
			}
		}
		clientCount := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("client disconnected", "client", clientID, "total", clientCount)
	}()

	if h.cfg.AutoStart {
		client.actions <- protocol.ActionStart
	}

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("client read ended", "client", clientID, "error", err)
			return
		}

		client.touch()
		h.messagesReceived.Add(1)

		if msgType == websocket.BinaryMessage {
			h.handleFrame(client, data)
			continue
		}
		h.handleMessage(client, data)
	}
}

// handleMessage processes an incoming message from a client
func (h *Hub) handleMessage(client *Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug("parse error", "client", client.ID, "error", err)
		h.sendError(client, "bad_message", err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		frame, err := protocol.Decode[protocol.FrameData](msg)
		if err != nil {
			h.sendError(client, "bad_frame", err.Error())
			return
		}
		jpeg, err := frame.JPEG()
		if err != nil {
			h.sendError(client, "bad_frame", err.Error())
			return
		}
		h.handleFrame(client, jpeg)

	case protocol.TypeControl:
		ctrl, err := protocol.Decode[protocol.ControlData](msg)
		if err != nil {
			h.sendError(client, "bad_control", err.Error())
			return
		}
		switch ctrl.Action {
		case protocol.ActionStart, protocol.ActionFlip:
			// Both wait on the client's camera reply, which this
			// goroutine has to keep reading.
			select {
			case client.actions <- ctrl.Action:
			default:
				h.sendError(client, "control", "busy: "+ctrl.Action)
			}
		default:
			if ctrl.Action == protocol.ActionStop {
				client.dropQueuedActions()
			}
			if err := h.apply(client, ctrl.Action, ctrl.Enabled); err != nil {
				h.sendError(client, "control", err.Error())
			}
		}

	case protocol.TypeCamera:
		cam, err := protocol.Decode[protocol.CameraData](msg)
		if err != nil {
			h.sendError(client, "bad_camera", err.Error())
			return
		}
		h.handleCameraReply(client, cam)

	case protocol.TypePing:
		ping, _ := protocol.Decode[protocol.PingData](msg)
		id := ""
		if ping != nil {
			id = ping.ID
		}
		_ = h.SendPong(client.ID, id, msg.Timestamp)

	default:
		h.sendError(client, "unknown_type", string(msg.Type))
	}
}

// handleFrame drops a JPEG into the client's mailbox.
func (h *Hub) handleFrame(client *Client, jpeg []byte) {
	h.framesReceived.Add(1)
	if err := client.mailbox.Publish(jpeg); err != nil {
		h.framesRejected.Add(1)
		h.logger.Debug("frame rejected", "client", client.ID, "error", err)
	}
}

// handleCameraReply resolves a pending start, or stops a running session
// whose camera the client lost.
func (h *Hub) handleCameraReply(client *Client, cam *protocol.CameraData) {
	var openErr error
	if !cam.Open {
		reason := cam.Error
		if reason == "" {
			reason = "closed by client"
		}
		openErr = fmt.Errorf("%w: %s", camera.ErrNoDevice, reason)
	}
	if client.cameraAnswered(openErr) {
		return
	}
	if openErr != nil {
		h.logger.Info("client camera failed", "client", client.ID, "error", openErr)
		client.session.CameraLost(openErr)
	}
}

// runActions runs a client's start and flip requests one at a time.
func (h *Hub) runActions(client *Client) {
	for action := range client.actions {
		if err := h.apply(client, action, nil); err != nil {
			// Acquisition failures are also announced and in the status.
			h.logger.Warn("control failed", "client", client.ID, "action", action, "error", err)
			h.sendError(client, "control", err.Error())
		}
	}
}

// Control applies a start/stop/flip/audio action to a client's session.
// For audio, a nil enabled toggles. Start and flip return once the client
// has answered the camera request.
func (h *Hub) Control(clientID, action string, enabled *bool) error {
	client := h.GetClient(clientID)
	if client == nil {
		return fiber.NewError(fiber.StatusNotFound, "client not connected")
	}
	return h.apply(client, action, enabled)
}

func (h *Hub) apply(client *Client, action string, enabled *bool) error {
	sess := client.session

	switch action {
	case protocol.ActionStart:
		return sess.Start(context.Background())
	case protocol.ActionStop:
		sess.Stop()
	case protocol.ActionFlip:
		return sess.Flip(context.Background())
	case protocol.ActionAudio:
		if enabled == nil {
			sess.ToggleAudio()
		} else {
			sess.SetAudio(*enabled)
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown action: "+action)
	}
	return nil
}

// SendPong sends a pong response to a client
func (h *Hub) SendPong(clientID, id string, pingTS int64) error {
	msg, err := protocol.NewPongMessage(id, pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	return h.sendToClient(clientID, msg)
}

// SendStatus pushes the current session status to a client.
func (h *Hub) SendStatus(clientID string) error {
	client := h.GetClient(clientID)
	if client == nil {
		return fiber.NewError(fiber.StatusNotFound, "client not connected")
	}
	msg, err := protocol.NewStatusMessage(statusData(client.session.Status()))
	if err != nil {
		return err
	}
	return h.send(client, msg)
}

func (h *Hub) sendError(client *Client, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	_ = h.send(client, msg)
}

// sendToClient sends a message to a specific client
func (h *Hub) sendToClient(clientID string, msg *protocol.Message) error {
	client := h.GetClient(clientID)
	if client == nil {
		return fiber.NewError(fiber.StatusNotFound, "client not connected")
	}
	return h.send(client, msg)
}

func (h *Hub) send(client *Client, msg *protocol.Message) error {
	h.messagesSent.Add(1)
	if err := client.Send(msg); err != nil {
		h.logger.Debug("send failed", "client", client.ID, "type", msg.Type, "error", err)
		return err
	}
	return nil
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg *protocol.Message) {
	for _, client := range h.GetClients() {
		_ = h.send(client, msg)
	}
}

// GetClient returns a client connection by ID
func (h *Hub) GetClient(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// GetClients returns all connected clients
func (h *Hub) GetClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats contains hub statistics
type Stats struct {
	ClientCount      int    `json:"client_count"`
	ActiveSessions   int    `json:"active_sessions"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesRejected   uint64 `json:"frames_rejected"`
	Announcements    uint64 `json:"announcements"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	active := 0
	for _, c := range h.GetClients() {
		if c.session.Running() {
			active++
		}
	}
	return Stats{
		ClientCount:      h.ClientCount(),
		ActiveSessions:   active,
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesRejected:   h.framesRejected.Load(),
		Announcements:    h.announcements.Load(),
	}
}

// ClientInfo contains info about a connected client
type ClientInfo struct {
	ID        string              `json:"id"`
	Connected time.Time           `json:"connected"`
	LastSeen  time.Time           `json:"last_seen"`
	Status    session.Status      `json:"status"`
	Frames    camera.MailboxStats `json:"frames"`
	Speech    announce.Stats      `json:"speech"`
}

func (h *Hub) clientInfo(c *Client) ClientInfo {
	c.mu.Lock()
	info := ClientInfo{
		ID:        c.ID,
		Connected: c.Connected,
		LastSeen:  c.LastSeen,
	}
	c.mu.Unlock()

	info.Status = c.session.Status()
	info.Frames = c.mailbox.Stats()
	info.Speech = c.speaker.Stats()
	return info
}

// GetClientInfos returns info about all connected clients
func (h *Hub) GetClientInfos() []ClientInfo {
	clients := h.GetClients()
	infos := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, h.clientInfo(c))
	}
	return infos
}
