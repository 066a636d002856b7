package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-billsense/internal/timeutil"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

// MailboxStats counts frame traffic through a Mailbox.
type MailboxStats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`  // overwritten before anyone captured them
	Reused    uint64 `json:"reused"`   // captured again because nothing newer arrived
	Rejected  uint64 `json:"rejected"` // pushed while closed
}

// Mailbox is a FrameSource fed by someone else: a browser over a websocket,
// a stream reader, a test. It keeps only the latest JPEG. Publishing
// overwrites the previous frame; capturing decodes whatever is newest.
type Mailbox struct {
	clock  timeutil.Clock
	maxAge time.Duration

	// OnOpen runs when the detection loop opens the source, outside the lock.
	// Returning an error keeps the mailbox closed.
	OnOpen func(ctx context.Context, facing Facing) error

	// OnClose runs after the mailbox is closed.
	OnClose func()

	mu       sync.Mutex
	open     bool
	facing   Facing
	jpeg     []byte
	at       time.Time
	consumed bool

	published atomic.Uint64
	taken     atomic.Uint64
	dropped   atomic.Uint64
	reused    atomic.Uint64
	rejected  atomic.Uint64
}

// MailboxOption configures a Mailbox.
type MailboxOption func(*Mailbox)

// WithMaxFrameAge sets how old the latest frame may be and still be
// captured. Zero disables the check.
func WithMaxFrameAge(d time.Duration) MailboxOption {
	return func(m *Mailbox) { m.maxAge = d }
}

// WithMailboxClock sets the clock used to age frames.
func WithMailboxClock(c timeutil.Clock) MailboxOption {
	return func(m *Mailbox) { m.clock = c }
}

// NewMailbox creates a closed mailbox.
func NewMailbox(opts ...MailboxOption) *Mailbox {
	m := &Mailbox{
		clock:  timeutil.RealClock{},
		maxAge: 3 * time.Second,
		facing: FacingBack,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open implements FrameSource.
func (m *Mailbox) Open(ctx context.Context, facing Facing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.open = true
	m.facing = facing
	m.jpeg = nil
	m.consumed = false
	hook := m.OnOpen
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, facing); err != nil {
			m.mu.Lock()
			m.open = false
			m.mu.Unlock()
			return err
		}
	}
	return nil
}

// Publish stores jpeg as the latest frame. The slice must not be modified
// afterwards. Frames pushed while the mailbox is closed are rejected.
func (m *Mailbox) Publish(jpeg []byte) error {
	if len(jpeg) == 0 {
		return detect.ErrEmptyFrame
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		m.rejected.Add(1)
		return ErrNotOpen
	}
	if m.jpeg != nil && !m.consumed {
		m.dropped.Add(1)
	}
	m.jpeg = jpeg
	m.at = m.clock.Now()
	m.consumed = false
	m.published.Add(1)
	return nil
}

// IsReady implements FrameSource.
func (m *Mailbox) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked()
}

func (m *Mailbox) liveLocked() bool {
	if !m.open || m.jpeg == nil {
		return false
	}
	return m.maxAge <= 0 || m.clock.Since(m.at) <= m.maxAge
}

// Capture implements FrameSource. The latest frame is decoded on every call.
func (m *Mailbox) Capture() (detect.Frame, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return detect.Frame{}, ErrNotOpen
	}
	if !m.liveLocked() {
		m.mu.Unlock()
		return detect.Frame{}, ErrNoFrame
	}
	data := m.jpeg
	if m.consumed {
		m.reused.Add(1)
	}
	m.consumed = true
	m.mu.Unlock()

	m.taken.Add(1)
	return detect.DecodeFrame(data)
}

// Close implements FrameSource.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	wasOpen := m.open
	m.open = false
	m.jpeg = nil
	hook := m.OnClose
	m.mu.Unlock()

	if wasOpen && hook != nil {
		hook()
	}
	return nil
}

// Facing returns the facing the mailbox was last opened with.
func (m *Mailbox) Facing() Facing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facing
}

// IsOpen reports whether the detection loop currently holds the mailbox.
func (m *Mailbox) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Stats returns a snapshot of the counters.
func (m *Mailbox) Stats() MailboxStats {
	return MailboxStats{
		Published: m.published.Load(),
		Consumed:  m.taken.Load(),
		Dropped:   m.dropped.Load(),
		Reused:    m.reused.Load(),
		Rejected:  m.rejected.Load(),
	}
}

var _ FrameSource = (*Mailbox)(nil)
