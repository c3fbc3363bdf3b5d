package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elum-utils/warden/interfaces"
	"github.com/elum-utils/warden/models"
)

type sentMessage struct {
	id      string
	channel string
	text    string
}

type mockPlatform struct {
	mu      sync.Mutex
	nextID  int
	deleted []string
	sent    []sentMessage
	roles   map[string]map[string]string
	members map[models.UserKey]map[string]struct{}
	created int

	deleteErr error
	sendErr   error
	ensureErr error
	addErr    error
	removeErr error
	findErr   error
	panicOn   string
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		roles:   make(map[string]map[string]string),
		members: make(map[models.UserKey]map[string]struct{}),
	}
}

var _ interfaces.Platform = (*mockPlatform)(nil)

func (m *mockPlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	if m.panicOn == "delete" {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, channelID+"/"+messageID)
	return nil
}

func (m *mockPlatform) SendMessage(_ context.Context, channelID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextID++
	id := fmt.Sprintf("notice-%d", m.nextID)
	m.sent = append(m.sent, sentMessage{id: id, channel: channelID, text: text})
	return id, nil
}

func (m *mockPlatform) EnsureRole(_ context.Context, guildID, name string, deny models.Permission) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensureErr != nil {
		return "", m.ensureErr
	}
	if !deny.Has(models.MuteDenials) {
		return "", errors.New("mute role must deny send and speak")
	}
	if m.roles[guildID] == nil {
		m.roles[guildID] = make(map[string]string)
	}
	if id, ok := m.roles[guildID][name]; ok {
		return id, nil
	}
	m.created++
	id := fmt.Sprintf("role-%d", m.created)
	m.roles[guildID][name] = id
	return id, nil
}

func (m *mockPlatform) FindRole(_ context.Context, guildID, name string) (string, bool, error) {
	if m.panicOn == "find" {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return "", false, m.findErr
	}
	id, ok := m.roles[guildID][name]
	return id, ok, nil
}

func (m *mockPlatform) AddRole(_ context.Context, guildID, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	k := models.UserKey{GuildID: guildID, UserID: userID}
	if m.members[k] == nil {
		m.members[k] = make(map[string]struct{})
	}
	m.members[k][roleID] = struct{}{}
	return nil
}

func (m *mockPlatform) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	if m.panicOn == "remove" {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.members[models.UserKey{GuildID: guildID, UserID: userID}], roleID)
	return nil
}

func (m *mockPlatform) HasRole(_ context.Context, guildID, userID, roleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[models.UserKey{GuildID: guildID, UserID: userID}][roleID]
	return ok, nil
}

func (m *mockPlatform) hasMute(guildID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.roles[guildID]["Muted"]
	if !ok {
		return false
	}
	_, has := m.members[models.UserKey{GuildID: guildID, UserID: userID}][id]
	return has
}

func (m *mockPlatform) sentTo(channelID string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.channel == channelID {
			out = append(out, s)
		}
	}
	return out
}

func (m *mockPlatform) deletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}

type scheduledTask struct {
	after   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// manualScheduler only runs tasks when the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*scheduledTask
}

var _ interfaces.Scheduler = (*manualScheduler)(nil)

func (s *manualScheduler) Schedule(after time.Duration, fn func()) func() bool {
	t := &scheduledTask{after: after, fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (s *manualScheduler) pending(after time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.after == after && !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs every pending task scheduled with the given delay.
func (s *manualScheduler) fire(after time.Duration) int {
	s.mu.Lock()
	var run []func()
	for _, t := range s.tasks {
		if t.after == after && !t.stopped && !t.fired {
			t.fired = true
			run = append(run, t.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range run {
		fn()
	}
	return len(run)
}

type mockSource struct {
	patterns []string
	err      error
}

func (m mockSource) GetPatterns(context.Context) ([]string, error) {
	return m.patterns, m.err
}

type captureLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *captureLogger) Debug(string, map[string]any) {}
func (l *captureLogger) Info(string, map[string]any)  {}
func (l *captureLogger) Warn(msg string, _ map[string]any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *captureLogger) Error(msg string, _ map[string]any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}
