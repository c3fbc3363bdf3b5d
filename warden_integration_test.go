package warden_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/elum-utils/warden"
	"github.com/elum-utils/warden/adapters/storage"
	"github.com/elum-utils/warden/engine"
	"github.com/elum-utils/warden/models"
)

// memoryGuild is a single-guild platform kept in memory.
type memoryGuild struct {
	mu      sync.Mutex
	seq     int
	roles   map[string]string
	members map[string]map[string]bool
	live    map[string]string
}

func newMemoryGuild() *memoryGuild {
	return &memoryGuild{
		roles:   make(map[string]string),
		members: make(map[string]map[string]bool),
		live:    make(map[string]string),
	}
}

func (g *memoryGuild) DeleteMessage(_ context.Context, _, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.live, messageID)
	return nil
}

func (g *memoryGuild) SendMessage(_ context.Context, _, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("m-%d", g.seq)
	g.live[id] = text
	return id, nil
}

func (g *memoryGuild) EnsureRole(_ context.Context, _, name string, _ models.Permission) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.roles[name]; ok {
		return id, nil
	}
	g.roles[name] = "role-" + name
	return g.roles[name], nil
}

func (g *memoryGuild) FindRole(_ context.Context, _, name string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.roles[name]
	return id, ok, nil
}

func (g *memoryGuild) AddRole(_ context.Context, _, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.members[userID] == nil {
		g.members[userID] = make(map[string]bool)
	}
	g.members[userID][roleID] = true
	return nil
}

func (g *memoryGuild) RemoveRole(_ context.Context, _, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members[userID], roleID)
	return nil
}

func (g *memoryGuild) HasRole(_ context.Context, _, userID, roleID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members[userID][roleID], nil
}

func (g *memoryGuild) liveMessages() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

func openPatterns(t *testing.T, extra ...string) *storage.SQLAdapter {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	src, err := storage.NewSQLAdapter(db, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := src.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Seed(ctx, engine.DefaultPatterns); err != nil {
		t.Fatal(err)
	}
	for _, p := range extra {
		if err := src.AddPattern(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	return src
}

func TestWardenEndToEnd(t *testing.T) {
	ctx := context.Background()
	guild := newMemoryGuild()
	w := warden.New(warden.Options{
		Platform:     guild,
		Patterns:     openPatterns(t, `b+\W*[o0]+\W*z+\W*o+`),
		MaxWarnings:  3,
		MuteDuration: 150 * time.Millisecond,
		NoticeTTL:    50 * time.Millisecond,
	})
	if err := w.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := w.Stats().Patterns; got != len(engine.DefaultPatterns)+1 {
		t.Fatalf("patterns loaded = %d", got)
	}

	unmuted := make(chan warden.ModerationEvent, 1)
	if err := w.OnUnmute(func(_ context.Context, e warden.ModerationEvent) error {
		unmuted <- e
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	texts := []string{"n i g g e r", "you b0zo", "Ｆ４ＧＧＯＴ"}
	var last models.Outcome
	for i, text := range texts {
		out, err := w.HandleMessage(ctx, models.Message{
			ID: fmt.Sprintf("in-%d", i), GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: text,
		})
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if !out.Verdict.Matched {
			t.Fatalf("message %q was not flagged", text)
		}
		last = out
	}
	if !last.Muted || last.Escalation.Count != 3 {
		t.Fatalf("third violation should mute: %+v", last)
	}
	if w.Ledger().Count(models.UserKey{GuildID: "g1", UserID: "u1"}) != 0 {
		t.Fatal("ledger must reset once the user is muted")
	}
	muted, err := w.IsMuted(ctx, "g1", "u1")
	if err != nil || !muted {
		t.Fatalf("IsMuted = %v, %v", muted, err)
	}

	select {
	case e := <-unmuted:
		if e.UserID != "u1" || e.Source != "timer" {
			t.Fatalf("unexpected unmute event: %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("mute was not lifted")
	}
	muted, _ = w.IsMuted(ctx, "g1", "u1")
	if muted {
		t.Fatal("user still muted after expiry")
	}

	deadline := time.Now().Add(3 * time.Second)
	for guild.liveMessages() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d notices were not cleaned up", guild.liveMessages())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWardenCommands(t *testing.T) {
	ctx := context.Background()
	guild := newMemoryGuild()
	w := warden.New(warden.Options{Platform: guild, MaxWarnings: 5})

	for i := 0; i < 2; i++ {
		if _, err := w.HandleMessage(ctx, models.Message{ID: "m", GuildID: "g1", ChannelID: "c1", AuthorID: "u2", Content: "f4gg0t"}); err != nil {
			t.Fatal(err)
		}
	}

	cmd := models.Command{Name: models.CommandWarnings, GuildID: "g1", ChannelID: "c1", InvokerID: "mod", TargetID: "u2"}
	reply, err := w.HandleCommand(ctx, cmd)
	if err != nil || reply.Content != "⚠️ <@u2> has 2/5 warnings." {
		t.Fatalf("warnings reply = %q, %v", reply.Content, err)
	}

	cmd.Name = models.CommandMute
	if _, err := w.HandleCommand(ctx, cmd); err != nil {
		t.Fatal(err)
	}
	cmd.Name = models.CommandWarnings
	reply, _ = w.HandleCommand(ctx, cmd)
	if reply.Content != "⚠️ <@u2> has 2/5 warnings. Currently muted." {
		t.Fatalf("warnings reply = %q", reply.Content)
	}

	cmd.Name = models.CommandUnmute
	if _, err := w.HandleCommand(ctx, cmd); err != nil {
		t.Fatal(err)
	}
	cmd.Name = models.CommandClearWarnings
	reply, _ = w.HandleCommand(ctx, cmd)
	if reply.Content != "✅ Warnings reset for <@u2>." {
		t.Fatalf("clear reply = %q", reply.Content)
	}
	if n := w.Ledger().Count(models.UserKey{GuildID: "g1", UserID: "u2"}); n != 0 {
		t.Fatalf("count after clear = %d", n)
	}
}
