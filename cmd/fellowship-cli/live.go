package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/live"
	"github.com/gracefellowship/fellowship/internal/models"
)

const maxBackoff = 30 * time.Second

var errQuit = errors.New("quit")

// liveSession holds the REST client and the refresh token of a signed-in
// user across gateway reconnects.
type liveSession struct {
	api     *live.API
	user    models.User
	refresh string
}

func login(ctx context.Context) (*liveSession, error) {
	serverURL := envOr("SERVER_URL", "http://localhost:8080")
	username := requireEnv("FELLOWSHIP_USER")
	password := requireEnv("FELLOWSHIP_PASSWORD")

	api, s, err := live.Login(ctx, serverURL, username, password)
	if err != nil {
		return nil, err
	}
	return &liveSession{api: api, user: s.User, refresh: s.RefreshToken}, nil
}

// connect keeps a gateway connection alive for as long as ctx is, calling
// run on every fresh connection. The history a view shows is reloaded by
// run itself, since events sent while disconnected are not replayed.
func (s *liveSession) connect(ctx context.Context, run func(ctx context.Context, c *live.Client) error) error {
	url, err := s.api.GatewayURL()
	if err != nil {
		return err
	}

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			// The access token may have expired while we were away.
			if next, err := s.api.Refresh(ctx, s.refresh); err == nil {
				s.refresh = next
			} else {
				slog.Debug("token refresh failed", "error", err)
			}
		}

		c, err := live.Dial(ctx, url, s.api.Token())
		if err == nil {
			backoff = time.Second
			err = run(ctx, c)
			c.Close()
			if err == nil || errors.Is(err, errQuit) {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		say("! connection lost (%v), retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// --- chat ---

func runChat(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := login(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: login failed: %v\n", err)
		return 1
	}

	rooms, err := sess.api.Rooms(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: listing rooms: %v\n", err)
		return 1
	}
	room, ok := pickRoom(rooms, args)
	if !ok {
		fmt.Fprintln(os.Stderr, "error: no such room")
		return 1
	}

	var input <-chan inputEvent
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: terminal: %v\n", err)
			return 1
		}
		defer term.Restore(fd, state)
		con.setRaw(true)
		defer con.setRaw(false)
		input = readKeys(os.Stdin, con)
	} else {
		input = readLines(os.Stdin)
	}

	say("joined #%s as %s (%s). /quit or Ctrl-C to leave.", room.Name, sess.user.DisplayName, sess.user.Role)
	view := &chatView{
		api:    sess.api,
		room:   room,
		viewer: live.Viewer{ID: sess.user.ID, Role: sess.user.Role},
		input:  input,
	}
	if err := sess.connect(ctx, view.run); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func pickRoom(rooms []models.Room, args []string) (models.Room, bool) {
	if len(rooms) == 0 {
		return models.Room{}, false
	}
	if len(args) == 0 {
		return rooms[0], true
	}
	name := strings.TrimPrefix(args[0], "#")
	for _, r := range rooms {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return models.Room{}, false
}

type chatView struct {
	api    *live.API
	room   models.Room
	viewer live.Viewer
	input  <-chan inputEvent

	feed   *live.MessageFeed
	typist *live.Typist
}

func (v *chatView) run(ctx context.Context, c *live.Client) error {
	v.feed = live.NewMessageFeed()

	// Subscribe before loading history so nothing falls between the two;
	// the feed merges the overlap by id.
	sub, err := c.Subscribe(ctx, gateway.MessagesTopic(v.room.ID), func(rc gateway.RawChange) {
		if err := v.feed.Apply(rc); err != nil {
			slog.Warn("bad message change", "error", err)
			return
		}
		var row struct {
			ID int64 `json:"id,string"`
		}
		if json.Unmarshal(rc.New, &row) == nil {
			v.show(row.ID)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	history, err := v.api.RecentMessages(ctx, v.room.ID)
	if err != nil {
		return err
	}
	v.feed.Hydrate(history)
	for _, line := range v.feed.Render() {
		printLine(line)
	}

	presence, err := c.JoinPresence(gateway.RoomChannel(v.room.ID))
	if err != nil {
		return err
	}
	defer presence.Leave()

	var shown string
	presence.OnSync(func(state models.PresenceState) {
		if line := live.TypingLine(state, v.viewer.ID); line != shown {
			shown = line
			if line != "" {
				say("  %s", line)
			}
		}
	})

	v.typist = live.NewTypist(func(isTyping bool) {
		if err := presence.Track(isTyping); err != nil {
			slog.Debug("typing update failed", "error", err)
		}
	})
	defer v.typist.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			if err := c.Err(); err != nil {
				return err
			}
			return live.ErrClosed
		case ev, ok := <-v.input:
			if !ok {
				return errQuit
			}
			if ev.keystroke {
				v.typist.Keystroke()
				continue
			}
			if err := v.handle(ctx, strings.TrimSpace(ev.line)); err != nil {
				return err
			}
		}
	}
}

func (v *chatView) show(id int64) {
	for _, line := range v.feed.Render() {
		if line.ID == id {
			printLine(line)
			return
		}
	}
}

// handle runs one input line. API failures are printed and the view keeps
// going; only /quit ends it.
func (v *chatView) handle(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/delete":
		id, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			say("! usage: /delete <id>")
			return nil
		}
		m, ok := v.feed.Message(id)
		if !ok {
			say("! no message %d in view", id)
			return nil
		}
		if !live.CanDelete(v.viewer, m) {
			say("! you cannot delete that message")
			return nil
		}
		if err := v.api.Delete(ctx, v.room.ID, id); err != nil {
			say("! delete failed: %v", err)
		}
		return nil
	case "/reply":
		idStr, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || strings.TrimSpace(text) == "" {
			say("! usage: /reply <id> <text>")
			return nil
		}
		v.send(ctx, text, &id)
		return nil
	default:
		if strings.HasPrefix(cmd, "/") {
			say("! unknown command %s", cmd)
			return nil
		}
		v.send(ctx, line, nil)
		return nil
	}
}

func (v *chatView) send(ctx context.Context, text string, replyTo *int64) {
	v.typist.Stop()
	if _, err := v.api.Send(ctx, v.room.ID, text, replyTo); err != nil {
		say("! send failed: %v", err)
	}
}

func printLine(l live.RenderedLine) {
	if l.IsReply {
		say("      ↳ %s", l.ReplyTo)
	}
	say("[%d] %s %s: %s", l.ID, l.CreatedAt.Local().Format("15:04"), l.Author, l.Text)
}

// --- campaigns ---

func runCampaigns() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := login(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: login failed: %v\n", err)
		return 1
	}

	err = sess.connect(ctx, func(ctx context.Context, c *live.Client) error {
		board := live.NewCampaignBoard()
		sub, err := c.Subscribe(ctx, gateway.CampaignsTopic(), func(rc gateway.RawChange) {
			n, err := board.Apply(rc)
			if err != nil {
				slog.Warn("bad campaign change", "error", err)
				return
			}
			if n != nil {
				camp, _ := board.Campaign(n.CampaignID)
				say("+ %s received %s, now %s of %s", n.Title, money(n.Delta), money(n.Total), money(camp.TargetAmount))
			}
		})
		if err != nil {
			return err
		}
		defer sub.Close()

		campaigns, err := sess.api.Campaigns(ctx)
		if err != nil {
			return err
		}
		board.Hydrate(campaigns)
		for _, camp := range board.Campaigns() {
			status := "open"
			if !camp.Active {
				status = "closed"
			}
			say("%-30s %s / %s (%3.0f%%) %s", camp.Title, money(camp.CurrentAmount), money(camp.TargetAmount), camp.Progress()*100, status)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			if err := c.Err(); err != nil {
				return err
			}
			return live.ErrClosed
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// money formats minor units as a decimal amount.
func money(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
