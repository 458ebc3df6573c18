package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"duel-arena/internal/ai"
	"duel-arena/internal/client"
	"duel-arena/internal/engine"
	"duel-arena/internal/match"
	"duel-arena/internal/protocol"
	"duel-arena/internal/weapons"
)

var errMatchOver = errors.New("match over")

// bot drives one combatant over the public HTTP and WebSocket surface.
type bot struct {
	cfg   botConfig
	http  *http.Client
	codec protocol.Codec

	token   string
	actorID string
	matchID string

	mu       sync.Mutex
	ctrl     *ai.Controller
	latest   *engine.CombatState
	active   bool
	pred     *client.Predictor
	interp   *client.Interpolator
	drift    float64
	rejected int
	result   *protocol.CompletePayload
}

func newBot(cfg botConfig) *bot {
	return &bot{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		codec:  protocol.CodecByName(cfg.Codec),
		interp: client.NewInterpolator(cfg.InterpDelay),
	}
}

// setup opens a session, fetches the catalog and creates a match unless
// one was given.
func (b *bot) setup(ctx context.Context) error {
	var session struct {
		ActorID string `json:"actorId"`
		Token   string `json:"token"`
	}
	if err := b.call(ctx, http.MethodPost, "/api/session", map[string]string{"actorId": b.cfg.ActorID}, &session); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	b.token, b.actorID = session.Token, session.ActorID

	var file weapons.File
	if err := b.call(ctx, http.MethodGet, "/api/weapons", nil, &file); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	catalog, err := weapons.Parse(data)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	b.ctrl = ai.NewController(b.actorID, catalog)

	b.matchID = b.cfg.MatchID
	if b.matchID != "" {
		return nil
	}
	req := match.CreateRequest{Participants: []match.Participant{
		{ActorID: b.actorID, WeaponID: b.cfg.WeaponID},
		{IsCPU: true},
	}}
	var summary match.Summary
	if err := b.call(ctx, http.MethodPost, "/api/matches", req, &summary); err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	b.matchID = summary.ID
	log.Printf("🆕 Created match %s against CPU", b.matchID)
	return nil
}

func (b *bot) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(b.cfg.Server, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *bot) wsURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(b.cfg.Server, "/") + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", b.token)
	q.Set("codec", b.codec.Name())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// play joins the match and feeds inputs until it completes or ctx ends.
func (b *bot) play(ctx context.Context) error {
	target, err := b.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(event string, payload interface{}) error {
		frame, err := b.codec.Encode(event, payload)
		if err != nil {
			return err
		}
		frameType := websocket.TextMessage
		if b.codec.Binary() {
			frameType = websocket.BinaryMessage
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(frameType, frame)
	}

	if err := write(protocol.EventJoin, protocol.JoinPayload{MatchID: b.matchID}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- b.readLoop(conn) }()

	ticker := time.NewTicker(time.Second / time.Duration(b.cfg.InputHz))
	defer ticker.Stop()
	report := time.NewTicker(b.cfg.ReportEvery)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			write(protocol.EventLeave, protocol.LeavePayload{MatchID: b.matchID})
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, errMatchOver) {
				return nil
			}
			return err
		case <-report.C:
			b.logProgress()
		case <-ticker.C:
			in, ok := b.nextInput()
			if !ok {
				continue
			}
			payload := protocol.InputPayload{MatchID: b.matchID, ActorID: b.actorID, Input: toWire(in)}
			if err := write(protocol.EventInput, payload); err != nil {
				return fmt.Errorf("send input: %w", err)
			}
		}
	}
}

func (b *bot) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg, err := b.codec.Decode(data)
		if err != nil {
			log.Printf("⚠️ Undecodable frame: %v", err)
			continue
		}
		if err := b.handle(msg); err != nil {
			return err
		}
	}
}

func (b *bot) handle(msg protocol.Message) error {
	switch msg.Type {
	case protocol.EventJoined:
		var p protocol.JoinedPayload
		if err := msg.Bind(&p); err != nil {
			return err
		}
		b.mu.Lock()
		b.active = p.Status == match.StatusActive.String()
		b.mu.Unlock()
		log.Printf("🤝 Joined %s as %s (status %s, resumed %v)", p.MatchID, p.ActorID, p.Status, p.Resumed)
	case protocol.EventStatus:
		var p protocol.StatusPayload
		if err := msg.Bind(&p); err != nil {
			return err
		}
		b.mu.Lock()
		b.active = p.Status == match.StatusActive.String()
		b.mu.Unlock()
		if p.CountdownRemaining > 0 {
			log.Printf("⏳ %s, %.1fs to go", p.Status, p.CountdownRemaining)
		} else {
			log.Printf("📣 Match %s", p.Status)
		}
	case protocol.EventState:
		var state protocol.StatePayload
		if err := msg.Bind(&state); err != nil {
			return err
		}
		b.observe(state)
	case protocol.EventError:
		var p protocol.ErrorPayload
		if err := msg.Bind(&p); err != nil {
			return err
		}
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()
		if p.Reason == "match_not_found" || p.Reason == "match_complete" {
			return fmt.Errorf("join refused: %s", p.Reason)
		}
	case protocol.EventComplete:
		var p protocol.CompletePayload
		if err := msg.Bind(&p); err != nil {
			return err
		}
		b.mu.Lock()
		b.result = &p
		b.mu.Unlock()
		return errMatchOver
	}
	return nil
}

// observe feeds a snapshot to the predictor and interpolator.
func (b *bot) observe(state engine.CombatState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.interp.Push(state)
	b.latest = &state
	if b.pred == nil {
		pred, err := client.NewPredictor(b.actorID, state, b.cfg.TickHz)
		if err != nil {
			return
		}
		b.pred = pred
		return
	}
	b.drift = b.pred.Reconcile(state)
}

// nextInput asks the controller for an input and stamps it through the
// predictor. Nothing is sent before the match is active.
func (b *bot) nextInput() (engine.Input, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active || b.latest == nil || b.pred == nil {
		return engine.Input{}, false
	}
	return b.pred.Apply(b.ctrl.NextInput(b.latest)), true
}

func (b *bot) logProgress() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil || b.pred == nil {
		return
	}
	self, _ := b.latest.Combatant(b.actorID)
	opp, _ := b.latest.Opponent(b.actorID)
	var rendered int
	if combatants, ok := b.interp.Current(); ok {
		rendered = len(combatants)
	}
	log.Printf("📊 t=%.1fs hp %d vs %d | pending %d drift %.2f | buffered %d (%d drawn) | rejected %d",
		b.latest.Time, self.HP, opp.HP, b.pred.Pending(), b.drift, b.interp.Len(), rendered, b.rejected)
}

// Result returns the completion payload once the match ended.
func (b *bot) Result() (protocol.CompletePayload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result == nil {
		return protocol.CompletePayload{}, false
	}
	return *b.result, true
}

// toWire converts engine input to the wire form.
func toWire(in engine.Input) protocol.InputState {
	out := protocol.InputState{
		MoveX:  in.Move.X,
		MoveY:  in.Move.Y,
		Facing: in.Facing,
		Seq:    in.Seq,
	}
	for _, a := range in.Actions {
		out.Actions = append(out.Actions, protocol.ActionPayload{
			Type:     a.Kind.String(),
			WeaponID: a.WeaponID,
			DirX:     a.Direction.X,
			DirY:     a.Direction.Y,
		})
	}
	return out
}
