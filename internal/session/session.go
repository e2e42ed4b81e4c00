// Package session runs one live review of a case: a playback cursor, the
// transcript view and the mention resolvers, driven by a remote client over a
// message stream.
//
// Every piece of session state is owned by a single event loop. Client
// messages, status polls and case fetches are posted into the loop, so the
// cursor sees one ordered stream of calls.
package session

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/case-review/internal/cursor"
	"github.com/codebuildervaibhav/case-review/internal/poller"
	"github.com/codebuildervaibhav/case-review/internal/transcript"
	"github.com/codebuildervaibhav/case-review/internal/types"
	"github.com/codebuildervaibhav/case-review/internal/views"
)

// CaseLoader reads case status and data
type CaseLoader interface {
	GetStatus(id string) (string, error)
	GetCase(id string) (*types.Case, error)
}

// Config holds session settings
type Config struct {
	PollInterval   time.Duration
	OutboundBuffer int
	// AudioURL builds the URL the client loads a source from
	AudioURL func(caseID, filename string) string
}

// DefaultAudioURL is the audio route served by the HTTP handlers
func DefaultAudioURL(caseID, filename string) string {
	return fmt.Sprintf("/cases/%s/audio/%s", url.PathEscape(caseID), url.PathEscape(filename))
}

// Session is one client's review of one case
type Session struct {
	ID     string
	caseID string
	loader CaseLoader
	cfg    Config

	events chan func()
	out    chan Out
	done   chan struct{}
	ctx    context.Context

	// owned by the event loop
	cursor    *cursor.Cursor
	library   *transcript.Library
	view      *views.TranscriptView
	mentions  *views.GraphMentionResolver
	citations *views.CitationResolver
	caseData  *types.Case
	status    string
	poller    *poller.StatusPoller
}

// New creates a session for caseID. Nothing happens until Run is called.
func New(caseID string, loader CaseLoader, cfg Config) *Session {
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = 256
	}
	if cfg.AudioURL == nil {
		cfg.AudioURL = DefaultAudioURL
	}

	s := &Session{
		ID:      uuid.New().String(),
		caseID:  caseID,
		loader:  loader,
		cfg:     cfg,
		events:  make(chan func(), 64),
		out:     make(chan Out, cfg.OutboundBuffer),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		library: transcript.NewLibrary(nil),
	}
	s.cursor = cursor.New(wsPlayer{s: s})
	s.view = views.NewTranscriptView(s.cursor, s.library, s.onHighlight)
	s.cursor.Subscribe(s.onCursor)
	return s
}

// Outbox delivers messages for the client. It is closed when Run returns.
func (s *Session) Outbox() <-chan Out {
	return s.out
}

// Dispatch hands a client message to the event loop. It reports false once
// the session has ended.
func (s *Session) Dispatch(msg Message) bool {
	return s.post(func() { s.handle(msg) })
}

func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Run processes events until ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	log.Printf("Session %s: reviewing case %s", s.ID, s.caseID)
	s.startPolling()

	for {
		select {
		case fn := <-s.events:
			fn()
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		}
	}
}

func (s *Session) shutdown() {
	close(s.done)
	if s.poller != nil {
		s.poller.Stop()
	}
	s.view.Close()
	if err := s.cursor.Close(); err != nil {
		log.Printf("Session %s: failed to release player: %v", s.ID, err)
	}
	close(s.out)
	log.Printf("Session %s: closed", s.ID)
}

// send queues a message for the client. It only runs on the event loop.
// Once ctx is cancelled a message is dropped only if the outbox is full.
func (s *Session) send(o Out) {
	select {
	case s.out <- o:
		return
	default:
	}
	select {
	case s.out <- o:
	case <-s.ctx.Done():
		log.Printf("Session %s: dropped %s message", s.ID, o.Type())
	}
}

func (s *Session) sendError(format string, args ...any) {
	s.send(Out{"type": "error", "error": fmt.Sprintf(format, args...)})
}

func (s *Session) startPolling() {
	if s.poller != nil {
		// the old poller may be posting; do not wait for it on the loop
		go s.poller.Stop()
	}
	s.poller = poller.NewStatusPoller(s.loader, s.caseID, s.cfg.PollInterval, func(status string) {
		s.post(func() { s.applyStatus(status) })
	})
	s.poller.Start()
}

func (s *Session) applyStatus(status string) {
	s.status = status
	s.send(Out{"type": "status", "status": status})
	if status == types.StatusCompleted {
		s.fetchCase()
	}
}

// fetchCase loads the case off the loop and posts the result back
func (s *Session) fetchCase() {
	go func() {
		c, err := s.loader.GetCase(s.caseID)
		s.post(func() {
			if err != nil {
				log.Printf("Session %s: failed to fetch case %s: %v", s.ID, s.caseID, err)
				s.sendError("failed to fetch case: %v", err)
				return
			}
			s.applyCase(c)
		})
	}()
}

func (s *Session) applyCase(c *types.Case) {
	s.caseData = c
	s.library.Replace(c.Transcripts)
	s.mentions = views.NewGraphMentionResolver(s.cursor, c.Graph, c.Files)
	s.citations = views.NewCitationResolver(s.cursor, c.Files)

	s.send(Out{
		"type":      "case",
		"id":        c.ID,
		"files":     c.Files,
		"summaries": c.Summaries,
		"graph":     c.Graph,
	})

	src := s.cursor.Source()
	if src == "" || !s.knownSource(src) {
		first := ""
		if len(c.Files) > 0 {
			first = c.Files[0]
		}
		if first != "" || src != "" {
			s.cursor.SelectSource(first)
		}
		return
	}

	// same source, new data
	s.view.Refresh()
	s.sendTranscript(src)
}

func (s *Session) knownSource(src string) bool {
	if s.caseData == nil {
		return false
	}
	for _, f := range s.caseData.Files {
		if f == src {
			return true
		}
	}
	return false
}

func (s *Session) onHighlight(source string, index int) {
	s.send(Out{"type": "highlight", "source": source, "index": index})
}

func (s *Session) onCursor(ev cursor.Event) {
	if ev.Kind == cursor.SourceChanged {
		s.sendTranscript(ev.Snapshot.Source)
	}
	s.send(stateOut(ev.Snapshot, s.cursor.Progress()))
}

func (s *Session) sendTranscript(src string) {
	msg := Out{"type": "transcript", "source": src, "segments": []SegmentView{}, "active": s.view.Active()}
	if idx := s.view.Index(); idx != nil && idx.Source() == src {
		msg["segments"] = SegmentViews(idx.Segments())
	}
	if s.caseData != nil {
		msg["summary"] = s.caseData.Summaries[src]
	}
	s.send(msg)
}

func (s *Session) handle(msg Message) {
	switch msg.Type {
	case MsgTime:
		s.cursor.OnTimeAdvance(msg.Gen, msg.T)
	case MsgDuration:
		d := msg.D
		if msg.Infinite {
			d = math.Inf(1)
		}
		s.cursor.OnDurationKnown(msg.Gen, d)
	case MsgEnded:
		s.cursor.OnEnded(msg.Gen)
	case MsgSelect:
		if msg.Source != "" && !s.knownSource(msg.Source) {
			s.sendError("unknown source %q", msg.Source)
			return
		}
		s.cursor.SelectSource(msg.Source)
	case MsgSeek:
		s.cursor.RequestSeek(msg.T)
	case MsgScrub:
		snap := s.cursor.Snapshot()
		if !snap.DurationKnown || msg.Fraction < 0 || msg.Fraction > 1 {
			return
		}
		s.cursor.RequestSeek(msg.Fraction * snap.Duration)
	case MsgToggle:
		s.cursor.TogglePlayPause()
	case MsgSegment:
		if !s.view.Click(msg.Index) {
			s.sendError("no transcript segment %d", msg.Index)
		}
	case MsgNode:
		mentions := []views.Mention{}
		if s.mentions != nil {
			mentions = s.mentions.Mentions(msg.Node)
		}
		s.send(Out{"type": "mentions", "node": msg.Node, "mentions": mentions})
	case MsgMention:
		if s.mentions == nil {
			s.sendUnresolved(views.Mention{Raw: msg.Raw, Label: msg.Raw})
			return
		}
		if m, ok := s.mentions.Jump(msg.Raw); !ok {
			s.sendUnresolved(m)
		}
	case MsgCitation:
		if s.citations == nil {
			s.sendUnresolved(views.Mention{Raw: msg.URL, Label: msg.URL})
			return
		}
		if m, ok := s.citations.Jump(msg.URL); !ok {
			s.sendUnresolved(m)
		}
	case MsgRefresh:
		s.startPolling()
	default:
		s.sendError("unknown message type %q", msg.Type)
	}
}

func (s *Session) sendUnresolved(m views.Mention) {
	s.send(Out{"type": "unresolved", "raw": m.Raw, "label": m.Label})
}

// wsPlayer commands the client's media element through the outbox
type wsPlayer struct {
	s *Session
}

func (p wsPlayer) Load(req cursor.LoadRequest) {
	p.s.send(Out{
		"type":   "load",
		"gen":    req.Generation,
		"source": req.Source,
		"url":    p.s.cfg.AudioURL(p.s.caseID, req.Source),
	})
}

func (p wsPlayer) Play()  { p.s.send(Out{"type": "play"}) }
func (p wsPlayer) Pause() { p.s.send(Out{"type": "pause"}) }

func (p wsPlayer) Seek(t float64) {
	p.s.send(Out{"type": "seek", "t": t})
}

func (p wsPlayer) Close() error {
	p.s.send(Out{"type": "unload"})
	return nil
}
