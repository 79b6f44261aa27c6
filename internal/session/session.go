package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vsa/internal/models"
	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/socket"
)

const defaultQueueSize = 128

// Conn is the event channel a [Session] drives. [*socket.Channel] satisfies it.
type Conn interface {
	Sender
	Connect(ctx context.Context, cred shared.Credential) error
	Subscribe(event string, handler socket.Handler) (unsubscribe func())
	OnStatus(fn func(socket.StatusChange)) (unsubscribe func())
	Close() error
}

// DetailStore persists completed details across restarts.
type DetailStore interface {
	Save(ctx context.Context, d models.CompletedDetail) error
	Get(ctx context.Context, analysisID string) (*models.CompletedDetail, error)
}

// Options configures a [Session].
type Options struct {
	Model     string
	Store     DetailStore
	Logger    *log.Logger
	QueueSize int
}

// Snapshot is the observable session state after one reducer step.
type Snapshot struct {
	Seq          uint64
	Status       socket.Status
	StatusReason string
	StatusErr    error
	Registry     []models.AnalysisSummary
	Synced       bool // at least one registry snapshot has been applied
	Run          RunState
	Selection    *Selection
	View         View
	ServerError  string
}

// Session owns the event channel and the state derived from it.
//
// All inbound events and local intents are applied by a single reducer goroutine in arrival order, so the registry
// and the tracker are never touched concurrently. Observers read immutable [Snapshot] values.
type Session struct {
	conn   Conn
	store  DetailStore
	logger *log.Logger

	dispatcher *Dispatcher
	registry   *Registry
	tracker    *Tracker
	details    map[string]models.CompletedDetail
	selection  *Selection
	status     socket.StatusChange
	serverErr  string
	synced     bool
	seq        uint64

	queue   chan Event
	updates chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.RWMutex
	cred    shared.Credential
	current Snapshot
	started bool
	unsubs  []func()

	closeOnce sync.Once
}

// New creates a session over conn. Nothing happens until [Session.Start].
func New(conn Conn, opts Options) *Session {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:     conn,
		store:    opts.Store,
		logger:   opts.Logger,
		registry: NewRegistry(),
		tracker:  NewTracker(),
		details:  make(map[string]models.CompletedDetail),
		queue:    make(chan Event, opts.QueueSize),
		updates:  make(chan Snapshot, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.dispatcher = &Dispatcher{
		sender:     conn,
		model:      opts.Model,
		credential: s.credential,
		enqueue:    s.enqueue,
	}
	return s
}

// Dispatcher returns the command path of the session.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// Updates delivers snapshots as state changes. Only the latest undelivered snapshot is kept.
// The channel is closed by [Session.Close].
func (s *Session) Updates() <-chan Snapshot { return s.updates }

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Start binds cred, starts the reducer and connects.
//
// After a failed connect, or once the channel has given up reconnecting, Start may be called again with a fresh
// credential; the reducer and its state are kept. Calling it while the channel is live or still retrying fails.
func (s *Session) Start(ctx context.Context, cred shared.Credential) error {
	if err := cred.Check(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return shared.ErrClosed
	}
	if s.started && s.conn.Status() != socket.StatusDisconnected {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	first := !s.started
	prev := s.cred
	s.started = true
	s.cred = cred
	if first {
		s.unsubs = []func(){
			s.conn.OnStatus(s.onStatus),
			s.conn.Subscribe(EventConnected, s.onGreeting),
			s.conn.Subscribe(EventAnalysesList, s.inbound(EventAnalysesList, func(d json.RawMessage) (Event, error) { return DecodeSnapshot(d) })),
			s.conn.Subscribe(EventAnalysisStep, s.inbound(EventAnalysisStep, func(d json.RawMessage) (Event, error) { return DecodeStep(d) })),
			s.conn.Subscribe(EventAnalysisComplete, s.inbound(EventAnalysisComplete, func(d json.RawMessage) (Event, error) { return DecodeComplete(d) })),
			s.conn.Subscribe(EventAnalysisError, s.inbound(EventAnalysisError, func(d json.RawMessage) (Event, error) { return DecodeFailure(d) })),
			s.conn.Subscribe(EventError, s.inbound(EventError, decodeServerError)),
		}
	}
	s.mu.Unlock()

	if first {
		go s.loop()
	}

	if err := s.conn.Connect(ctx, cred); err != nil {
		s.logger.Error("connect failed", "err", err)
		s.mu.Lock()
		s.cred = prev
		s.mu.Unlock()
		return err
	}
	return nil
}

// Close tears down the channel and stops the reducer. Any in-flight run is abandoned; the backend is not told.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unsubs, started := s.unsubs, s.started
		s.unsubs = nil
		s.mu.Unlock()

		for _, unsubscribe := range unsubs {
			unsubscribe()
		}
		err = s.conn.Close()
		s.cancel()
		if started {
			<-s.done
		}
		close(s.updates)
	})
	return err
}

func (s *Session) credential() shared.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

func (s *Session) enqueue(ctx context.Context, ev Event) error {
	if s.ctx.Err() != nil {
		return shared.ErrClosed
	}

	select {
	case s.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return shared.ErrClosed
	}
}

func (s *Session) inbound(name string, decode func(json.RawMessage) (Event, error)) socket.Handler {
	return func(data json.RawMessage) {
		ev, err := decode(data)
		if err != nil {
			s.logger.Warn("dropping event", "event", name, "err", err)
			return
		}
		_ = s.enqueue(s.ctx, ev)
	}
}

func (s *Session) onStatus(ch socket.StatusChange) {
	_ = s.enqueue(s.ctx, ConnectionChanged{Change: ch})
}

func (s *Session) onGreeting(data json.RawMessage) {
	msg, err := DecodeMessage(data)
	if err != nil {
		s.logger.Warn("dropping event", "event", EventConnected, "err", err)
		return
	}
	s.logger.Info("server greeting", "message", msg)
}

func decodeServerError(data json.RawMessage) (Event, error) {
	msg, err := DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	return ServerError{Message: msg}, nil
}

func (s *Session) loop() {
	defer close(s.done)
	s.publish()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.queue:
			s.apply(ev)
			s.publish()
		}
	}
}

// apply is the reducer. It runs only on the loop goroutine.
func (s *Session) apply(ev Event) {
	switch e := ev.(type) {
	case StepPushed:
		if !s.tracker.PushStep(e.AnalysisID, e.Step) {
			s.logger.Debug("ignoring step", "analysis_id", e.AnalysisID, "step", e.Step.Step)
		}
	case RunCompleted:
		if !s.tracker.Complete(e.Detail) {
			s.logger.Debug("ignoring completion", "analysis_id", e.Detail.AnalysisID)
			return
		}
		s.logger.Info("analysis completed", "analysis_id", e.Detail.AnalysisID)
		if d := s.tracker.State().Detail; d != nil {
			s.remember(*d)
		}
		s.requestSnapshot()
	case RunFailed:
		if !s.tracker.Fail(e.AnalysisID, e.Message) {
			s.logger.Debug("ignoring failure", "analysis_id", e.AnalysisID)
			return
		}
		s.logger.Warn("analysis failed", "analysis_id", e.AnalysisID, "err", e.Message)
	case RegistrySnapshot:
		s.registry.ApplySnapshot(e.Summaries)
		s.synced = true
		for _, d := range e.Details {
			s.remember(d)
		}
		s.serverErr = ""
	case ConnectionChanged:
		s.status = e.Change
		if e.Change.Status == socket.StatusConnected {
			s.requestSnapshot()
		}
	case ServerError:
		s.logger.Warn("server error", "message", e.Message)
		s.serverErr = e.Message
	case RunRequested:
		s.logger.Info("starting analysis", "url", e.URL, "model", e.Model)
		s.selection = nil
		s.serverErr = ""
		s.tracker.Begin(e.URL)
	case AnalysisSelected:
		s.tracker.Reset()
		sel := &Selection{Summary: e.Summary}
		if d, ok := s.lookup(e.Summary.ID); ok {
			sel.Detail = &d
		}
		s.selection = sel
	case FormRequested:
		s.tracker.Reset()
		s.selection = nil
	}
}

func (s *Session) requestSnapshot() {
	if err := s.conn.Send(EventGetAnalyses, tokenPayload{Token: s.credential().Token()}); err != nil {
		s.logger.Warn("registry refresh failed", "err", err)
	}
}

func (s *Session) remember(d models.CompletedDetail) {
	if prev, ok := s.details[d.AnalysisID]; ok && prev.URL != "" && d.URL == "" {
		d.URL = prev.URL
	}
	s.details[d.AnalysisID] = d

	if s.store == nil {
		return
	}
	if err := s.store.Save(s.ctx, d); err != nil {
		s.logger.Warn("caching detail failed", "analysis_id", d.AnalysisID, "err", err)
	}
}

func (s *Session) lookup(id string) (models.CompletedDetail, bool) {
	if d, ok := s.details[id]; ok {
		return d, true
	}
	if s.store == nil || id == "" {
		return models.CompletedDetail{}, false
	}

	d, err := s.store.Get(s.ctx, id)
	if err != nil {
		if !errors.Is(err, shared.ErrAnalysisNotFound) {
			s.logger.Warn("reading cached detail failed", "analysis_id", id, "err", err)
		}
		return models.CompletedDetail{}, false
	}
	s.details[id] = *d
	return *d, true
}

func (s *Session) publish() {
	s.seq++
	run := s.tracker.State()

	var sel *Selection
	if s.selection != nil {
		c := *s.selection
		sel = &c
	}

	snap := Snapshot{
		Seq:          s.seq,
		Status:       s.status.Status,
		StatusReason: s.status.Reason,
		StatusErr:    s.status.Err,
		Registry:     s.registry.List(),
		Synced:       s.synced,
		Run:          run,
		Selection:    sel,
		View:         SelectView(run, sel),
		ServerError:  s.serverErr,
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	select {
	case s.updates <- snap:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}
