package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"cardbot/backend"
	"cardbot/logging"
	"cardbot/util"
)

var loopLogger = log.With().Str("logger_name", "session::loop").Logger()

// Manager runs one session loop per active game and dispatches bus
// broadcasts into the matching session. It is the single owner of
// session lifecycle: loops start here and teardown ends here.
type Manager struct {
	registry  *Registry
	adapters  map[string]Adapter
	messenger Messenger
	snapshots SnapshotCache
	closed    ClosedMarker
	resolve   ChannelResolver
	timings   util.Timings
}

type ManagerConfig struct {
	Registry       *Registry
	Messenger      Messenger
	Snapshots      SnapshotCache
	Closed         ClosedMarker
	ResolveChannel ChannelResolver
	Timings        util.Timings
}

func NewManager(cfg ManagerConfig) *Manager {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		registry:  registry,
		adapters:  make(map[string]Adapter),
		messenger: cfg.Messenger,
		snapshots: cfg.Snapshots,
		closed:    cfg.Closed,
		resolve:   cfg.ResolveChannel,
		timings:   cfg.Timings,
	}
}

func (m *Manager) RegisterAdapter(adapter Adapter) {
	m.adapters[adapter.GameType()] = adapter
}

func (m *Manager) Adapter(gameType string) (Adapter, bool) {
	adapter, ok := m.adapters[gameType]
	return adapter, ok
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// AttachPlayer upserts the player into the session and enqueues the
// game's initial request on the player's behalf.
func (m *Manager) AttachPlayer(gameType string, gameID string, player *PlayerState) error {
	adapter, ok := m.adapters[gameType]
	if !ok {
		return errors.Errorf("No adapter registered for game type [%s]", gameType)
	}
	st := m.registry.AttachPlayer(gameID, player, OutboundRequest{Kind: adapter.InitialRequestKind()})
	// Broadcasts can arrive before the loop starts; the session must
	// already know its game type to route them.
	st.SetGameType(gameType)
	return nil
}

// StartSession launches the session loop for the game as a detached
// unit of work. The caller (an interaction handler on a latency
// budget) is never blocked; a loop failure surfaces as a logged
// background-task failure.
func (m *Manager) StartSession(ctx context.Context, gameType string, gameID string) {
	go func() {
		err := m.runSession(ctx, gameType, gameID)
		if err != nil {
			loopLogger.Error().
				Str(logging.GameIDKey, gameID).
				Str(logging.GameTypeKey, gameType).
				Msgf("Session loop failed: %v", err)
		}
	}()
}

// HandleGameBroadcast ingests a broadcast that arrived over the bus
// instead of the session's own connection. Unknown or recently closed
// games drop the message.
func (m *Manager) HandleGameBroadcast(gameID string, frame []byte) {
	if m.closed != nil && m.closed.WasClosed(gameID) {
		return
	}
	st, ok := m.registry.Get(gameID)
	if !ok {
		return
	}
	gameType := st.GameType()
	adapter, ok := m.adapters[gameType]
	if !ok {
		loopLogger.Error().
			Str(logging.GameIDKey, gameID).
			Str(logging.GameTypeKey, gameType).
			Msg("Dropping broadcast for session with no adapter")
		return
	}
	m.applyFrame(st, adapter, frame)
}

func (m *Manager) runSession(ctx context.Context, gameType string, gameID string) error {
	adapter, ok := m.adapters[gameType]
	if !ok {
		return errors.Errorf("No adapter registered for game type [%s]", gameType)
	}

	st := m.registry.GetOrCreate(gameID)

	// Idempotent start: only one loop per game id. Progress may already
	// have advanced if a bus broadcast beat the loop here; that must
	// not stop the loop, only a closed session does.
	st.Lock()
	if st.loopRunning || st.ProgressLocked() == ProgressClosed {
		st.Unlock()
		return nil
	}
	st.loopRunning = true
	st.gameType = gameType
	st.Unlock()

	sessCtx, sessCancel := context.WithCancel(ctx)
	defer sessCancel()

	conn, err := adapter.OpenConnection(sessCtx, gameID)
	if err != nil {
		// Could not reach the backend at all. Close and tear down so
		// the registry never holds a session with no live loop.
		m.close(st)
		m.teardown(st, adapter, nil)
		return errors.Wrapf(err, "Unable to open backend connection for game %s", gameID)
	}

	loopLogger.Info().
		Str(logging.GameIDKey, gameID).
		Str(logging.GameTypeKey, gameType).
		Msg("Session loop started")

	// The reader owns the receive side of the connection for the whole
	// session, so cancelling a loop iteration never aborts a read
	// mid-frame.
	frames := make(chan []byte)
	connErrs := make(chan error, 1)
	go func() {
		for {
			data, err := conn.Receive(sessCtx)
			if err != nil {
				connErrs <- err
				return
			}
			select {
			case frames <- data:
			case <-sessCtx.Done():
				return
			}
		}
	}()

	var fatalErr error
	for st.Progress() != ProgressClosed {
		events := m.raceOnce(sessCtx,
			func(opCtx context.Context) loopEvent {
				return m.relayOnce(opCtx, sessCtx, st, adapter, conn)
			},
			func(opCtx context.Context) loopEvent {
				return ingestOnce(opCtx, frames, connErrs)
			},
			func(opCtx context.Context) loopEvent {
				return watchdogOnce(opCtx, st, m.timings.IdleTimeoutDuration())
			},
		)
		if len(events) == 0 {
			if sessCtx.Err() == nil {
				continue
			}
			// Session context cancelled from outside.
			m.close(st)
			break
		}
		for _, ev := range events {
			switch ev.kind {
			case evRelayed, evQueuePending:
				// Keep looping.
			case evFrame:
				m.applyFrame(st, adapter, ev.frame)
			case evCloseRequested:
				loopLogger.Info().Str(logging.GameIDKey, gameID).Msg("Close request relayed; shutting session down")
				m.close(st)
			case evIdleTimeout:
				loopLogger.Info().Str(logging.GameIDKey, gameID).Msg("Session idle timeout; shutting session down")
				m.close(st)
			case evConnFailed:
				// Unrecoverable connection error: close and tear down
				// rather than leaving a registered session with no
				// working connection.
				fatalErr = ev.err
				m.close(st)
			}
		}
	}

	sessCancel()
	m.teardown(st, adapter, conn)
	return fatalErr
}

func (m *Manager) close(st *State) {
	st.Lock()
	st.AdvanceLocked(ProgressClosed)
	st.Unlock()
}

// applyFrame handles one backend broadcast end-to-end under the
// session lock. Decode failures are payload errors: logged, the frame
// dropped, the session untouched.
func (m *Manager) applyFrame(st *State, adapter Adapter, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		loopLogger.Error().
			Str(logging.GameIDKey, st.GameID).
			Str("payload", string(raw)).
			Msgf("Dropping backend frame: %v", err)
		return
	}
	if frame.Kind == FrameEnding {
		frame.Progress = ProgressEnding
	}

	st.Lock()
	defer st.Unlock()

	if frame.Progress != st.ProgressLocked() {
		if frame.Progress < st.ProgressLocked() {
			// Duplicate or out-of-order broadcast of an earlier stage;
			// progress never regresses.
			return
		}
		// Reaction runs before the new stage is committed.
		err = adapter.OnProgressChange(st, frame)
		if err != nil {
			loopLogger.Error().
				Str(logging.GameIDKey, st.GameID).
				Str(logging.ProgressKey, frame.Progress.String()).
				Msgf("Progress-change reaction failed: %v", err)
		}
		st.AdvanceLocked(frame.Progress)
		if frame.Kind == FrameSnapshot {
			st.MergeSnapshotLocked(frame.Players, m.resolve)
		}
		if frame.Progress == ProgressEnding {
			// The final-result reaction has fired; hand the loop a clean
			// shutdown trigger instead of relying on the idle watchdog.
			if st.outbound != nil {
				st.outbound.Push(OutboundRequest{Kind: adapter.CloseRequestKind()})
			} else {
				st.AdvanceLocked(ProgressClosed)
			}
		}
	} else {
		err = adapter.OnSameProgress(st, frame)
		if err != nil {
			loopLogger.Error().
				Str(logging.GameIDKey, st.GameID).
				Msgf("Same-progress reaction failed: %v", err)
		}
		st.MergeSnapshotLocked(frame.Players, m.resolve)
	}

	st.TouchLocked()

	if m.snapshots != nil {
		gameID := st.GameID
		go func() {
			err := m.snapshots.Save(context.Background(), gameID, raw)
			if err != nil {
				loopLogger.Error().Str(logging.GameIDKey, gameID).Msgf("Failed to cache snapshot: %v", err)
			}
		}()
	}
}

// teardown runs once per session after the loop observed Closed: close
// frame, grace period for in-flight chat deliveries, channel cleanup,
// and finally registry removal.
func (m *Manager) teardown(st *State, adapter Adapter, conn backend.Conn) {
	if conn != nil {
		err := adapter.CloseConnection(conn, "game closed")
		if err != nil {
			loopLogger.Error().Str(logging.GameIDKey, st.GameID).Msgf("Error closing backend connection: %v", err)
		}
	}

	grace := m.timings.TeardownGraceDuration()
	if grace > 0 {
		time.Sleep(grace)
	}

	ctx := context.Background()
	for _, p := range st.Players() {
		if p.DestinationChannel == "" {
			continue
		}
		if m.messenger != nil {
			err := m.messenger.DeleteChannel(ctx, p.DestinationChannel)
			if err != nil {
				loopLogger.Error().
					Str(logging.GameIDKey, st.GameID).
					Str(logging.ChannelIDKey, p.DestinationChannel).
					Msgf("Error deleting destination channel: %v", err)
			}
		}
		m.registry.UnregisterChannel(p.DestinationChannel)
	}

	if m.snapshots != nil {
		m.snapshots.Remove(ctx, st.GameID)
	}
	if m.closed != nil {
		m.closed.MarkClosed(st.GameID)
	}
	m.registry.Remove(st.GameID)

	loopLogger.Info().Str(logging.GameIDKey, st.GameID).Msg("Session torn down")
}

type eventKind int

const (
	evCancelled eventKind = iota
	evRelayed
	evQueuePending
	evFrame
	evCloseRequested
	evIdleTimeout
	evConnFailed
)

type loopEvent struct {
	kind  eventKind
	frame []byte
	err   error
}

// raceOnce runs the loop's sub-operations concurrently and proceeds as
// soon as any completes, cancelling the rest. It waits for every
// cancelled operation to return before the next iteration, so no
// operation dangles across iterations, and it keeps any real event a
// loser produced in the cancellation window (a popped frame is never
// discarded).
func (m *Manager) raceOnce(ctx context.Context, ops ...func(context.Context) loopEvent) []loopEvent {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan loopEvent, len(ops))
	for _, op := range ops {
		op := op
		go func() {
			results <- op(raceCtx)
		}()
	}

	var events []loopEvent
	for i := 0; i < len(ops); i++ {
		ev := <-results
		if ev.kind != evCancelled {
			events = append(events, ev)
		}
		cancel()
	}
	return events
}

// relayOnce pops one queued player action and forwards it to the
// backend. Waiting for the queue is cancellable per iteration; the
// write itself runs on the session context so an iteration cancel
// never aborts a frame mid-send.
func (m *Manager) relayOnce(opCtx context.Context, sendCtx context.Context, st *State, adapter Adapter, conn backend.Conn) loopEvent {
	queue := st.Outbound()
	if queue == nil {
		// No player attached yet; check back shortly. This is not a
		// cancellation: the loop keeps running on the other arms.
		select {
		case <-opCtx.Done():
			return loopEvent{kind: evCancelled}
		case <-time.After(50 * time.Millisecond):
			return loopEvent{kind: evQueuePending}
		}
	}

	req, err := queue.Pop(opCtx)
	if err != nil {
		return loopEvent{kind: evCancelled}
	}

	if req.Kind == adapter.CloseRequestKind() {
		return loopEvent{kind: evCloseRequested}
	}
	if !isValidKind(adapter, req.Kind) {
		loopLogger.Error().
			Str(logging.GameIDKey, st.GameID).
			Str(logging.RequestKindKey, req.Kind).
			Str(logging.PlayerIDKey, req.OriginatorID).
			Msg("Dropping request with unknown kind")
		return loopEvent{kind: evRelayed}
	}

	data, err := EncodeRequest(req)
	if err != nil {
		loopLogger.Error().Str(logging.GameIDKey, st.GameID).Msgf("Dropping unencodable request: %v", err)
		return loopEvent{kind: evRelayed}
	}
	err = conn.Send(sendCtx, data)
	if err != nil {
		return loopEvent{kind: evConnFailed, err: err}
	}
	return loopEvent{kind: evRelayed}
}

func ingestOnce(ctx context.Context, frames <-chan []byte, connErrs <-chan error) loopEvent {
	select {
	case <-ctx.Done():
		return loopEvent{kind: evCancelled}
	case err := <-connErrs:
		return loopEvent{kind: evConnFailed, err: err}
	case frame := <-frames:
		return loopEvent{kind: evFrame, frame: frame}
	}
}

func watchdogOnce(ctx context.Context, st *State, timeout time.Duration) loopEvent {
	remaining := timeout - time.Since(st.LastActive())
	if remaining <= 0 {
		return loopEvent{kind: evIdleTimeout}
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return loopEvent{kind: evCancelled}
	case <-timer.C:
		return loopEvent{kind: evIdleTimeout}
	}
}

func isValidKind(adapter Adapter, kind string) bool {
	for _, k := range adapter.ValidRequestKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
