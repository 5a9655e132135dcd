// Package engine hosts the registration engine: the connection to the
// signaling backend, the gateway registration state machine and the
// active-call table. All state is owned by one dispatch goroutine;
// public methods hand it closures instead of sharing locks.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/vertolink/internal/call"
	"github.com/sebas/vertolink/internal/events"
	"github.com/sebas/vertolink/internal/latency"
	"github.com/sebas/vertolink/internal/media"
	"github.com/sebas/vertolink/internal/metrics"
	"github.com/sebas/vertolink/internal/signal"
	"github.com/sebas/vertolink/internal/store"
)

const (
	// retryRegisterTime bounds gateway state requests per attempt
	retryRegisterTime = 3
	// retryConnectTime bounds full reconnections per failure episode
	retryConnectTime = 3

	// endedCallRetention keeps finished call ids around to absorb
	// late signaling without treating it as malformed
	endedCallRetention = 30 * time.Second
	endedCallSweep     = 10 * time.Second

	taskBuffer  = 128
	eventBuffer = 32
)

// Wait durations are vars so tests can compress them.
var (
	// gatewayResponseDelay is the wait for one gateway state reply
	gatewayResponseDelay = 3 * time.Second
	// reconnectDelay spaces a reconnection from the drop that caused it
	reconnectDelay = 1 * time.Second
	// reconnectTimeout bounds how long calls may sit in recovery
	reconnectTimeout = 60 * time.Second
)

var errNotConnected = errors.New("engine not connected")

// Dialer opens a signaling channel. Swappable for tests.
type Dialer func(ctx context.Context, host string, port int) (signal.Channel, error)

func defaultDialer(ctx context.Context, host string, port int) (signal.Channel, error) {
	ch := signal.NewWebSocketChannel(host, port)
	if err := ch.Connect(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

// Config parameterizes one engine instance.
type Config struct {
	Host string
	Port int

	UserAgent     string
	AutoReconnect bool
	// Verbose enables high-frequency quality diagnostics per call
	Verbose bool

	Media        media.Config
	MediaFactory media.Factory

	Dialer    Dialer
	Collector *metrics.Collector
}

// Engine drives registration against the signaling backend and owns
// the active-call table.
type Engine struct {
	cfg Config

	tasks   chan func()
	eventCh chan events.Event
	done    chan struct{}

	// fields below are owned by the dispatch goroutine
	state       RegistrationState
	channel     signal.Channel
	channelStop chan struct{}
	sessionID   string
	login       *signal.LoginParams

	calls map[uuid.UUID]*call.Session
	ended *store.TTLStore[uuid.UUID, string]

	registerRetries int
	connectRetries  int
	reconnecting    bool

	gatewayTimer      *time.Timer
	reconnectTimer    *time.Timer
	reconnectDeadline *time.Timer

	tracker *latency.Tracker

	callStarts map[uuid.UUID]time.Time
}

// New creates an engine. Call Connect before anything else.
func New(cfg Config) *Engine {
	if cfg.Dialer == nil {
		cfg.Dialer = defaultDialer
	}
	e := &Engine{
		cfg:        cfg,
		tasks:      make(chan func(), taskBuffer),
		eventCh:    make(chan events.Event, eventBuffer),
		done:       make(chan struct{}),
		state:      StateIdle,
		calls:      make(map[uuid.UUID]*call.Session),
		callStarts: make(map[uuid.UUID]time.Time),
	}
	e.ended = store.NewTTLStore[uuid.UUID, string](endedCallSweep, nil)
	e.tracker = latency.NewTracker(func(report latency.Report) {
		e.emit(events.Latency{Report: report})
	})
	return e
}

// Events returns the notification stream. Delivery is best-effort
// latest-wins: when the consumer lags, the oldest buffered event is
// dropped to make room.
func (e *Engine) Events() <-chan events.Event {
	return e.eventCh
}

// Connect opens the signaling channel and starts the dispatcher. It
// fails fast when no network path exists.
func (e *Engine) Connect(ctx context.Context) error {
	if !networkAvailable() {
		e.emit(events.Error{Code: events.ErrNetworkUnavailable, Message: "no usable network interface"})
		return errors.New("network unavailable")
	}

	e.tracker.StartRegistration()
	ch, err := e.cfg.Dialer(ctx, e.cfg.Host, e.cfg.Port)
	if err != nil {
		e.tracker.CancelRegistration()
		return err
	}

	go e.run()
	e.post(func() { e.adoptChannel(ch) })
	return nil
}

// LoginWithCredential authenticates with a username/password pair. The
// credentials are kept for reconnection replay.
func (e *Engine) LoginWithCredential(login, password string) {
	e.post(func() {
		e.login = &signal.LoginParams{
			Login:     login,
			Passwd:    password,
			UserAgent: e.cfg.UserAgent,
		}
		e.sendLogin()
	})
}

// LoginWithToken authenticates with a bearer token. The token is kept
// for reconnection replay.
func (e *Engine) LoginWithToken(token string) {
	e.post(func() {
		e.login = &signal.LoginParams{
			LoginToken: token,
			UserAgent:  e.cfg.UserAgent,
		}
		e.sendLogin()
	})
}

// Disconnect cancels all timers, tears the channel down and stops the
// dispatcher. The engine is not reusable afterwards.
func (e *Engine) Disconnect() {
	e.post(func() {
		e.cancelTimers()
		for _, c := range e.calls {
			c.End()
		}
		if e.channel != nil {
			e.channel.Close()
		}
		e.stopChannelPump()
		e.setState(StateIdle)
		e.emit(events.Disconnected{Reconnecting: false})
		e.ended.Close()
		close(e.done)
	})
}

// NewCall places an outbound call, returning its id immediately. The
// call proceeds asynchronously; watch the event stream.
func (e *Engine) NewCall(callerName, callerNumber, destination string, headers []signal.CustomHeader) (uuid.UUID, error) {
	id := uuid.New()
	errCh := make(chan error, 1)
	e.post(func() {
		if e.state != StateRegistered {
			errCh <- errNotConnected
			return
		}
		sess, err := e.buildSession(call.SessionConfig{
			ID:             id,
			SessionID:      e.sessionID,
			Outbound:       true,
			CallerIDName:   callerName,
			CallerIDNumber: callerNumber,
			Destination:    destination,
			CustomHeaders:  headers,
		})
		if err != nil {
			errCh <- err
			return
		}
		e.registerCall(sess, "outbound")
		sess.PlaceInvite()
		errCh <- nil
	})
	select {
	case err := <-errCh:
		return id, err
	case <-e.done:
		return id, errNotConnected
	}
}

// AcceptCall answers a ringing inbound call.
func (e *Engine) AcceptCall(id uuid.UUID, headers []signal.CustomHeader) {
	e.withCall(id, func(c *call.Session) { c.AcceptInvite(headers) })
}

// EndCall hangs a call up. Safe on unknown or already finished ids.
func (e *Engine) EndCall(id uuid.UUID) {
	e.withCall(id, func(c *call.Session) { c.End() })
}

// ToggleMute flips a call's microphone flag.
func (e *Engine) ToggleMute(id uuid.UUID) {
	e.withCall(id, func(c *call.Session) { c.ToggleMute() })
}

// ToggleHold flips a call's hold flag.
func (e *Engine) ToggleHold(id uuid.UUID) {
	e.withCall(id, func(c *call.Session) { c.ToggleHold() })
}

// ToggleSpeaker flips a call's loudspeaker flag.
func (e *Engine) ToggleSpeaker(id uuid.UUID) {
	e.withCall(id, func(c *call.Session) { c.ToggleSpeaker() })
}

// SendDTMF forwards a tone on an established call.
func (e *Engine) SendDTMF(id uuid.UUID, tone string) {
	e.withCall(id, func(c *call.Session) { c.SendDTMF(tone) })
}

// NotifyNetworkLost parks established calls and arms the reconnect
// posture. The platform's network observer calls this.
func (e *Engine) NotifyNetworkLost() {
	e.post(func() {
		if e.state == StateIdle || e.state.IsTerminal() {
			return
		}
		e.reconnecting = true
		for _, c := range e.calls {
			c.MarkRecovering()
		}
		e.armReconnectDeadline()
		e.emit(events.Disconnected{Reconnecting: true})
		slog.Warn("[Engine] Network lost")
	})
}

// NotifyNetworkRestored triggers reconnection when a drop was pending
// and a login config is stored.
func (e *Engine) NotifyNetworkRestored() {
	e.post(func() {
		if !e.reconnecting || e.login == nil {
			return
		}
		slog.Info("[Engine] Network restored")
		e.reconnect()
	})
}

// State reports the registration state. Synchronized through the
// dispatcher, so it reflects a consistent point in time.
func (e *Engine) State() RegistrationState {
	out := make(chan RegistrationState, 1)
	e.post(func() { out <- e.state })
	select {
	case s := <-out:
		return s
	case <-e.done:
		return StateIdle
	}
}

func (e *Engine) post(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.done:
	}
}

// emit delivers an event latest-wins: a full buffer sheds its oldest
// entry rather than blocking the engine.
func (e *Engine) emit(ev events.Event) {
	for {
		select {
		case e.eventCh <- ev:
			return
		default:
			select {
			case <-e.eventCh:
			default:
			}
		}
	}
}

func (e *Engine) run() {
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.done:
			return
		}
	}
}

// adoptChannel wires a freshly dialed channel into the dispatcher.
func (e *Engine) adoptChannel(ch signal.Channel) {
	e.stopChannelPump()
	e.channel = ch
	stop := make(chan struct{})
	e.channelStop = stop
	go e.pump(ch, stop)
}

// pump forwards channel traffic onto the dispatch goroutine.
func (e *Engine) pump(ch signal.Channel, stop chan struct{}) {
	for {
		select {
		case env := <-ch.Inbound():
			e.post(func() { e.handleEnvelope(env) })
		case ev := <-ch.Lifecycle():
			e.post(func() { e.handleLifecycle(ch, ev) })
			if ev.State == signal.LifecycleDisconnected {
				return
			}
		case <-stop:
			return
		case <-e.done:
			return
		}
	}
}

func (e *Engine) stopChannelPump() {
	if e.channelStop != nil {
		close(e.channelStop)
		e.channelStop = nil
	}
}

func (e *Engine) handleLifecycle(ch signal.Channel, ev signal.LifecycleEvent) {
	if ch != e.channel {
		return
	}
	switch ev.State {
	case signal.LifecycleConnected:
		e.tracker.MarkRegistration(latency.MilestoneSocketConnected)
	case signal.LifecycleDisconnected:
		slog.Warn("[Engine] Channel dropped", "error", ev.Err)
		if e.state == StateIdle {
			return
		}
		for _, c := range e.calls {
			c.MarkRecovering()
		}
		if e.cfg.AutoReconnect && e.login != nil {
			e.reconnecting = true
			e.armReconnectDeadline()
			e.emit(events.Disconnected{Reconnecting: true})
			e.scheduleReconnect()
		} else {
			e.emit(events.Disconnected{Reconnecting: false})
			e.setState(StateFailed)
		}
	}
}

func (e *Engine) sendLogin() {
	if e.channel == nil || e.login == nil {
		e.emit(events.Error{Code: events.ErrNetworkUnavailable, Message: "login before connect"})
		return
	}
	e.login.SessionID = e.sessionID
	env, err := signal.NewRequest(signal.MethodLogin, *e.login)
	if err != nil {
		return
	}
	if err := e.channel.Send(env); err != nil {
		slog.Error("[Engine] Login send failed", "error", err)
		e.emit(events.Error{Code: events.ErrNetworkUnavailable, Message: err.Error(), Transient: true})
		return
	}
	e.tracker.MarkRegistration(latency.MilestoneLoginSent)
	e.setState(StateConnecting)
	e.countMessage(signal.MethodLogin, "out")
}

func (e *Engine) handleEnvelope(env signal.Envelope) {
	if env.Method == "" {
		e.handleResponse(env)
		return
	}
	e.countMessage(env.Method, "in")

	switch env.Method {
	case signal.MethodGatewayState:
		var params signal.GatewayStateParams
		if err := json.Unmarshal(env.Params, &params); err != nil {
			e.dropMalformed(env.Method, err)
			return
		}
		e.handleGatewayState(params)
	case signal.MethodClientReady:
		e.emit(events.ClientReady{})
	case signal.MethodPing:
		e.replyPong(env)
	case signal.MethodInvite:
		e.handleInvite(env)
	case signal.MethodAttach:
		e.handleAttach(env)
	case signal.MethodAnswer, signal.MethodMedia, signal.MethodRinging, signal.MethodBye, signal.MethodInfo:
		e.routeCallEvent(env)
	default:
		slog.Debug("[Engine] Unhandled method", "method", env.Method)
	}
}

// handleResponse processes replies to our own requests.
func (e *Engine) handleResponse(env signal.Envelope) {
	if env.Error != nil {
		slog.Warn("[Engine] Remote error", "code", env.Error.Code, "message", env.Error.Message)
		e.emit(events.Error{Code: events.ErrRemote, Message: env.Error.Message})
		if e.state == StateConnecting {
			e.setState(StateFailed)
		}
		return
	}
	if e.state == StateConnecting {
		// login accepted; the gateway report decides registration
		var result signal.GatewayStateParams
		if len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, &result); err == nil && result.SessionID != "" {
				e.sessionID = result.SessionID
			}
		}
		e.setState(StateAwaitingGateway)
		e.registerRetries = 0
		e.requestGatewayState()
	}
}

func (e *Engine) requestGatewayState() {
	if e.channel == nil {
		return
	}
	env, err := signal.NewRequest(signal.MethodGatewayState, signal.StateParams{})
	if err != nil {
		return
	}
	if err := e.channel.Send(env); err != nil {
		slog.Warn("[Engine] Gateway state request failed", "error", err)
	}
	e.countMessage(signal.MethodGatewayState, "out")
	e.armGatewayTimer()
}

func (e *Engine) armGatewayTimer() {
	e.stopGatewayTimer()
	e.gatewayTimer = time.AfterFunc(gatewayResponseDelay, func() {
		e.post(e.onGatewayTimeout)
	})
}

func (e *Engine) onGatewayTimeout() {
	if e.state != StateAwaitingGateway {
		return
	}
	// The budget covers retries beyond the initial request: after
	// retryRegisterTime retries have been spent, the next timeout fails.
	e.registerRetries++
	if e.registerRetries > retryRegisterTime {
		slog.Error("[Engine] Gateway registration timed out", "retries", e.registerRetries-1)
		e.emit(events.Error{Code: events.ErrGatewayTimeout, Message: "gateway did not report a state"})
		e.setState(StateFailed)
		return
	}
	slog.Warn("[Engine] Gateway state retry", "attempt", e.registerRetries)
	if e.cfg.Collector != nil {
		e.cfg.Collector.RegistrationRetries.Inc()
	}
	e.requestGatewayState()
}

func (e *Engine) handleGatewayState(params signal.GatewayStateParams) {
	slog.Info("[Engine] Gateway state", "state", params.State)

	switch params.State {
	case GatewayRegistered:
		e.stopGatewayTimer()
		if params.SessionID != "" {
			e.sessionID = params.SessionID
		}
		e.registerRetries = 0
		e.connectRetries = 0
		e.reconnecting = false
		e.stopReconnectDeadline()
		e.setState(StateRegistered)
		e.tracker.CompleteRegistration()
		if e.cfg.Collector != nil {
			e.cfg.Collector.RegistrationsTotal.Inc()
		}
		e.emit(events.LoginSuccess{SessionID: e.sessionID})
		e.emit(events.ClientReady{})
		for _, c := range e.calls {
			c.Resume()
		}
	case GatewayUnregistered, GatewayUnregedEvent, GatewayFailed:
		e.stopGatewayTimer()
		e.emit(events.Error{Code: events.ErrGatewayFailed, Message: "gateway registration failed"})
		e.setState(StateFailed)
	case GatewayFailWait, GatewayDown:
		e.stopGatewayTimer()
		if e.cfg.AutoReconnect && e.connectRetries < retryConnectTime {
			e.setState(StateFailWait)
			e.reconnect()
		} else {
			e.emit(events.Error{Code: events.ErrGatewayFailed, Message: "gateway unavailable"})
			e.setState(StateFailed)
		}
	case GatewayExpired:
		e.stopGatewayTimer()
		e.emit(events.Error{Code: events.ErrGatewayFailed, Message: "gateway registration expired"})
		e.setState(StateExpired)
	case GatewayTrying, GatewayRegister, GatewayUnregister:
		// transitional; keep waiting on the armed timer
	default:
		slog.Debug("[Engine] Unknown gateway state", "state", params.State)
	}
}

// reconnect performs a full reconnection: new channel, replayed login.
func (e *Engine) reconnect() {
	e.connectRetries++
	if e.cfg.Collector != nil {
		e.cfg.Collector.ReconnectsTotal.Inc()
	}
	slog.Info("[Engine] Reconnecting", "attempt", e.connectRetries)
	e.setState(StateConnecting)
	e.scheduleReconnect()
}

func (e *Engine) scheduleReconnect() {
	if e.reconnectTimer != nil {
		return
	}
	e.reconnectTimer = time.AfterFunc(reconnectDelay, func() {
		e.post(e.dialAgain)
	})
}

// dialAgain starts the redial off the dispatch goroutine so queued
// tasks and timers keep running while the dial is in flight.
func (e *Engine) dialAgain() {
	e.reconnectTimer = nil
	if e.login == nil {
		return
	}
	if e.channel != nil {
		// Detach before closing so the dying channel's disconnect
		// event cannot trigger a second reconnect while the dial
		// is in flight.
		e.stopChannelPump()
		e.channel.Close()
		e.channel = nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayResponseDelay*2)
		defer cancel()
		ch, err := e.cfg.Dialer(ctx, e.cfg.Host, e.cfg.Port)
		e.post(func() { e.dialCompleted(ch, err) })
	}()
}

func (e *Engine) dialCompleted(ch signal.Channel, err error) {
	if err != nil {
		slog.Warn("[Engine] Reconnect dial failed", "error", err)
		if e.connectRetries < retryConnectTime {
			e.reconnect()
			return
		}
		e.emit(events.Error{Code: events.ErrGatewayFailed, Message: "reconnection attempts exhausted"})
		e.setState(StateFailed)
		return
	}
	// The engine may have been torn down while the dial was in flight.
	if e.login == nil || e.state == StateIdle {
		ch.Close()
		return
	}
	e.adoptChannel(ch)
	e.sendLogin()
}

func (e *Engine) armReconnectDeadline() {
	if e.reconnectDeadline != nil {
		return
	}
	e.reconnectDeadline = time.AfterFunc(reconnectTimeout, func() {
		e.post(e.onReconnectDeadline)
	})
}

func (e *Engine) stopReconnectDeadline() {
	if e.reconnectDeadline != nil {
		e.reconnectDeadline.Stop()
		e.reconnectDeadline = nil
	}
}

// onReconnectDeadline fails every call still parked in recovery.
func (e *Engine) onReconnectDeadline() {
	e.reconnectDeadline = nil
	if e.state == StateRegistered {
		return
	}
	slog.Error("[Engine] Reconnection window expired")
	for _, c := range e.calls {
		if c.State() == call.StateRecovering {
			c.Fail(events.ErrReconnectTimeout, "reconnection window expired")
		}
	}
	e.emit(events.Error{Code: events.ErrReconnectTimeout, Message: "reconnection window expired"})
	e.setState(StateFailed)
}

func (e *Engine) handleInvite(env signal.Envelope) {
	params, id, ok := e.decodeCallEvent(env)
	if !ok {
		return
	}
	if params.SDP == "" || params.CallerIDNumber == "" {
		e.dropMalformed(env.Method, errors.New("invite missing sdp or caller identity"))
		return
	}
	if _, exists := e.calls[id]; exists {
		slog.Debug("[Engine] Duplicate invite", "call_id", id)
		return
	}

	sess, err := e.buildSession(call.SessionConfig{
		ID:             id,
		SessionID:      e.sessionID,
		Outbound:       false,
		CallerIDName:   params.CallerIDName,
		CallerIDNumber: params.CallerIDNumber,
	})
	if err != nil {
		e.emit(events.Error{Code: events.ErrNegotiationFailed, Message: err.Error()})
		return
	}
	e.registerCall(sess, "inbound")
	if err := sess.PrepareAnswer(params.SDP); err != nil {
		return
	}
	e.emit(events.IncomingCall{
		CallID:         id,
		CallerIDName:   params.CallerIDName,
		CallerIDNumber: params.CallerIDNumber,
	})
}

func (e *Engine) handleAttach(env signal.Envelope) {
	params, id, ok := e.decodeCallEvent(env)
	if !ok {
		return
	}
	if params.SDP == "" {
		e.dropMalformed(env.Method, errors.New("attach missing sdp"))
		return
	}
	sess, err := e.buildSession(call.SessionConfig{
		ID:             id,
		SessionID:      e.sessionID,
		Outbound:       false,
		CallerIDName:   params.CallerIDName,
		CallerIDNumber: params.CallerIDNumber,
	})
	if err != nil {
		e.emit(events.Error{Code: events.ErrNegotiationFailed, Message: err.Error()})
		return
	}
	e.registerCall(sess, "inbound")
	sess.AcceptAttach(params.SDP)
}

func (e *Engine) routeCallEvent(env signal.Envelope) {
	params, id, ok := e.decodeCallEvent(env)
	if !ok {
		return
	}
	c, exists := e.calls[id]
	if !exists {
		if e.ended.Has(id) {
			slog.Debug("[Engine] Late message for ended call", "call_id", id, "method", env.Method)
		} else {
			slog.Debug("[Engine] Message for unknown call", "call_id", id, "method", env.Method)
		}
		return
	}

	switch env.Method {
	case signal.MethodAnswer:
		c.HandleAnswer(params)
	case signal.MethodMedia:
		c.HandleMedia(params)
	case signal.MethodRinging:
		c.HandleRinging(params)
	case signal.MethodBye:
		c.HandleBye(params)
	case signal.MethodInfo:
		// inbound info frames carry nothing the engine acts on
	}
}

func (e *Engine) decodeCallEvent(env signal.Envelope) (signal.CallEventParams, uuid.UUID, bool) {
	var params signal.CallEventParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		e.dropMalformed(env.Method, err)
		return params, uuid.Nil, false
	}
	id, err := uuid.Parse(params.CallID)
	if err != nil {
		e.dropMalformed(env.Method, errors.New("missing or invalid call id"))
		return params, uuid.Nil, false
	}
	return params, id, true
}

func (e *Engine) dropMalformed(method signal.Method, err error) {
	slog.Warn("[Engine] Malformed message dropped", "method", method, "error", err)
	e.emit(events.Error{Code: events.ErrMalformedMessage, Message: err.Error(), Transient: true})
}

func (e *Engine) replyPong(env signal.Envelope) {
	if e.channel == nil {
		return
	}
	result, _ := json.Marshal(map[string]string{"method": string(signal.MethodPing)})
	reply := signal.Envelope{JSONRPC: "2.0", ID: env.ID, Result: result}
	if err := e.channel.Send(reply); err != nil {
		slog.Debug("[Engine] Pong not sent", "error", err)
	}
}

// buildSession creates the media session and call session pair. Media
// callbacks are routed back through the dispatcher.
func (e *Engine) buildSession(cfg call.SessionConfig) (*call.Session, error) {
	if e.cfg.MediaFactory == nil {
		return nil, errors.New("no media factory configured")
	}

	id := cfg.ID
	mediaCfg := e.cfg.Media
	mediaCfg.Callbacks = media.Callbacks{
		OnCandidate: func(c media.Candidate) {
			e.post(func() {
				if sess, ok := e.calls[id]; ok {
					sess.HandleLocalCandidate(c)
				}
			})
		},
		OnICEStateChange: func(state media.ICEState) {
			e.post(func() {
				if sess, ok := e.calls[id]; ok {
					sess.HandleICEState(state)
				}
			})
		},
	}

	m, err := e.cfg.MediaFactory(mediaCfg)
	if err != nil {
		return nil, err
	}

	cfg.Sender = e.channel
	cfg.Media = m
	cfg.Tracker = e.tracker
	cfg.Verbose = e.cfg.Verbose
	cfg.Post = e.post
	cfg.Emit = e.emitWithMetrics
	cfg.OnDone = e.unregisterCall
	return call.NewSession(cfg), nil
}

func (e *Engine) emitWithMetrics(ev events.Event) {
	if q, ok := ev.(events.Quality); ok && e.cfg.Collector != nil {
		e.cfg.Collector.MOSObserved.Observe(q.Sample.MOS)
	}
	e.emit(ev)
}

func (e *Engine) registerCall(c *call.Session, direction string) {
	e.calls[c.ID] = c
	e.callStarts[c.ID] = time.Now()
	if e.cfg.Collector != nil {
		e.cfg.Collector.CallsTotal.WithLabelValues(direction).Inc()
		e.cfg.Collector.CallsActive.Set(float64(len(e.calls)))
	}
}

// unregisterCall runs from the call's own teardown on the dispatcher.
func (e *Engine) unregisterCall(c *call.Session) {
	if _, ok := e.calls[c.ID]; !ok {
		return
	}
	delete(e.calls, c.ID)
	e.ended.Set(c.ID, c.State(), endedCallRetention)
	if start, ok := e.callStarts[c.ID]; ok {
		delete(e.callStarts, c.ID)
		if e.cfg.Collector != nil {
			e.cfg.Collector.CallDuration.Observe(time.Since(start).Seconds())
		}
	}
	if e.cfg.Collector != nil {
		e.cfg.Collector.CallsActive.Set(float64(len(e.calls)))
	}
}

func (e *Engine) withCall(id uuid.UUID, fn func(*call.Session)) {
	e.post(func() {
		if c, ok := e.calls[id]; ok {
			fn(c)
		} else {
			slog.Debug("[Engine] Command for unknown call", "call_id", id)
		}
	})
}

func (e *Engine) setState(next RegistrationState) {
	if e.state == next {
		return
	}
	if !e.state.CanTransitionTo(next) {
		slog.Warn("[Engine] Invalid state transition", "from", e.state, "to", next)
		return
	}
	slog.Info("[Engine] Registration state changed", "from", e.state, "to", next)
	e.state = next
	e.emit(events.RegistrationStateChanged{State: next.String()})
}

func (e *Engine) stopGatewayTimer() {
	if e.gatewayTimer != nil {
		e.gatewayTimer.Stop()
		e.gatewayTimer = nil
	}
}

func (e *Engine) cancelTimers() {
	e.stopGatewayTimer()
	e.stopReconnectDeadline()
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
		e.reconnectTimer = nil
	}
}

func (e *Engine) countMessage(method signal.Method, direction string) {
	if e.cfg.Collector != nil {
		e.cfg.Collector.MessagesTotal.WithLabelValues(string(method), direction).Inc()
	}
}

// networkAvailable reports whether any non-loopback interface is up.
// A var so tests can run without real network access.
var networkAvailable = func() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
