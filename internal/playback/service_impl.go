package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lcourbon/cadence/internal/bandwidth"
	"github.com/lcourbon/cadence/internal/buffer"
	"github.com/lcourbon/cadence/internal/fetch"
	"github.com/lcourbon/cadence/internal/offline"
	"github.com/lcourbon/cadence/internal/playlist"
	"github.com/lcourbon/cadence/internal/quality"
	"github.com/lcourbon/cadence/internal/sink"
)

// Verify serviceImpl implements Service at compile time.
var _ Service = (*serviceImpl)(nil)

// errStaleLoad aborts a load that was superseded by newer navigation.
var errStaleLoad = errors.New("load superseded")

// crossfadePreloadBytes is how much of the next track is warmed into the
// range cache when a crossfade arms.
const crossfadePreloadBytes = 1 << 20

// Deps are the collaborators the engine drives. Sink and Queue are
// required; the rest may be nil, which disables the matching feature
// (offline playback, streaming prefetch, quality adaptation).
type Deps struct {
	Sink      sink.Sink
	Queue     *playlist.Queue
	Store     *offline.Store
	Fetcher   *fetch.Fetcher
	Selector  *quality.Selector
	Estimator *bandwidth.Estimator
	Monitor   *buffer.Monitor
	Log       *slog.Logger
}

// Options holds the engine tunables.
type Options struct {
	Profiles          []quality.Profile
	PreferredQuality  string        // "auto" or a profile label
	RetryAttempts     int           // bounded load retries, default 3
	BackoffBase       time.Duration // retry delay unit, default 1s
	CrossfadeEnabled  bool
	CrossfadeDuration time.Duration // default 5s
	Volume            float64       // initial volume, default 1.0
	Online            bool          // initial network reachability
}

type crossfadeState struct {
	timer   *time.Timer
	cancel  context.CancelFunc
	trackID string
}

type serviceImpl struct {
	mu sync.Mutex

	sink      sink.Sink
	queue     *playlist.Queue
	store     *offline.Store
	fetcher   *fetch.Fetcher
	selector  *quality.Selector
	estimator *bandwidth.Estimator
	monitor   *buffer.Monitor
	log       *slog.Logger

	opts Options
	now  func() time.Time

	state        State
	position     time.Duration
	duration     time.Duration
	volume       float64
	muted        bool
	isOffline    bool
	online       bool
	active       quality.Profile
	bufferStatus buffer.Status

	// loadGen invalidates in-flight loads when navigation supersedes them.
	loadGen    int
	retries    map[string]int
	failStreak int

	crossfade *crossfadeState

	subs   []*Subscription
	subsMu sync.RWMutex

	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a playback engine.
func New(deps Deps, opts Options) Service {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.CrossfadeDuration <= 0 {
		opts.CrossfadeDuration = 5 * time.Second
	}
	if opts.Volume <= 0 || opts.Volume > 1 {
		opts.Volume = 1.0
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = quality.DefaultProfiles
	}
	log := deps.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &serviceImpl{
		sink:      deps.Sink,
		queue:     deps.Queue,
		store:     deps.Store,
		fetcher:   deps.Fetcher,
		selector:  deps.Selector,
		estimator: deps.Estimator,
		monitor:   deps.Monitor,
		log:       log,
		opts:      opts,
		now:       time.Now,
		state:     StateIdle,
		volume:    opts.Volume,
		online:    opts.Online,
		retries:   make(map[string]int),
		done:      make(chan struct{}),
	}

	_ = s.sink.SetVolume(s.volume)

	s.sink.OnTimeUpdate(s.handleTimeUpdate)
	s.sink.OnStall(s.handleStall)
	s.sink.OnResumed(s.handleResumed)
	s.sink.OnEnded(s.handleEnded)
	s.sink.OnError(s.handleSinkError)

	if s.monitor != nil {
		s.monitor.OnStatus(s.handleBufferStatus)
		s.monitor.OnDowngradeRequest(s.handleDowngradeRequest)
	}

	return s
}

// --- Queue manipulation ---

func (s *serviceImpl) AddTracks(tracks ...playlist.Track) {
	s.mu.Lock()
	s.queue.Add(tracks...)
	s.emitQueueLocked()
	s.mu.Unlock()
}

func (s *serviceImpl) ReplaceTracks(tracks ...playlist.Track) {
	s.mu.Lock()
	s.disarmCrossfadeLocked()
	s.loadGen++
	s.queue.Replace(tracks...)
	s.emitQueueLocked()
	s.mu.Unlock()
}

func (s *serviceImpl) ClearQueue() {
	s.mu.Lock()
	s.disarmCrossfadeLocked()
	s.loadGen++
	s.queue.Clear()
	s.setStateLocked(StateIdle)
	s.position = 0
	s.duration = 0
	s.emitQueueLocked()
	s.mu.Unlock()
	_ = s.sink.Stop()
}

// --- Playback control ---

func (s *serviceImpl) PlayAt(index int) error {
	s.mu.Lock()
	prev, prevIdx := s.queue.Current(), s.queue.CurrentIndex()
	t := s.queue.JumpTo(index)
	if t == nil {
		s.mu.Unlock()
		return fmt.Errorf("queue index %d out of range", index)
	}
	s.disarmCrossfadeLocked()
	gen := s.bumpGenLocked()
	track := *t
	s.emitTrackChangeLocked(prev, prevIdx)
	s.mu.Unlock()

	return s.loadAndPlay(track, gen)
}

func (s *serviceImpl) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsActive() {
		return ErrNotLoaded
	}
	if err := s.sink.Play(); err != nil {
		return err
	}
	s.setStateLocked(StatePlaying)
	return nil
}

func (s *serviceImpl) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return ErrNotLoaded
	}
	// The next time update re-arms the crossfade after resume.
	s.disarmCrossfadeLocked()
	if err := s.sink.Pause(); err != nil {
		return err
	}
	s.setStateLocked(StatePaused)
	return nil
}

func (s *serviceImpl) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsActive() {
		return ErrNotLoaded
	}
	s.disarmCrossfadeLocked()
	if err := s.sink.Stop(); err != nil {
		return err
	}
	s.position = 0
	s.setStateLocked(StateReady)
	return nil
}

func (s *serviceImpl) Toggle() error {
	s.mu.Lock()
	playing := s.state == StatePlaying
	s.mu.Unlock()
	if playing {
		return s.Pause()
	}
	return s.Play()
}

func (s *serviceImpl) Seek(delta time.Duration) error {
	s.mu.Lock()
	target := s.position + delta
	s.mu.Unlock()
	return s.SeekTo(target)
}

func (s *serviceImpl) SeekTo(position time.Duration) error {
	s.mu.Lock()
	if !s.state.IsActive() {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if position < 0 {
		position = 0
	}
	if s.duration > 0 && position > s.duration {
		position = s.duration
	}
	s.disarmCrossfadeLocked()
	if err := s.sink.SeekTo(position); err != nil {
		s.mu.Unlock()
		return err
	}
	s.position = position
	subs := s.subsSnapshot()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.sendPosition(position)
	}
	return nil
}

func (s *serviceImpl) Next() error {
	s.mu.Lock()
	s.disarmCrossfadeLocked()
	prev, prevIdx := s.queue.Current(), s.queue.CurrentIndex()
	t, ok := s.queue.Next()
	if !ok {
		s.mu.Unlock()
		return ErrNoNext
	}
	gen := s.bumpGenLocked()
	track := *t
	s.emitTrackChangeLocked(prev, prevIdx)
	s.mu.Unlock()

	return s.loadAndPlay(track, gen)
}

func (s *serviceImpl) Previous() error {
	s.mu.Lock()
	s.disarmCrossfadeLocked()
	prev, prevIdx := s.queue.Current(), s.queue.CurrentIndex()
	t, ok := s.queue.Previous()
	if !ok {
		s.mu.Unlock()
		return ErrNoPrevious
	}
	gen := s.bumpGenLocked()
	track := *t
	s.emitTrackChangeLocked(prev, prevIdx)
	s.mu.Unlock()

	return s.loadAndPlay(track, gen)
}

// --- Loading ---

// loadAndPlay runs the bounded retry loop for a track and starts playback
// on success. After the retry budget is exhausted the error is surfaced
// and the engine advances to the next queue track so one bad track does
// not kill playback.
func (s *serviceImpl) loadAndPlay(t playlist.Track, gen int) error {
	err := s.loadWithRetry(t, gen)
	if err == nil {
		s.mu.Lock()
		if gen != s.loadGen || s.closed {
			s.mu.Unlock()
			return nil
		}
		s.failStreak = 0
		playErr := s.sink.Play()
		if playErr == nil {
			s.setStateLocked(StatePlaying)
		}
		s.mu.Unlock()
		return playErr
	}

	if errors.Is(err, errStaleLoad) || errors.Is(err, fetch.ErrCancelled) {
		return nil
	}

	s.emitError("load", t.ID, err)

	s.mu.Lock()
	if gen != s.loadGen || s.closed {
		s.mu.Unlock()
		return err
	}
	s.setStateLocked(StateErrored)
	s.failStreak++
	// Every queue entry has failed in a row; advancing further would
	// spin forever under repeat-all.
	exhausted := s.failStreak >= s.queue.Len()
	var next *playlist.Track
	var nextGen int
	if !exhausted {
		prev, prevIdx := s.queue.Current(), s.queue.CurrentIndex()
		if t, ok := s.queue.Next(); ok {
			nextGen = s.bumpGenLocked()
			track := *t
			next = &track
			s.emitTrackChangeLocked(prev, prevIdx)
		}
	}
	s.mu.Unlock()

	if next != nil {
		_ = s.loadAndPlay(*next, nextGen)
	}
	return err
}

func (s *serviceImpl) loadWithRetry(t playlist.Track, gen int) error {
	for attempt := 1; ; attempt++ {
		err := s.loadOnce(t, gen)
		if err == nil {
			return nil
		}
		if errors.Is(err, errStaleLoad) || errors.Is(err, fetch.ErrCancelled) {
			// Superseded or intentionally aborted; not counted against
			// the retry budget.
			return err
		}
		if errors.Is(err, ErrTrackUnavailableOffline) || errors.Is(err, sink.ErrDecodeRejected) {
			// Retrying cannot change connectivity or decodability.
			return err
		}

		s.mu.Lock()
		s.retries[t.ID] = attempt
		s.mu.Unlock()

		if attempt >= s.opts.RetryAttempts {
			return err
		}

		s.log.Warn("track load failed, retrying",
			"track", t.ID, "attempt", attempt, "err", err)

		select {
		case <-time.After(time.Duration(attempt) * s.opts.BackoffBase):
		case <-s.done:
			return fetch.ErrCancelled
		}
	}
}

// loadOnce performs one load attempt: offline copy first, then the
// streaming path.
func (s *serviceImpl) loadOnce(t playlist.Track, gen int) error {
	s.mu.Lock()
	if gen != s.loadGen || s.closed {
		s.mu.Unlock()
		return errStaleLoad
	}
	s.setStateLocked(StateLoading)
	online := s.online
	now := s.now()
	s.mu.Unlock()

	if s.store != nil {
		rec, err := s.store.GetRecord(t.ID)
		if err == nil && rec != nil && !rec.Expired(now) {
			data, err := s.store.Get(t.ID)
			if err == nil && data != nil {
				return s.attach(t, gen, sink.Source{
					TrackID: t.ID,
					Data:    data,
					Format:  t.Format,
				}, nil)
			}
		}
	}

	if !online {
		return ErrTrackUnavailableOffline
	}

	var profile *quality.Profile
	if s.selector != nil {
		var est float64
		if s.estimator != nil {
			est = s.estimator.Estimate()
		}
		p := s.selector.Select(s.opts.Profiles, est, s.opts.PreferredQuality)
		profile = &p
	}

	return s.attach(t, gen, sink.Source{
		TrackID: t.ID,
		URI:     t.SourceURI,
		Format:  t.Format,
	}, profile)
}

func (s *serviceImpl) attach(t playlist.Track, gen int, src sink.Source, profile *quality.Profile) error {
	if err := s.sink.Load(src); err != nil {
		if errors.Is(err, sink.ErrDecodeRejected) {
			return err
		}
		return fmt.Errorf("load %s: %w", t.ID, err)
	}

	s.mu.Lock()
	if gen != s.loadGen || s.closed {
		s.mu.Unlock()
		return errStaleLoad
	}
	s.isOffline = src.Data != nil
	if profile != nil {
		s.active = *profile
	}
	s.duration = s.sink.Duration()
	if s.duration == 0 {
		s.duration = t.Duration
	}
	s.position = 0
	delete(s.retries, t.ID)
	s.setStateLocked(StateReady)
	dur := s.duration
	monitor := s.monitor
	s.mu.Unlock()

	if monitor != nil {
		if src.Data != nil {
			monitor.SetSource(nil)
		} else {
			msrc := &buffer.Source{
				TrackID:  t.ID,
				URI:      t.SourceURI,
				Duration: dur,
			}
			if profile != nil {
				msrc.BitrateKbps = profile.BitrateKbps
				msrc.TotalBytes = int64(float64(profile.BitrateKbps) * 1000 / 8 * dur.Seconds())
			}
			monitor.SetSource(msrc)
		}
	}

	s.log.Debug("track loaded", "track", t.ID, "offline", src.Data != nil)
	return nil
}

// --- Crossfade ---

func (s *serviceImpl) handleTimeUpdate(pos time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if d := s.sink.Duration(); d > 0 {
		s.duration = d
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	s.position = pos
	if s.opts.CrossfadeEnabled && s.state == StatePlaying && s.crossfade == nil && s.duration > 0 {
		remaining := s.duration - pos
		if remaining > 0 && remaining <= s.opts.CrossfadeDuration {
			s.armCrossfadeLocked(remaining)
		}
	}
	subs := s.subsSnapshot()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.sendPosition(pos)
	}
}

// armCrossfadeLocked pre-loads the next track and schedules the handoff.
func (s *serviceImpl) armCrossfadeLocked(remaining time.Duration) {
	next := s.queue.PeekNext()
	if next == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cf := &crossfadeState{cancel: cancel, trackID: next.ID}

	// Warm the range cache so the handoff starts from local bytes. A
	// manual track change before the timer fires cancels this fetch.
	if s.fetcher != nil && next.SourceURI != "" {
		uri := next.SourceURI
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.fetcher.FetchRange(ctx, uri, 0, crossfadePreloadBytes)
		}()
	}

	cf.timer = time.AfterFunc(remaining, func() { s.fireCrossfade(cf) })
	s.crossfade = cf
	s.log.Debug("crossfade armed", "next", next.ID, "in", remaining)
}

func (s *serviceImpl) fireCrossfade(cf *crossfadeState) {
	s.mu.Lock()
	if s.crossfade != cf || s.closed {
		s.mu.Unlock()
		return
	}
	s.crossfade = nil
	cf.cancel()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}

	prev, prevIdx := s.queue.Current(), s.queue.CurrentIndex()
	t, ok := s.queue.Next()
	if !ok {
		s.mu.Unlock()
		return
	}
	gen := s.bumpGenLocked()
	track := *t
	s.emitTrackChangeLocked(prev, prevIdx)
	s.mu.Unlock()

	_ = s.loadAndPlay(track, gen)
}

func (s *serviceImpl) disarmCrossfadeLocked() {
	if s.crossfade == nil {
		return
	}
	if s.crossfade.timer != nil {
		s.crossfade.timer.Stop()
	}
	s.crossfade.cancel()
	s.crossfade = nil
}

// --- Sink callbacks ---

func (s *serviceImpl) handleEnded() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.disarmCrossfadeLocked()
	crossfade := s.opts.CrossfadeEnabled
	s.mu.Unlock()

	if !crossfade {
		err := s.Next()
		if !errors.Is(err, ErrNoNext) {
			// Anything but the queue boundary means the advance chain
			// already settled the state: a later track is playing, or
			// the whole queue failed and the engine is Errored.
			return
		}
	}

	s.mu.Lock()
	s.position = 0
	s.setStateLocked(StateEnded)
	s.mu.Unlock()
}

func (s *serviceImpl) handleStall() {
	if s.monitor != nil {
		s.monitor.HandleStall()
	}
}

func (s *serviceImpl) handleResumed() {
	if s.monitor != nil {
		s.monitor.HandleResume()
	}
}

func (s *serviceImpl) handleSinkError(err error) {
	s.mu.Lock()
	var trackID string
	if t := s.queue.Current(); t != nil {
		trackID = t.ID
	}
	s.mu.Unlock()
	s.emitError("sink", trackID, err)
}

// --- Buffer monitor callbacks ---

func (s *serviceImpl) handleBufferStatus(st buffer.Status) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.bufferStatus = st
	offlineSrc := s.isOffline
	current := s.active
	subs := s.subsSnapshot()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.sendBuffer(BufferChange{Status: st})
	}

	if offlineSrc || s.selector == nil || s.monitor == nil {
		return
	}

	// Upgrade opportunistically when the buffer is healthy and there is
	// bandwidth headroom for the next rung.
	candidate, ok := upgradeCandidate(s.opts.Profiles, current)
	if !ok {
		return
	}
	if !s.selector.ShouldUpgrade(candidate, s.monitor.Health(), st.EstimatedBandwidthKbps) {
		return
	}
	if s.selector.ConsiderSwitch(current, candidate, quality.ReasonUpgrade) {
		s.switchQuality(candidate, quality.ReasonUpgrade)
	}
}

func (s *serviceImpl) handleDowngradeRequest() {
	s.mu.Lock()
	current := s.active
	offlineSrc := s.isOffline
	s.mu.Unlock()

	if offlineSrc || s.selector == nil {
		return
	}

	candidate := quality.Downgrade(s.opts.Profiles, current)
	if candidate.Label == current.Label {
		return
	}
	if s.selector.ConsiderSwitch(current, candidate, quality.ReasonStall) {
		s.switchQuality(candidate, quality.ReasonStall)
	}
}

// switchQuality applies an accepted profile change. The new profile takes
// effect for subsequent fetches; already buffered media keeps playing.
func (s *serviceImpl) switchQuality(p quality.Profile, reason quality.SwitchReason) {
	s.mu.Lock()
	s.active = p
	subs := s.subsSnapshot()
	s.mu.Unlock()

	s.log.Info("quality switched", "profile", p.Label, "reason", string(reason))
	for _, sub := range subs {
		sub.sendQuality(QualityChange{Profile: p, Reason: reason})
	}
}

func upgradeCandidate(profiles []quality.Profile, current quality.Profile) (quality.Profile, bool) {
	for i, p := range profiles {
		if p.Label == current.Label && i+1 < len(profiles) {
			return profiles[i+1], true
		}
	}
	return quality.Profile{}, false
}

// --- State queries ---

func (s *serviceImpl) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *serviceImpl) IsPlaying() bool {
	return s.State() == StatePlaying
}

func (s *serviceImpl) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *serviceImpl) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *serviceImpl) CurrentTrack() *playlist.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Current()
}

func (s *serviceImpl) Snapshot() PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PlayerState{
		State:         s.state,
		CurrentTrack:  s.queue.Current(),
		IsPlaying:     s.state == StatePlaying,
		Position:      s.position,
		Duration:      s.duration,
		Volume:        s.volume,
		Muted:         s.muted,
		Shuffle:       s.queue.Shuffle(),
		RepeatMode:    s.queue.RepeatMode(),
		Queue:         s.queue.ViewTracks(),
		QueuePosition: s.queue.CurrentIndex(),
		IsOffline:     s.isOffline,
		BufferStatus:  s.bufferStatus,
		ActiveQuality: s.active,
		Crossfade: CrossfadeSettings{
			Enabled:  s.opts.CrossfadeEnabled,
			Duration: s.opts.CrossfadeDuration,
		},
	}
}

// --- Queue queries ---

func (s *serviceImpl) QueueTracks() []playlist.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.ViewTracks()
}

func (s *serviceImpl) QueueIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.CurrentIndex()
}

func (s *serviceImpl) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// --- Volume ---

func (s *serviceImpl) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *serviceImpl) SetVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	if s.muted {
		return nil
	}
	return s.sink.SetVolume(v)
}

func (s *serviceImpl) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *serviceImpl) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	if muted {
		return s.sink.SetVolume(0)
	}
	return s.sink.SetVolume(s.volume)
}

func (s *serviceImpl) ToggleMute() error {
	s.mu.Lock()
	muted := s.muted
	s.mu.Unlock()
	return s.SetMuted(!muted)
}

// --- Modes ---

func (s *serviceImpl) RepeatMode() playlist.RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.RepeatMode()
}

func (s *serviceImpl) SetRepeatMode(mode playlist.RepeatMode) {
	s.mu.Lock()
	s.queue.SetRepeatMode(mode)
	s.emitModeLocked()
	s.mu.Unlock()
}

func (s *serviceImpl) CycleRepeatMode() playlist.RepeatMode {
	s.mu.Lock()
	mode := s.queue.CycleRepeatMode()
	s.emitModeLocked()
	s.mu.Unlock()
	return mode
}

func (s *serviceImpl) Shuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Shuffle()
}

func (s *serviceImpl) SetShuffle(enabled bool) {
	s.mu.Lock()
	s.queue.SetShuffle(enabled)
	s.emitModeLocked()
	s.emitQueueLocked()
	s.mu.Unlock()
}

func (s *serviceImpl) ToggleShuffle() bool {
	s.mu.Lock()
	enabled := s.queue.ToggleShuffle()
	s.emitModeLocked()
	s.emitQueueLocked()
	s.mu.Unlock()
	return enabled
}

// --- Connectivity and quality ---

func (s *serviceImpl) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

func (s *serviceImpl) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *serviceImpl) ActiveQuality() quality.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// --- Events ---

func (s *serviceImpl) Subscribe() *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	sub := newSubscription()
	s.subs = append(s.subs, sub)
	return sub
}

func (s *serviceImpl) subsSnapshot() []*Subscription {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	out := make([]*Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *serviceImpl) setStateLocked(next State) {
	if next == s.state {
		return
	}
	prev := s.state
	s.state = next
	for _, sub := range s.subsSnapshot() {
		sub.sendState(StateChange{Previous: prev, Current: next})
	}
}

func (s *serviceImpl) emitTrackChangeLocked(prev *playlist.Track, prevIdx int) {
	cur := s.queue.Current()
	idx := s.queue.CurrentIndex()
	for _, sub := range s.subsSnapshot() {
		sub.sendTrack(TrackChange{
			Previous:      prev,
			Current:       cur,
			PreviousIndex: prevIdx,
			Index:         idx,
		})
	}
}

func (s *serviceImpl) emitQueueLocked() {
	e := QueueChange{Tracks: s.queue.ViewTracks(), Index: s.queue.CurrentIndex()}
	for _, sub := range s.subsSnapshot() {
		sub.sendQueue(e)
	}
}

func (s *serviceImpl) emitModeLocked() {
	e := ModeChange{RepeatMode: s.queue.RepeatMode(), Shuffle: s.queue.Shuffle()}
	for _, sub := range s.subsSnapshot() {
		sub.sendMode(e)
	}
}

func (s *serviceImpl) emitError(op, trackID string, err error) {
	s.log.Error("playback error", "op", op, "track", trackID, "err", err)
	for _, sub := range s.subsSnapshot() {
		sub.sendError(ErrorEvent{Operation: op, TrackID: trackID, Err: err})
	}
}

func (s *serviceImpl) bumpGenLocked() int {
	s.loadGen++
	return s.loadGen
}

// --- Lifecycle ---

func (s *serviceImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.disarmCrossfadeLocked()
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()

	s.subsMu.Lock()
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	s.subsMu.Unlock()

	return nil
}
