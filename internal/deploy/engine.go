package deploy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"cfgpush/internal/config"
)

// Request describes one deployment. Profile and Preset are resolved values;
// an empty Preset or nil Profile fails preflight.
type Request struct {
	Profile  *config.Profile
	Preset   string
	Mappings []config.Mapping

	// Confirm is consulted after preflight and before any connection.
	Confirm Confirmer

	// Observe, when set, receives progress events synchronously.
	Observe func(Event)
}

// Engine runs deployments: preflight, one connection, then backup and upload
// for each item in mapping order.
type Engine struct {
	dialer   Dialer
	presets  PresetSource
	backups  *BackupManager
	logger   Logger
	clock    Clock
	ids      IDGenerator
	policies map[Step]Policy

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPolicies overrides the per-step failure policies.
func WithPolicies(p map[Step]Policy) EngineOption {
	return func(e *Engine) { e.policies = p }
}

// NewEngine creates an Engine. backups may be nil, in which case no
// snapshots are taken.
func NewEngine(dialer Dialer, presets PresetSource, backups *BackupManager, logger Logger, clock Clock, ids IDGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		dialer:   dialer,
		presets:  presets,
		backups:  backups,
		logger:   logger,
		clock:    clock,
		ids:      ids,
		policies: DefaultPolicies,
		locks:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Preflight resolves the request and checks that it can be deployed without
// touching the network. It returns a *PreflightError when it cannot.
func (e *Engine) Preflight(req Request) ([]ResolvedItem, error) {
	if req.Profile == nil {
		return nil, &PreflightError{Reason: "no profile selected"}
	}
	if req.Preset == "" {
		return nil, &PreflightError{Reason: "no preset selected"}
	}
	if err := ValidatePresetName(req.Preset); err != nil {
		return nil, &PreflightError{Reason: err.Error()}
	}

	items := Resolve(req.Mappings, req.Preset, req.Profile.Root, e.presets)
	if len(items) == 0 {
		return nil, &PreflightError{Reason: "no enabled mappings"}
	}

	perr := &PreflightError{}
	for _, item := range items {
		switch {
		case item.Invalid != nil:
			perr.Invalid = append(perr.Invalid, fmt.Sprintf("%s: %v", item.Name, item.Invalid))
		case !item.LocalExists:
			perr.Missing = append(perr.Missing, item.LocalRelativePath)
		}
	}
	if len(perr.Missing) > 0 || len(perr.Invalid) > 0 {
		return items, perr
	}
	return items, nil
}

// Deploy runs req to completion. The returned Deployment is always non-nil
// and records every item attempted. The error is nil for outcomes done and
// declined.
func (e *Engine) Deploy(ctx context.Context, req Request) (*Deployment, error) {
	r := &run{engine: e, req: req}
	r.d = &Deployment{
		ID:        e.ids.New(),
		Preset:    req.Preset,
		StartedAt: e.clock.Now(),
		State:     StateIdle,
	}
	if req.Profile != nil {
		r.d.Profile = req.Profile.Name
	}

	err := r.execute(ctx)
	r.d.FinishedAt = e.clock.Now()
	return r.d, err
}

// acquire takes the per-profile slot, waiting until any other deployment to
// the same profile finishes.
func (e *Engine) acquire(ctx context.Context, profile string) (func(), error) {
	e.mu.Lock()
	sem, ok := e.locks[profile]
	if !ok {
		sem = make(chan struct{}, 1)
		e.locks[profile] = sem
	}
	e.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run holds the state of one deployment.
type run struct {
	engine *Engine
	req    Request
	d      *Deployment
	items  []ResolvedItem
}

func (r *run) emit(ev Event) {
	if ev.State == "" {
		ev.State = r.d.State
	}
	if ev.Total == 0 {
		ev.Total = len(r.items)
	}
	if r.req.Observe != nil {
		r.req.Observe(ev)
	}
}

func (r *run) transition(s State, msg string) {
	r.d.State = s
	r.emit(Event{State: s, Message: msg})
}

func (r *run) abort(err error) error {
	r.d.Outcome = OutcomeAborted
	r.d.Err = err
	r.d.State = StateAborted
	r.emit(Event{State: StateAborted, Message: "deployment aborted", Err: err})
	return err
}

func (r *run) execute(ctx context.Context) error {
	e := r.engine
	log := e.logger

	r.transition(StatePreflight, "checking preset")
	items, err := e.Preflight(r.req)
	r.items = items
	r.d.Total = len(items)
	if err != nil {
		log.Error("preflight failed", "profile", r.d.Profile, "preset", r.d.Preset, "error", err)
		return r.abort(err)
	}

	if r.req.Confirm == nil {
		return r.abort(ErrNoConfirmer)
	}
	prompt := fmt.Sprintf("Deploy %d file(s) from preset %q to %s (%s)?",
		len(items), r.req.Preset, r.req.Profile.Name, address(*r.req.Profile))
	ok, err := r.req.Confirm.Confirm(prompt)
	if err != nil {
		return r.abort(fmt.Errorf("confirming deployment: %w", err))
	}
	if !ok {
		log.Info("deployment declined", "profile", r.d.Profile, "preset", r.d.Preset)
		r.d.Outcome = OutcomeDeclined
		r.d.State = StateAborted
		r.emit(Event{State: StateAborted, Message: "deployment declined"})
		return nil
	}

	release, err := e.acquire(ctx, r.d.Profile)
	if err != nil {
		return r.abort(err)
	}
	defer release()

	profile := *r.req.Profile
	conn, err := e.dialer.Dial(ctx, profile)
	if err != nil {
		var cerr *ConnectionError
		if !errors.As(err, &cerr) {
			err = &ConnectionError{Addr: address(profile), Err: err}
		}
		log.Error("connect failed", "host", profile.Host, "port", profile.Port, "error", err)
		return r.abort(err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn("closing connection", "error", err)
		}
	}()
	log.Info("connected", "host", profile.Host, "port", profile.Port, "tls", profile.TLS)

	// The stamp directory is created only once the server is reachable.
	r.d.Stamp = r.d.StartedAt.Format(StampLayout)
	backups := e.backups
	if backups != nil && anyBackup(items) {
		stamp, err := backups.Reserve(r.d.Profile, r.d.Preset, r.d.StartedAt)
		if err != nil {
			log.Warn("backups disabled for this run", "error", err)
			backups = nil
		} else {
			r.d.Stamp = stamp
		}
	}
	r.transition(StateConnected, "connected to "+address(profile))

	r.d.State = StateItem
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return r.abort(err)
		}
		res, err := r.deployItem(ctx, conn, backups, i, item)
		r.d.Items = append(r.d.Items, res)
		if err != nil {
			return r.abort(err)
		}
	}

	r.d.State = StateDone
	r.d.Outcome = OutcomeDone
	log.Info("deployment complete", "profile", r.d.Profile, "preset", r.d.Preset, "uploaded", r.d.Uploaded())
	r.emit(Event{State: StateDone, Message: "deployment complete"})
	return nil
}

// deployItem runs the backup and upload steps for one item. A non-nil error
// means a fatal step failed and the deployment must stop.
func (r *run) deployItem(ctx context.Context, conn Conn, backups *BackupManager, i int, item ResolvedItem) (ItemResult, error) {
	e := r.engine
	res := ItemResult{Item: item, Attempted: true}
	ev := Event{State: StateItem, Index: i + 1, Item: item.Name}

	if item.Backup && backups != nil {
		ev.Step = StepBackup
		ev.Message = "backing up " + item.RemoteAbsolutePath
		r.emit(ev)

		p, err := backups.Snapshot(ctx, conn, r.d.Profile, r.d.Preset, r.d.Stamp, item)
		if err != nil {
			res.BackupErr = err
			if fatal := r.stepFailed(StepBackup, ev, item, err); fatal {
				return res, err
			}
		} else {
			res.BackupPath = p
			e.logger.Info("backup ok", "item", item.Name, "remote", item.RemoteAbsolutePath, "path", p)
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	ev.Step = StepUpload
	ev.Message = "uploading " + item.LocalRelativePath + " -> " + item.RemoteAbsolutePath
	ev.Err = nil
	r.emit(ev)

	if err := r.upload(conn, item); err != nil {
		res.UploadErr = err
		if fatal := r.stepFailed(StepUpload, ev, item, err); fatal {
			return res, err
		}
		return res, nil
	}
	res.Uploaded = true
	e.logger.Info("uploaded", "item", item.Name, "remote", item.RemoteAbsolutePath)
	return res, nil
}

func (r *run) upload(conn Conn, item ResolvedItem) error {
	f, err := r.engine.presets.Open(r.req.Preset, item.LocalRelativePath)
	if err != nil {
		return &TransferError{Item: item.Name, Remote: item.RemoteAbsolutePath, Err: err}
	}
	defer f.Close()

	if err := conn.Store(item.RemoteAbsolutePath, f); err != nil {
		return &TransferError{Item: item.Name, Remote: item.RemoteAbsolutePath, Err: err}
	}
	return nil
}

// stepFailed logs a failed step according to its policy and reports whether
// the deployment must stop.
func (r *run) stepFailed(step Step, ev Event, item ResolvedItem, err error) bool {
	log := r.engine.logger
	ev.Err = err
	ev.Message = fmt.Sprintf("%s failed", step)
	r.emit(ev)

	if policyFor(r.engine.policies, step) == PolicyFatal {
		log.Error(fmt.Sprintf("%s failed, aborting", step), "item", item.Name, "remote", item.RemoteAbsolutePath, "error", err)
		return true
	}
	log.Warn(fmt.Sprintf("%s failed, continuing", step), "item", item.Name, "remote", item.RemoteAbsolutePath, "error", err)
	return false
}

func anyBackup(items []ResolvedItem) bool {
	for _, item := range items {
		if item.Backup {
			return true
		}
	}
	return false
}

func address(p config.Profile) string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}
