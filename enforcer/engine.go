/*
 * Cherry - An OpenFlow Controller
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package enforcer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kndrvt/acl-manager/acl"
	"github.com/kndrvt/acl-manager/compiler"
	"github.com/kndrvt/acl-manager/topology"

	lru "github.com/hashicorp/golang-lru"
	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("enforcer")
)

// Every cookie of our flow entries has this tag in the upper 32 bits.
const cookieTag uint64 = 0x2021 << 32

type AckMode uint8

const (
	// AckBarrier waits for the barrier reply of each flow-mod.
	AckBarrier AckMode = iota
	// AckOptimistic assumes success once the flow-mod is sent.
	AckOptimistic
)

func ParseAckMode(s string) (AckMode, error) {
	switch strings.ToLower(s) {
	case "", "barrier":
		return AckBarrier, nil
	case "optimistic":
		return AckOptimistic, nil
	default:
		return 0, fmt.Errorf("unknown ack mode: %v", s)
	}
}

func (r AckMode) String() string {
	if r == AckOptimistic {
		return "optimistic"
	}

	return "barrier"
}

type Config struct {
	Ack               AckMode
	ReconcileInterval time.Duration
	GracePeriod       time.Duration
	Retry             RetryConfig
	// Zero runs the bus commands on the caller's goroutine.
	Workers      int
	MaxFlows     int
	IdleTimeout  uint16
	BasePriority uint16
	ICMPReject   bool
	// Packet-ins of a flow decided within this window are not compiled again.
	DedupWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Ack:               AckBarrier,
		ReconcileInterval: 30 * time.Second,
		GracePeriod:       5 * time.Minute,
		Retry: RetryConfig{
			Initial:  200 * time.Millisecond,
			Max:      5 * time.Second,
			Attempts: 5,
		},
		Workers:      8,
		MaxFlows:     65536,
		IdleTimeout:  300,
		BasePriority: compiler.DefaultBasePriority,
		DedupWindow:  2 * time.Second,
	}
}

func (r *Config) normalize() {
	def := DefaultConfig()
	if r.ReconcileInterval <= 0 {
		r.ReconcileInterval = def.ReconcileInterval
	}
	if r.GracePeriod <= 0 {
		r.GracePeriod = def.GracePeriod
	}
	if r.Retry.Initial <= 0 {
		r.Retry.Initial = def.Retry.Initial
	}
	if r.Retry.Max < r.Retry.Initial {
		r.Retry.Max = r.Retry.Initial
	}
	if r.Retry.Attempts < 1 {
		r.Retry.Attempts = 1
	}
	if r.Workers < 0 {
		r.Workers = 0
	}
	if r.MaxFlows <= 0 {
		r.MaxFlows = def.MaxFlows
	}
	if r.DedupWindow <= 0 {
		r.DedupWindow = def.DedupWindow
	}
}

// Bus is the session layer. InstallFlow and RemoveFlow call done exactly once
// when the switch confirms or rejects the command, unless they return an
// error, in which case done is never called.
type Bus interface {
	InstallFlow(dpid uint64, spec compiler.FlowSpec, done func(error)) error
	RemoveFlow(dpid uint64, spec compiler.FlowSpec, done func(error)) error
	// PacketOut sends the frame back to the switch to be forwarded normally.
	PacketOut(dpid uint64, inPort uint32, frame []byte) error
	// SendToPort emits the frame on the port.
	SendToPort(dpid uint64, port uint32, frame []byte) error
}

// Engine keeps the switch flow tables consistent with the policy and the
// topology.
type Engine struct {
	cfg      Config
	store    *acl.Store
	topo     *topology.Model
	compiler *compiler.Compiler
	bus      Bus
	sink     EventSink

	mutex      sync.Mutex
	records    map[compiler.Key]*record
	cookies    map[uint64]*record
	nextCookie uint32
	opSeq      uint64

	// Flow tuples that we have seen, which reconciliation recompiles.
	tuples *lru.Cache
	recent *flowCache

	reconcileMutex sync.Mutex
	work           chan *operation
	trigger        chan struct{}
	after          func(time.Duration, func()) timer
	now            func() time.Time
}

func New(cfg Config, store *acl.Store, topo *topology.Model, bus Bus, sink EventSink) *Engine {
	if store == nil {
		panic("store is nil")
	}
	if topo == nil {
		panic("topology is nil")
	}
	if bus == nil {
		panic("bus is nil")
	}
	if sink == nil {
		sink = LogSink{}
	}
	cfg.normalize()

	tuples, err := lru.New(cfg.MaxFlows)
	if err != nil {
		panic(fmt.Sprintf("failed to init a LRU flow tuple cache: %v", err))
	}
	e := &Engine{
		cfg:      cfg,
		store:    store,
		topo:     topo,
		compiler: compiler.New(cfg.BasePriority),
		bus:      bus,
		sink:     sink,
		records:  make(map[compiler.Key]*record),
		cookies:  make(map[uint64]*record),
		tuples:   tuples,
		recent:   newFlowCache(cfg.MaxFlows, cfg.DedupWindow),
		trigger:  make(chan struct{}, 1),
		after:    afterFunc,
		now:      time.Now,
	}
	if cfg.Workers > 0 {
		e.work = make(chan *operation, 4096)
	}

	return e
}

func (r *Engine) Config() Config {
	return r.cfg
}

func (r *Engine) Store() *acl.Store {
	return r.store
}

func (r *Engine) Topology() *topology.Model {
	return r.topo
}

// Run runs the workers, the reconciliation loop and the garbage collector
// until ctx is canceled.
func (r *Engine) Run(ctx context.Context) error {
	for i := 0; i < r.cfg.Workers; i++ {
		go r.worker(ctx)
	}

	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	logger.Infof("enforcement engine started: ack=%v, workers=%v", r.cfg.Ack, r.cfg.Workers)
	for {
		select {
		case <-ctx.Done():
			logger.Info("enforcement engine stopped")
			return nil
		case <-r.trigger:
			r.Reconcile()
		case <-ticker.C:
			r.Reconcile()
			r.collect()
		}
	}
}

func (r *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-r.work:
			r.execute(op)
		}
	}
}

// Trigger requests an asynchronous reconciliation.
func (r *Engine) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
		// Already requested.
	}
}

// ReloadPolicy loads a new policy from src, swaps it, and reconciles.
func (r *Engine) ReloadPolicy(src acl.Source) error {
	doc, err := src.Load()
	if err != nil {
		return err
	}
	if _, err := r.store.Reload(doc); err != nil {
		return err
	}
	r.recent.RemoveAll()
	r.Trigger()

	return nil
}

func (r *Engine) nextOp() uint64 {
	return atomic.AddUint64(&r.opSeq, 1)
}

func (r *Engine) emit(e Event) {
	e.Time = r.now()
	r.sink.Emit(e)
}

// NOTE: The caller should hold the record lock.
func (r *Engine) transition(rec *record, to State, err error) {
	from := rec.state
	rec.state = to
	rec.updated = r.now()
	kind := EventTransition
	if to == Failed {
		kind = EventFailure
	}
	r.emit(Event{Kind: kind, DPID: rec.key.DPID, Key: rec.key.String(), Rule: rec.entry.RuleID, From: from, To: to, Verdict: rec.entry.Verdict, Err: err})
}

// NOTE: The caller should hold the record lock.
func (r *Engine) violation(rec *record, err error) {
	logger.Criticalf("invariant violation on %v: %v", rec.key, err)
	r.emit(Event{Kind: EventViolation, DPID: rec.key.DPID, Key: rec.key.String(), Rule: rec.entry.RuleID, From: rec.state, To: Unknown, Err: err})
	rec.op = r.nextOp()
	rec.stopRetry()
	rec.inflight = false
	rec.attempts = 0
	rec.failedRemove = false
	rec.state = Unknown
	rec.updated = r.now()
}

func (r *Engine) getRecord(key compiler.Key) *record {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, ok := r.records[key]
	if ok {
		return rec
	}
	rec = &record{key: key, state: Unknown, updated: r.now()}
	for {
		r.nextCookie++
		cookie := cookieTag | uint64(r.nextCookie)
		if _, used := r.cookies[cookie]; !used {
			rec.cookie = cookie
			break
		}
	}
	r.records[key] = rec
	r.cookies[rec.cookie] = rec

	return rec
}

func (r *Engine) lookup(key compiler.Key) (*record, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, ok := r.records[key]
	return rec, ok
}

// desire marks entry as desired and returns the operation to issue, if any.
func (r *Engine) desire(entry compiler.FlowEntry, retryFailed bool) *operation {
	rec := r.getRecord(entry.Key())
	rec.mutex.Lock()
	defer rec.mutex.Unlock()

	want := entry
	rec.want = &want

	return r.converge(rec, retryFailed)
}

// converge decides the next operation that moves the record toward its
// desired entry. Nothing is issued while another operation is in flight; the
// completion converges again.
//
// NOTE: The caller should hold the record lock.
func (r *Engine) converge(rec *record, retryFailed bool) *operation {
	if rec.inflight {
		return nil
	}
	// No flow-mods toward a disconnected switch.
	if !r.topo.IsConnected(rec.key.DPID) {
		return nil
	}

	switch rec.state {
	case Unknown, Removed:
		if rec.want == nil {
			return nil
		}
		return r.start(rec, opInstall, *rec.want)
	case Installed:
		if rec.want == nil || !rec.want.Equivalent(rec.entry) {
			return r.start(rec, opRemove, rec.entry)
		}
		// Same switch state. Just refresh the rule and the tuple.
		rec.entry = *rec.want
		return nil
	case Failed:
		// Only the reconciliation retries a failed record.
		if !retryFailed {
			return nil
		}
		if rec.failedRemove {
			return r.start(rec, opRemove, rec.entry)
		}
		if rec.want == nil {
			rec.entry.RuleID = ""
			r.transition(rec, Removed, nil)
			return nil
		}
		return r.start(rec, opInstall, *rec.want)
	default:
		return nil
	}
}

// NOTE: The caller should hold the record lock.
func (r *Engine) start(rec *record, kind opKind, entry compiler.FlowEntry) *operation {
	rec.inflight = true
	rec.kind = kind
	rec.op = r.nextOp()
	rec.attempts = 0
	rec.failedRemove = false
	rec.entry = entry
	if kind == opInstall {
		r.transition(rec, PendingInstall, nil)
	} else {
		r.transition(rec, PendingRemove, nil)
	}

	return &operation{rec: rec, id: rec.op, kind: kind, entry: entry}
}

func (r *Engine) submit(op *operation) {
	if op == nil {
		return
	}
	if r.work == nil {
		r.execute(op)
		return
	}

	select {
	case r.work <- op:
	default:
		logger.Warning("enforcer work queue is full: running the operation on a new goroutine")
		go r.execute(op)
	}
}

func (r *Engine) execute(op *operation) {
	rec := op.rec
	rec.mutex.Lock()
	// Superseded while waiting in the queue.
	stale := rec.op != op.id || !rec.inflight
	rec.mutex.Unlock()
	if stale {
		logger.Debugf("skip the stale %v operation for %v", op.kind, rec.key)
		return
	}

	spec := op.entry.Spec(rec.cookie, r.cfg.IdleTimeout)
	done := func(err error) {
		r.complete(rec, op.id, op.kind, err, false)
	}
	var err error
	if op.kind == opInstall {
		err = r.bus.InstallFlow(rec.key.DPID, spec, done)
	} else {
		err = r.bus.RemoveFlow(rec.key.DPID, spec, done)
	}
	if err != nil {
		r.complete(rec, op.id, op.kind, err, false)
		return
	}
	if r.cfg.Ack == AckOptimistic {
		r.complete(rec, op.id, op.kind, nil, true)
	}
}

// complete applies the result of the operation id. assumed is true for the
// optimistic completion right after sending.
func (r *Engine) complete(rec *record, id uint64, kind opKind, err error, assumed bool) {
	rec.mutex.Lock()
	next := r.completeLocked(rec, id, kind, err, assumed)
	rec.mutex.Unlock()

	r.submit(next)
}

// NOTE: The caller should hold the record lock.
func (r *Engine) completeLocked(rec *record, id uint64, kind opKind, err error, assumed bool) *operation {
	if id != rec.op {
		logger.Debugf("ignore the stale completion of %v: op=%v, current=%v, err=%v", rec.key, id, rec.op, err)
		return nil
	}

	if !rec.inflight {
		switch {
		case assumed:
			// The real acknowledgment has arrived first.
			return nil
		case r.cfg.Ack == AckOptimistic:
			if err == nil {
				return nil
			}
			// The switch rejected what we assumed to be done.
			rec.inflight = true
			if kind == opInstall {
				r.transition(rec, PendingInstall, err)
			} else {
				r.transition(rec, PendingRemove, err)
			}
		default:
			r.violation(rec, fmt.Errorf("unexpected completion of the %v operation", kind))
			return nil
		}
	}

	if err == nil {
		rec.inflight = false
		rec.attempts = 0
		if kind == opInstall {
			r.transition(rec, Installed, nil)
		} else {
			r.transition(rec, Removed, nil)
		}
		return r.converge(rec, false)
	}

	rec.attempts++
	if rec.attempts >= r.cfg.Retry.Attempts {
		rec.inflight = false
		rec.failedRemove = kind == opRemove
		logger.Errorf("giving up the %v operation of %v after %v attempts: %v", kind, rec.key, rec.attempts, err)
		r.transition(rec, Failed, err)
		return nil
	}

	delay := r.cfg.Retry.delay(rec.attempts)
	logger.Warningf("failed to %v %v (attempt %v): %v: retry after %v", kind, rec.key, rec.attempts, err, delay)
	rec.stopRetry()
	rec.retry = r.after(delay, func() { r.retry(rec, id) })

	return nil
}

func (r *Engine) retry(rec *record, id uint64) {
	rec.mutex.Lock()
	if rec.op != id || !rec.inflight {
		rec.mutex.Unlock()
		return
	}
	rec.retry = nil
	// Disconnect cancels the operation.
	if !r.topo.IsConnected(rec.key.DPID) {
		rec.mutex.Unlock()
		return
	}
	rec.op = r.nextOp()
	op := &operation{rec: rec, id: rec.op, kind: rec.kind, entry: rec.entry}
	rec.mutex.Unlock()

	r.submit(op)
}

func (r *Engine) recordsOf(dpid uint64) []*record {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var result []*record
	for key, rec := range r.records {
		if key.DPID == dpid {
			result = append(result, rec)
		}
	}

	return result
}

// disconnect cancels every operation toward the switch. The flow table of
// the switch is assumed to be gone.
func (r *Engine) disconnect(dpid uint64) {
	for _, rec := range r.recordsOf(dpid) {
		rec.mutex.Lock()
		rec.op = r.nextOp()
		rec.stopRetry()
		rec.inflight = false
		rec.attempts = 0

		to := rec.state
		switch rec.state {
		case Installed, PendingRemove:
			to = Removed
		case PendingInstall:
			to = Unknown
		case Failed:
			to = Unknown
			if rec.failedRemove {
				to = Removed
			}
		}
		rec.failedRemove = false
		if to != rec.state {
			r.transition(rec, to, nil)
		}
		rec.mutex.Unlock()
	}
}

// collect removes the records that are no longer useful, and then the
// switches that have been gone longer than the grace period.
func (r *Engine) collect() {
	connected := make(map[uint64]bool)
	for _, sw := range r.topo.Switches() {
		connected[sw.DPID] = sw.Connected
	}
	now := r.now()

	r.mutex.Lock()
	inUse := make(map[uint64]bool)
	for key, rec := range r.records {
		rec.mutex.Lock()
		idle := !rec.inflight && rec.want == nil && (rec.state == Removed || rec.state == Unknown)
		expired := !connected[key.DPID] && !rec.inflight && now.Sub(rec.updated) > r.cfg.GracePeriod
		rec.mutex.Unlock()
		if idle || expired {
			delete(r.records, key)
			delete(r.cookies, rec.cookie)
			continue
		}
		inUse[key.DPID] = true
	}
	r.mutex.Unlock()

	for _, dpid := range r.topo.Collect(r.cfg.GracePeriod, func(dpid uint64) bool { return inUse[dpid] }) {
		logger.Infof("collected the switch: dpid=%016x", dpid)
	}
}

// Records returns the snapshots of all the records ordered by their key.
func (r *Engine) Records() []Record {
	r.mutex.Lock()
	recs := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.mutex.Unlock()

	result := make([]Record, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.snapshot())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })

	return result
}

// State returns the state of the record for key.
func (r *Engine) State(key compiler.Key) (State, bool) {
	rec, ok := r.lookup(key)
	if !ok {
		return Unknown, false
	}
	rec.mutex.Lock()
	defer rec.mutex.Unlock()

	return rec.state, true
}

func (r *Engine) String() string {
	records := r.Records()
	count := make(map[State]int)
	for _, v := range records {
		count[v.State]++
	}

	return fmt.Sprintf("Engine(records=%v, tuples=%v, installed=%v, pending=%v, failed=%v, epoch=%v)",
		len(records), r.tuples.Len(), count[Installed], count[PendingInstall]+count[PendingRemove], count[Failed], r.store.Current().Epoch())
}
