package recap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"recaps/internal/types"
)

// --- Test Doubles ---
//
// The in-memory stores honor the same unique keys as the database:
// (report_date, kind) for reports, (report_id, user_id) for the snapshot,
// (report_id, offset) for pages and (user_id, report_id) for artifacts.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReports struct {
	mu          sync.Mutex
	next        int64
	rows        map[int64]*types.Report
	completions int // transitions into COMPLETE
	markCalls   int // MarkComplete calls, including repeats
}

func newFakeReports() *fakeReports {
	return &fakeReports{rows: map[int64]*types.Report{}}
}

func (f *fakeReports) Create(_ context.Context, date time.Time, kind types.ReportKind) (*types.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ReportDate.Equal(date) && r.Kind == kind {
			return nil, types.NewAppError(types.ErrCodeConflictDuplicateReport, "report exists", nil)
		}
	}
	f.next++
	r := &types.Report{ID: f.next, ReportDate: date, Kind: kind, Status: types.ReportStatusQueued}
	f.rows[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeReports) GetByID(_ context.Context, id int64) (*types.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundReport, "report not found", nil)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) MostRecent(_ context.Context) (*types.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *types.Report
	for _, r := range f.rows {
		if best == nil || r.ReportDate.After(best.ReportDate) {
			best = r
		}
	}
	if best == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundReport, "no reports", nil)
	}
	cp := *best
	return &cp, nil
}

func (f *fakeReports) transition(id int64, to types.ReportStatus, from ...types.ReportStatus) bool {
	r, ok := f.rows[id]
	if !ok {
		return false
	}
	allowed := len(from) == 0
	for _, s := range from {
		if r.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return false
	}
	now := time.Now()
	switch to {
	case types.ReportStatusRunning:
		if r.StartTime == nil {
			r.StartTime = &now
		}
		if r.Status == types.ReportStatusError {
			r.Error, r.EndTime = nil, nil
		}
	case types.ReportStatusComplete, types.ReportStatusError:
		if r.EndTime == nil || (to == types.ReportStatusComplete && r.Status == types.ReportStatusError) {
			r.EndTime = &now
		}
		if to == types.ReportStatusComplete {
			r.Error = nil
		}
	}
	r.Status = to
	return true
}

func (f *fakeReports) MarkRunning(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transition(id, types.ReportStatusRunning,
		types.ReportStatusQueued, types.ReportStatusRunning, types.ReportStatusError), nil
}

func (f *fakeReports) MarkComplete(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	was := f.rows[id] != nil && f.rows[id].Status == types.ReportStatusComplete
	ok := f.transition(id, types.ReportStatusComplete,
		types.ReportStatusRunning, types.ReportStatusJobComplete, types.ReportStatusComplete,
		types.ReportStatusError)
	if ok && !was {
		f.completions++
	}
	return ok, nil
}

func (f *fakeReports) MarkError(_ context.Context, id int64, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := f.transition(id, types.ReportStatusError)
	if ok {
		f.rows[id].Error = &message
	}
	return ok, nil
}

func (f *fakeReports) SetTotalUsers(_ context.Context, id int64, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundReport, "report not found", nil)
	}
	r.TotalUsers = total
	return nil
}

func (f *fakeReports) status(id int64) types.ReportStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

// fakeAudience is both the snapshot store and the live audience source.
type fakeAudience struct {
	mu          sync.Mutex
	live        []types.AudienceMember
	snapshot    map[int64]map[int64]types.AudienceMember
	queries     int
	insertCalls int
}

func newFakeAudience(n int) *fakeAudience {
	f := &fakeAudience{snapshot: map[int64]map[int64]types.AudienceMember{}}
	for i := 1; i <= n; i++ {
		f.live = append(f.live, types.AudienceMember{
			UserID:    int64(i),
			UserUUID:  fmt.Sprintf("uuid-%d", i),
			UserName:  fmt.Sprintf("user%d", i),
			TotalSets: i,
		})
	}
	return f
}

func (f *fakeAudience) InsertBatch(_ context.Context, reportID int64, members []types.AudienceMember) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	rows := f.snapshot[reportID]
	if rows == nil {
		rows = map[int64]types.AudienceMember{}
		f.snapshot[reportID] = rows
	}
	var n int64
	for _, m := range members {
		if _, ok := rows[m.UserID]; ok {
			continue
		}
		m.ReportID = reportID
		rows[m.UserID] = m
		n++
	}
	return n, nil
}

func (f *fakeAudience) Count(_ context.Context, reportID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshot[reportID]), nil
}

func (f *fakeAudience) Page(_ context.Context, reportID int64, offset, limit int) ([]types.AudienceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]types.AudienceMember, 0, len(f.snapshot[reportID]))
	for _, m := range f.snapshot[reportID] {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	return window(all, offset, limit), nil
}

func (f *fakeAudience) Audience(_ context.Context, _ types.Period) ([]types.AudienceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return append([]types.AudienceMember(nil), f.live...), nil
}

func (f *fakeAudience) AudienceWindow(_ context.Context, _ types.Period, offset, limit int) ([]types.AudienceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return window(append([]types.AudienceMember(nil), f.live...), offset, limit), nil
}

func (f *fakeAudience) AudienceMember(_ context.Context, _ types.Period, userID int64) (*types.AudienceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.live {
		if m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
}

func window(all []types.AudienceMember, offset, limit int) []types.AudienceMember {
	if offset >= len(all) {
		return nil
	}
	return all[offset:min(offset+limit, len(all))]
}

type fakePages struct {
	mu   sync.Mutex
	next int64
	rows map[int64]*types.PageLog
	now  time.Time
}

func newFakePages() *fakePages {
	return &fakePages{rows: map[int64]*types.PageLog{}, now: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakePages) Ensure(_ context.Context, reportID int64, offset, pageSize int) (*types.PageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pl := range f.rows {
		if pl.ReportID == reportID && pl.Offset == offset {
			cp := *pl
			return &cp, nil
		}
	}
	f.next++
	pl := &types.PageLog{
		ID: f.next, ReportID: reportID, Offset: offset, PageSize: pageSize,
		Status: types.PageStatusQueued, CreatedAt: f.now, UpdatedAt: f.now,
	}
	f.rows[pl.ID] = pl
	cp := *pl
	return &cp, nil
}

func (f *fakePages) GetByID(_ context.Context, id int64) (*types.PageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.rows[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundPageLog, "page log not found", nil)
	}
	cp := *pl
	return &cp, nil
}

func (f *fakePages) sorted(reportID int64) []*types.PageLog {
	var out []*types.PageLog
	for _, pl := range f.rows {
		if pl.ReportID == reportID {
			out = append(out, pl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func (f *fakePages) NextQueued(_ context.Context, reportID int64) (*types.PageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pl := range f.sorted(reportID) {
		if pl.Status == types.PageStatusQueued {
			cp := *pl
			return &cp, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundPageLog, "no queued pages remain", nil)
}

func (f *fakePages) ListStale(_ context.Context, reportID int64, before time.Time) ([]types.PageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.PageLog
	for _, pl := range f.sorted(reportID) {
		unpublished := pl.Status == types.PageStatusQueued && pl.QueueMessageID == nil
		idle := pl.Status != types.PageStatusJobComplete && pl.UpdatedAt.Before(before)
		if unpublished || idle {
			out = append(out, *pl)
		}
	}
	return out, nil
}

func (f *fakePages) update(id int64, fn func(pl *types.PageLog)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.rows[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundPageLog, "page log not found", nil)
	}
	fn(pl)
	pl.UpdatedAt = f.now
	return nil
}

func (f *fakePages) SetMessageID(_ context.Context, id int64, messageID string) error {
	return f.update(id, func(pl *types.PageLog) { pl.QueueMessageID = &messageID })
}

func (f *fakePages) MarkRunning(_ context.Context, id int64) error {
	return f.update(id, func(pl *types.PageLog) {
		pl.Status = types.PageStatusRunning
		pl.CurrentOffset = pl.Offset
	})
}

func (f *fakePages) SetTotal(_ context.Context, id int64, total int) error {
	return f.update(id, func(pl *types.PageLog) { pl.TotalUsers = total })
}

func (f *fakePages) Heartbeat(_ context.Context, id int64, currentOffset int) error {
	return f.update(id, func(pl *types.PageLog) { pl.CurrentOffset = currentOffset })
}

func (f *fakePages) MarkComplete(_ context.Context, id int64, timeTaken time.Duration) error {
	return f.update(id, func(pl *types.PageLog) {
		ms := timeTaken.Milliseconds()
		pl.Status = types.PageStatusJobComplete
		pl.TimeTakenMs = &ms
	})
}

func (f *fakePages) Requeue(_ context.Context, id int64) error {
	return f.update(id, func(pl *types.PageLog) {
		pl.Status = types.PageStatusQueued
		pl.QueueMessageID = nil
	})
}

func (f *fakePages) Counts(_ context.Context, reportID int64) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total, outstanding int
	for _, pl := range f.rows {
		if pl.ReportID != reportID {
			continue
		}
		total++
		if pl.Status != types.PageStatusJobComplete {
			outstanding++
		}
	}
	return total, outstanding, nil
}

func (f *fakePages) list(reportID int64) []types.PageLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.PageLog
	for _, pl := range f.sorted(reportID) {
		out = append(out, *pl)
	}
	return out
}

type artifactKey struct{ userID, reportID int64 }

type fakeArtifacts struct {
	mu         sync.Mutex
	next       int64
	rows       map[artifactKey]*types.UserArtifact
	optOut     map[int64]bool
	failUpsert map[int64]bool
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{
		rows:       map[artifactKey]*types.UserArtifact{},
		optOut:     map[int64]bool{},
		failUpsert: map[int64]bool{},
	}
}

func (f *fakeArtifacts) Upsert(_ context.Context, o types.ArtifactOutcome) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert[o.UserID] {
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user artifact", errors.New("connection reset"))
	}
	k := artifactKey{o.UserID, o.ReportID}
	a, ok := f.rows[k]
	if !ok {
		f.next++
		a = &types.UserArtifact{
			ID: f.next, UUID: fmt.Sprintf("art-%d", f.next),
			UserID: o.UserID, UserUUID: fmt.Sprintf("uuid-%d", o.UserID), ReportID: o.ReportID,
		}
		f.rows[k] = a
	}
	a.PeriodKey = o.PeriodKey
	a.Status = o.Status
	if o.DataURL != "" {
		a.DataURL = o.DataURL
	}
	a.TimeTakenMs = o.TimeTakenMs
	a.UpdatedAt = time.Now()
	a.Error = nil
	if o.Error != "" {
		msg := o.Error
		a.Error = &msg
	}
	return a.ID, !ok, nil
}

func (f *fakeArtifacts) pending(reportID int64) []types.PendingEmail {
	var out []types.PendingEmail
	stale := time.Now().Add(-15 * time.Minute)
	for _, a := range f.rows {
		interrupted := a.Status == types.ArtifactStatusRunning && a.DataURL != "" && a.UpdatedAt.Before(stale)
		if a.ReportID != reportID || (a.Status != types.ArtifactStatusComplete && !interrupted) ||
			a.EmailSentAt != nil || a.EmailResponse != nil || f.optOut[a.UserID] {
			continue
		}
		out = append(out, types.PendingEmail{
			ArtifactID: a.ID, ArtifactUUID: a.UUID, UserID: a.UserID,
			UserUUID: a.UserUUID, DataURL: a.DataURL,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (f *fakeArtifacts) ListPendingEmail(_ context.Context, reportID int64) ([]types.PendingEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending(reportID), nil
}

func (f *fakeArtifacts) PendingEmailForUser(_ context.Context, reportID, userID int64) (*types.PendingEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending(reportID) {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no pending recap email for user", nil)
}

func (f *fakeArtifacts) byID(id int64) *types.UserArtifact {
	for _, a := range f.rows {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (f *fakeArtifacts) MarkEmailRunning(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byID(id)
	if a == nil {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user artifact not found", nil)
	}
	a.Status = types.ArtifactStatusRunning
	a.UpdatedAt = time.Now()
	return nil
}

func (f *fakeArtifacts) RecordEmail(_ context.Context, id int64, o types.EmailOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byID(id)
	if a == nil {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user artifact not found", nil)
	}
	a.Status = o.Status
	a.EmailResponse = o.Response
	a.EmailTimeTakenMs = &o.TimeTakenMs
	a.EmailSentAt = o.SentAt
	a.UpdatedAt = time.Now()
	a.Error = nil
	if o.Error != "" {
		msg := o.Error
		a.Error = &msg
	}
	return nil
}

func (f *fakeArtifacts) get(userID, reportID int64) *types.UserArtifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[artifactKey{userID, reportID}]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// age moves an artifact's updated_at back by d.
func (f *fakeArtifacts) age(userID, reportID int64, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.rows[artifactKey{userID, reportID}]; ok {
		a.UpdatedAt = a.UpdatedAt.Add(-d)
	}
}

func (f *fakeArtifacts) count(reportID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.rows {
		if k.reportID == reportID {
			n++
		}
	}
	return n
}

type fakeBlobs struct {
	mu       sync.Mutex
	objects  map[string][]byte
	refs     map[string]string
	puts     int
	failKeys map[string]bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, refs: map[string]string{}, failKeys: map[string]bool{}}
}

func (f *fakeBlobs) Put(_ context.Context, key string, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failKeys[key] {
		return "", types.NewAppError(types.ErrCodeUpstreamBlobStore, "failed to upload recap", errors.New("slow down"))
	}
	f.objects[key] = append([]byte(nil), body...)
	ref := fmt.Sprintf("https://blobs.test/%s?v=%d", key, f.puts)
	f.refs[ref] = key
	return ref, nil
}

func (f *fakeBlobs) Get(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if body, ok := f.objects[f.refs[ref]]; ok {
		return body, nil
	}
	return nil, types.NewAppError(types.ErrCodeUpstreamBlobStore, "object not found", nil)
}

type fakePublisher struct {
	mu          sync.Mutex
	messages    []types.PageMessage
	failOffsets map[int]bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failOffsets: map[int]bool{}}
}

func (f *fakePublisher) PublishPage(_ context.Context, msg types.PageMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOffsets[msg.Offset] {
		return "", types.NewAppError(types.ErrCodeUpstreamQueue, "failed to publish page", errors.New("throttled"))
	}
	f.messages = append(f.messages, msg)
	return fmt.Sprintf("msg-%d", len(f.messages)), nil
}

func (f *fakePublisher) published() []types.PageMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.PageMessage(nil), f.messages...)
}

type fakeComputer struct {
	mu        sync.Mutex
	failUsers map[int64]error
	computed  []int64
	loadErr   error
}

func newFakeComputer() *fakeComputer {
	return &fakeComputer{failUsers: map[int64]error{}}
}

func (f *fakeComputer) LoadPeriod(_ context.Context, p types.Period) (*PeriodContext, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &PeriodContext{Period: p, Globals: types.GlobalStats{TotalPieces: 1000, TotalSets: 10}}, nil
}

func (f *fakeComputer) Compute(_ context.Context, m types.AudienceMember, pc *PeriodContext) (*types.RecapDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.computed = append(f.computed, m.UserID)
	if err := f.failUsers[m.UserID]; err != nil {
		return nil, err
	}
	return &types.RecapDocument{
		ReportDate: pc.Period.Start.Format(time.DateOnly),
		User:       types.UserProfile{UUID: m.UserUUID, UserName: m.UserName},
		Stories: types.RecapStories{
			Sets: types.SetsStory{
				TotalSetsAdded:  m.TotalSets,
				TotalSetsBuilt:  1,
				TotalPieceCount: int64(m.TotalSets) * 100,
			},
			Minifigs: types.MinifigsStory{TotalMinifigsAdded: 2},
		},
	}, nil
}

func (f *fakeComputer) order() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.computed...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	events   []types.EmailEvent
	reject   map[string]bool
	transErr map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{reject: map[string]bool{}, transErr: map[string]error{}}
}

func (f *fakeNotifier) SendEvent(_ context.Context, ev types.EmailEvent) (*types.EmailReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if err := f.transErr[ev.UserID]; err != nil {
		return nil, err
	}
	if f.reject[ev.UserID] {
		raw, _ := json.Marshal(map[string]any{"success": false, "message": "contact not found"})
		return &types.EmailReceipt{Success: false, Message: "contact not found", Raw: raw}, nil
	}
	return &types.EmailReceipt{Success: true, Raw: json.RawMessage(`{"success":true}`)}, nil
}

type fakeMetrics struct {
	mu             sync.Mutex
	dispatched     int
	publishFailed  int
	pages          int
	completed      int
	sent, failures int
}

func (f *fakeMetrics) PagesDispatched(_ context.Context, _ types.ReportKind, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched += n
}

func (f *fakeMetrics) PagePublishFailed(context.Context, types.ReportKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishFailed++
}

func (f *fakeMetrics) PageProcessed(context.Context, types.ReportKind, time.Duration, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages++
}

func (f *fakeMetrics) ReportCompleted(context.Context, types.ReportKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
}

func (f *fakeMetrics) EmailsProcessed(_ context.Context, sent, failed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent += sent
	f.failures += failed
}

// harness wires a Service over the fakes.
type harness struct {
	reports   *fakeReports
	audience  *fakeAudience
	pages     *fakePages
	artifacts *fakeArtifacts
	blobs     *fakeBlobs
	publisher *fakePublisher
	computer  *fakeComputer
	notifier  *fakeNotifier
	metrics   *fakeMetrics
	svc       *Service
}

func newHarness(members int, opts Options) *harness {
	h := &harness{
		reports:   newFakeReports(),
		audience:  newFakeAudience(members),
		pages:     newFakePages(),
		artifacts: newFakeArtifacts(),
		blobs:     newFakeBlobs(),
		publisher: newFakePublisher(),
		computer:  newFakeComputer(),
		notifier:  newFakeNotifier(),
		metrics:   &fakeMetrics{},
	}
	h.svc = NewService(Deps{
		Reports:   h.reports,
		Audience:  h.audience,
		Source:    h.audience,
		Pages:     h.pages,
		Artifacts: h.artifacts,
		Blobs:     h.blobs,
		Publisher: h.publisher,
		Computer:  h.computer,
		Notifier:  h.notifier,
		Metrics:   h.metrics,
		Log:       discardLogger(),
	}, opts)
	return h
}

var september = time.Date(2025, time.September, 14, 0, 0, 0, 0, time.UTC)

// runAll processes every published message in publish order.
func (h *harness) runAll(ctx context.Context) ([]*PageResult, error) {
	var out []*PageResult
	for _, msg := range h.publisher.published() {
		res, err := h.svc.ProcessPage(ctx, msg)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
