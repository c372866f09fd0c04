package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/barvault/internal/archive"
	"github.com/rickgao/barvault/internal/merge"
	"github.com/rickgao/barvault/internal/model"
	"github.com/rickgao/barvault/internal/snapshot"
	"github.com/rickgao/barvault/internal/watermark"
)

// mockWatermarks returns fixed marks.
type mockWatermarks struct {
	set      watermark.Set
	degraded bool
	loads    int
}

func (m *mockWatermarks) Load(ctx context.Context) (watermark.Set, bool) {
	m.loads++
	if m.degraded {
		return watermark.Set{}, true
	}
	return m.set, false
}

type fetchCall struct {
	codes      []string
	start, end model.Date
}

// mockFetcher serves bars for every code it knows.
type mockFetcher struct {
	mu    sync.Mutex
	bars  map[string][]model.RawBar
	fail  map[int]error // Call index -> error
	calls []fetchCall
}

func (m *mockFetcher) Fetch(ctx context.Context, codes []string, start, end model.Date) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.calls)
	m.calls = append(m.calls, fetchCall{codes: slices.Clone(codes), start: start, end: end})
	if err := m.fail[idx]; err != nil {
		return nil, err
	}
	out := &Batch{Bars: make(map[string][]model.RawBar), Factors: model.FactorTableFromRows(nil)}
	for _, c := range codes {
		if b, ok := m.bars[c]; ok {
			out.Bars[c] = b
		}
	}
	return out, nil
}

// mockArchive records writes and can fail or conflict per code.
type mockArchive struct {
	mu       sync.Mutex
	bars     map[string]int
	marks    map[string]watermark.Mark // Watermark passed per table
	fail     map[string]bool
	conflict map[string]bool
}

func newMockArchive() *mockArchive {
	return &mockArchive{
		bars:     make(map[string]int),
		marks:    make(map[string]watermark.Mark),
		fail:     make(map[string]bool),
		conflict: make(map[string]bool),
	}
}

func (m *mockArchive) setMark(code string, fn func(*watermark.Mark)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk := m.marks[code]
	fn(&mk)
	m.marks[code] = mk
}

func (m *mockArchive) WriteBars(ctx context.Context, code string, bars []model.RawBar, mark model.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[code] {
		return errors.New("connection reset")
	}
	m.bars[code] += len(bars)
	mk := m.marks[code]
	mk.Bars = mark
	m.marks[code] = mk
	if m.conflict[code] {
		return &archive.ConflictError{Table: "raw_bars", Code: code, Dates: []model.Date{bars[0].Date}}
	}
	return nil
}

func (m *mockArchive) WriteFactors(ctx context.Context, code string, factors []model.AdjustmentFactor, mark model.Date) error {
	m.setMark(code, func(mk *watermark.Mark) { mk.Factors = mark })
	return nil
}

func (m *mockArchive) WriteStatus(ctx context.Context, code string, status []model.StatusFlag, mark model.Date) error {
	m.setMark(code, func(mk *watermark.Mark) { mk.Status = mark })
	return nil
}

// memStore is an in-memory snapshot store.
type memStore struct {
	mu   sync.Mutex
	data map[string][]model.DerivedRecord
}

func (m *memStore) Read(code string) ([]model.DerivedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[code]
	if !ok {
		return nil, snapshot.ErrNotFound
	}
	return r, nil
}

func (m *memStore) Write(code string, records []model.DerivedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[code] = records
	return nil
}

// failingMerger fails for selected codes and delegates otherwise.
type failingMerger struct {
	next  Merger
	fail  map[string]bool
	panic map[string]bool
}

func (f *failingMerger) Merge(in merge.Input) (*merge.Result, error) {
	if f.panic[in.Code] {
		panic("index out of range")
	}
	if f.fail[in.Code] {
		return nil, fmt.Errorf("read snapshot: %w", errors.New("permission denied"))
	}
	return f.next.Merge(in)
}

func bars(code string, dates ...model.Date) []model.RawBar {
	out := make([]model.RawBar, len(dates))
	for i, d := range dates {
		out[i] = model.RawBar{Code: code, Date: d, Open: 10, High: 10, Low: 10, Close: 10, Volume: 100, Amount: 1000}
	}
	return out
}

type harness struct {
	fetcher *mockFetcher
	archive *mockArchive
	store   *memStore
	marks   *mockWatermarks
	merger  *failingMerger
	logs    *bytes.Buffer
}

func newHarness(cfg Config) (*Orchestrator, *harness) {
	h := &harness{
		fetcher: &mockFetcher{bars: make(map[string][]model.RawBar), fail: make(map[int]error)},
		archive: newMockArchive(),
		store:   &memStore{data: make(map[string][]model.DerivedRecord)},
		marks:   &mockWatermarks{},
		logs:    &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(h.logs, nil))
	engine := merge.NewEngine(merge.BoundaryStrict, h.store, logger)
	h.merger = &failingMerger{next: engine, fail: map[string]bool{}, panic: map[string]bool{}}

	o := New(cfg, h.fetcher, h.merger, h.archive, h.marks, logger)
	o.now = func() time.Time { return time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC) }
	return o, h
}

func TestPartition(t *testing.T) {
	codes := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		size int
		want [][]string
	}{
		{size: 2, want: [][]string{{"a", "b"}, {"c", "d"}, {"e"}}},
		{size: 5, want: [][]string{{"a", "b", "c", "d", "e"}}},
		{size: 10, want: [][]string{{"a", "b", "c", "d", "e"}}},
		{size: 0, want: [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}},
	}

	for _, tt := range tests {
		got := Partition(codes, tt.size)
		if len(got) != len(tt.want) {
			t.Errorf("Partition(size=%d) = %v, want %v", tt.size, got, tt.want)
			continue
		}
		for i := range got {
			if !slices.Equal(got[i], tt.want[i]) {
				t.Errorf("Partition(size=%d)[%d] = %v, want %v", tt.size, i, got[i], tt.want[i])
			}
		}
	}

	if got := Partition(nil, 3); len(got) != 0 {
		t.Errorf("Partition(nil) = %v, want empty", got)
	}
}

func TestRun_BatchWindows(t *testing.T) {
	o, h := newHarness(Config{BatchSize: 2, StartDate: 20150101, Workers: 1})
	h.marks.set.Bars = watermark.Marks{"A": 20240105, "B": 20240103, "C": 20240108}
	for _, c := range []string{"A", "B", "C", "D"} {
		h.fetcher.bars[c] = bars(c, 20240109)
	}

	summary, err := o.Run(context.Background(), []string{"A", "B", "C", "D"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(h.fetcher.calls) != 2 {
		t.Fatalf("fetch calls = %d, want 2", len(h.fetcher.calls))
	}
	if got := h.fetcher.calls[0]; got.start != 20240103 || got.end != 20240110 {
		t.Errorf("batch 0 window = [%d, %d], want [20240103, 20240110]", got.start, got.end)
	}
	if got := h.fetcher.calls[1]; got.start != 20150101 {
		t.Errorf("batch 1 start = %d, want global start for new code D", got.start)
	}
	if h.marks.loads != 2 {
		t.Errorf("watermark loads = %d, want one per batch", h.marks.loads)
	}
	if summary.Attempted != 4 || summary.Processed != 4 {
		t.Errorf("summary = %+v, want 4 attempted and processed", summary)
	}
	if summary.RunID == "" {
		t.Error("RunID is empty")
	}
	if h.archive.marks["A"].Bars != 20240105 || h.archive.marks["D"].Bars != 0 {
		t.Errorf("archive watermarks = %v, want A=20240105 D=0", h.archive.marks)
	}
}

func TestRun_PassesPerTableWatermarks(t *testing.T) {
	o, h := newHarness(Config{BatchSize: 5, StartDate: 20150101, Workers: 1})
	// Suspended after 2024-01-02: factor and status rows were archived past the last bar.
	h.marks.set = watermark.Set{
		Bars:    watermark.Marks{"A": 20240102},
		Factors: watermark.Marks{"A": 20240103},
		Status:  watermark.Marks{"A": 20240104},
	}
	h.fetcher.bars["A"] = bars("A", 20240105)

	summary, err := o.Run(context.Background(), []string{"A"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := watermark.Mark{Bars: 20240102, Factors: 20240103, Status: 20240104}
	if got := h.archive.marks["A"]; got != want {
		t.Errorf("archive watermarks = %+v, want %+v", got, want)
	}
	if got := h.fetcher.calls[0].start; got != 20240102 {
		t.Errorf("fetch start = %d, want bar watermark 20240102", got)
	}
	if summary.Batches[0].Conflicts != 0 {
		t.Errorf("conflicts = %d, want 0", summary.Batches[0].Conflicts)
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	o, h := newHarness(Config{BatchSize: 10, StartDate: 20150101, Workers: 1})
	for _, c := range []string{"OK1", "MERGEFAIL", "PANIC", "ARCHFAIL", "CONFLICT", "OK2"} {
		h.fetcher.bars[c] = bars(c, 20240102, 20240103)
	}
	h.merger.fail["MERGEFAIL"] = true
	h.merger.panic["PANIC"] = true
	h.archive.fail["ARCHFAIL"] = true
	h.archive.conflict["CONFLICT"] = true

	codes := []string{"OK1", "MERGEFAIL", "NOBARS", "PANIC", "ARCHFAIL", "CONFLICT", "OK2"}
	summary, err := o.Run(context.Background(), codes)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	b := summary.Batches[0]
	if b.Attempted != 7 || b.Processed != 3 || b.Skipped != 1 || b.Failed != 3 || b.Conflicts != 1 {
		t.Errorf("batch summary = %+v, want attempted 7, processed 3, skipped 1, failed 3, conflicts 1", b)
	}
	for _, c := range []string{"OK1", "OK2", "CONFLICT", "ARCHFAIL"} {
		if _, ok := h.store.data[c]; !ok {
			t.Errorf("no snapshot for %s", c)
		}
	}
	for _, c := range []string{"MERGEFAIL", "NOBARS", "PANIC"} {
		if _, ok := h.store.data[c]; ok {
			t.Errorf("unexpected snapshot for %s", c)
		}
	}
	if !bytes.Contains(h.logs.Bytes(), []byte("code=NOBARS")) {
		t.Error("skip of NOBARS not logged with its code")
	}
}

func TestRun_FetchFailureAbortsRun(t *testing.T) {
	o, h := newHarness(Config{BatchSize: 1, StartDate: 20150101, Workers: 1})
	for _, c := range []string{"A", "B", "C"} {
		h.fetcher.bars[c] = bars(c, 20240102)
	}
	h.fetcher.fail[1] = errors.New("vendor session expired")

	summary, err := o.Run(context.Background(), []string{"A", "B", "C"})
	if err == nil {
		t.Fatal("Run() expected error on fetch failure")
	}
	if len(h.fetcher.calls) != 2 {
		t.Errorf("fetch calls = %d, want 2 (run aborted after failing batch)", len(h.fetcher.calls))
	}
	if summary == nil || len(summary.Batches) != 2 || summary.Processed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want first batch processed and second failed", summary)
	}
}

func TestRun_DegradedWatermarks(t *testing.T) {
	o, h := newHarness(Config{BatchSize: 5, StartDate: 20180101, Workers: 1})
	h.marks.degraded = true
	h.fetcher.bars["A"] = bars("A", 20240102)

	summary, err := o.Run(context.Background(), []string{"A"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !summary.Degraded {
		t.Error("Degraded = false, want true")
	}
	if h.fetcher.calls[0].start != 20180101 {
		t.Errorf("start = %d, want global start 20180101", h.fetcher.calls[0].start)
	}
}

func TestRun_Cancelled(t *testing.T) {
	o, h := newHarness(Config{BatchSize: 1, StartDate: 20150101, Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, []string{"A", "B"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(h.fetcher.calls) != 0 {
		t.Errorf("fetch calls = %d, want 0", len(h.fetcher.calls))
	}
}

func TestRun_ConcurrentWorkersMatchSequential(t *testing.T) {
	codes := make([]string, 20)
	for i := range codes {
		codes[i] = fmt.Sprintf("%06d.SZ", i)
	}

	results := make(map[int]map[string][]model.DerivedRecord)
	for _, workers := range []int{1, 4} {
		o, h := newHarness(Config{BatchSize: 8, StartDate: 20150101, Workers: workers})
		for _, c := range codes {
			h.fetcher.bars[c] = bars(c, 20240102, 20240103, 20240104)
		}
		summary, err := o.Run(context.Background(), codes)
		if err != nil {
			t.Fatalf("workers=%d: Run() error = %v", workers, err)
		}
		if summary.Processed != len(codes) {
			t.Errorf("workers=%d: processed = %d, want %d", workers, summary.Processed, len(codes))
		}
		results[workers] = h.store.data
	}

	for _, c := range codes {
		if !slices.EqualFunc(results[1][c], results[4][c], func(a, b model.DerivedRecord) bool {
			return a.Date == b.Date && a.ClosePost == b.ClosePost && a.AdjFactor == b.AdjFactor
		}) {
			t.Errorf("%s differs between sequential and concurrent runs", c)
		}
	}
}

func TestFetcherFunc(t *testing.T) {
	called := false
	f := FetcherFunc(func(ctx context.Context, codes []string, start, end model.Date) (*Batch, error) {
		called = true
		return nil, nil
	})

	o, _ := newHarness(Config{BatchSize: 1, StartDate: 20150101})
	o.fetcher = f

	summary, err := o.Run(context.Background(), []string{"A"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !called {
		t.Error("FetcherFunc not called")
	}
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 for nil batch", summary.Skipped)
	}
}
