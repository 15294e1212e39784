package bills

import (
	"context"
	"sort"
	"testing"
	"time"

	"telephone-billing/internal/calls"
	"telephone-billing/internal/tariff"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	records []calls.Record
	bills   []Bill
	lists   int
	onList  func()
}

func (f *fakeRepo) FindRecord(ctx context.Context, callID int64, typ calls.RecordType) (calls.Record, bool, error) {
	for _, r := range f.records {
		if r.CallID == callID && r.Type == typ {
			return r, true, nil
		}
	}
	return calls.Record{}, false, nil
}

func (f *fakeRepo) InsertBill(ctx context.Context, b Bill) error {
	f.bills = append(f.bills, b)
	return nil
}

func (f *fakeRepo) ListBills(ctx context.Context, subscriber string, from, to time.Time) ([]Bill, error) {
	f.lists++
	var out []Bill
	for _, b := range f.bills {
		if b.Call.Source == subscriber && !b.End.Before(from) && b.End.Before(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].End.Before(out[j].End) })
	if f.onList != nil {
		f.onList()
	}
	return out, nil
}

type fakeCache struct {
	entries     map[string][]Bill
	gens        map[string]int64
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]Bill{}, gens: map[string]int64{}}
}

func cacheKey(subscriber string, p Period) string { return subscriber + "|" + p.String() }

func (f *fakeCache) Get(ctx context.Context, subscriber string, p Period) ([]Bill, int64, bool, error) {
	k := cacheKey(subscriber, p)
	b, ok := f.entries[k]
	return b, f.gens[k], ok, nil
}

func (f *fakeCache) Set(ctx context.Context, subscriber string, p Period, gen int64, bills []Bill) error {
	k := cacheKey(subscriber, p)
	if f.gens[k] != gen {
		return nil
	}
	f.entries[k] = bills
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, subscriber string, p Period) error {
	k := cacheKey(subscriber, p)
	f.gens[k]++
	delete(f.entries, k)
	f.invalidated = append(f.invalidated, k)
	return nil
}

var testCall = calls.Call{ID: 42, Source: "99988526423", Destination: "9933468278"}

func completedCall(call calls.Call, start, end time.Time) []calls.Record {
	return []calls.Record{
		{CallID: call.ID, Type: calls.RecordTypeStart, Timestamp: start, Source: call.Source, Destination: call.Destination},
		{CallID: call.ID, Type: calls.RecordTypeEnd, Timestamp: end, Source: call.Source, Destination: call.Destination},
	}
}

func newRegistry(t *testing.T, repo Repository) *Registry {
	t.Helper()
	e, err := tariff.NewEngine(tariff.DefaultConfig())
	require.NoError(t, err)
	return NewRegistry(repo, e)
}

func TestOnCallCompleted_PricesAndStores(t *testing.T) {
	start := time.Date(2017, 12, 12, 11, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	repo := &fakeRepo{records: completedCall(testCall, start, end)}

	b, err := newRegistry(t, repo).OnCallCompleted(context.Background(), testCall)
	require.NoError(t, err)
	assert.Equal(t, "0.81", b.Price.StringFixed(2))
	assert.Equal(t, start, b.Start)
	assert.Equal(t, end, b.End)
	assert.Equal(t, "call_id: 42 - price: 0.81", b.String())
	require.Len(t, repo.bills, 1)
}

func TestOnCallCompleted_MissingRecordIsInternal(t *testing.T) {
	start := time.Date(2017, 12, 12, 11, 0, 0, 0, time.UTC)
	repo := &fakeRepo{records: completedCall(testCall, start, start.Add(time.Minute))[:1]}

	_, err := newRegistry(t, repo).OnCallCompleted(context.Background(), testCall)
	assert.ErrorIs(t, err, ErrIncompleteCall)
	assert.Empty(t, repo.bills)
}

func TestList_FiltersBySourceAndPeriod(t *testing.T) {
	aug := time.Date(2018, 8, 25, 8, 28, 0, 0, time.UTC)
	other := calls.Call{ID: 43, Source: "11987665433", Destination: "9933468278"}
	repo := &fakeRepo{bills: []Bill{
		{Call: testCall, Start: aug.Add(time.Hour), End: aug.Add(2 * time.Hour)},
		{Call: testCall, Start: aug, End: aug.Add(2 * time.Minute)},
		{Call: other, Start: aug, End: aug.Add(time.Minute)},
		{Call: testCall, Start: aug.AddDate(0, 1, 0), End: aug.AddDate(0, 1, 0).Add(time.Minute)},
	}}

	got, err := newRegistry(t, repo).List(context.Background(), testCall.Source, Period{Month: time.August, Year: 2018})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].End.Before(got[1].End))
}

func TestList_UsesCacheAndInvalidates(t *testing.T) {
	aug := time.Date(2018, 8, 25, 8, 28, 0, 0, time.UTC)
	repo := &fakeRepo{bills: []Bill{{Call: testCall, Start: aug, End: aug.Add(time.Minute)}}}
	cache := newFakeCache()
	reg := newRegistry(t, repo).WithCache(cache)
	p := Period{Month: time.August, Year: 2018}

	_, err := reg.List(context.Background(), testCall.Source, p)
	require.NoError(t, err)
	_, err = reg.List(context.Background(), testCall.Source, p)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lists)

	reg.Invalidate(context.Background(), repo.bills[0])
	assert.Equal(t, []string{testCall.Source + "|08/2018"}, cache.invalidated)

	_, err = reg.List(context.Background(), testCall.Source, p)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)
}

func TestList_StaleReadIsNotCachedAfterInvalidate(t *testing.T) {
	aug := time.Date(2018, 8, 25, 8, 28, 0, 0, time.UTC)
	repo := &fakeRepo{}
	reg := newRegistry(t, repo).WithCache(newFakeCache())
	p := Period{Month: time.August, Year: 2018}

	// A bill commits and is invalidated while the first read is in flight.
	late := Bill{Call: testCall, Start: aug, End: aug.Add(time.Minute)}
	repo.onList = func() {
		repo.onList = nil
		repo.bills = append(repo.bills, late)
		reg.Invalidate(context.Background(), late)
	}

	got, err := reg.List(context.Background(), testCall.Source, p)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = reg.List(context.Background(), testCall.Source, p)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testCall.ID, got[0].Call.ID)
	assert.Equal(t, 2, repo.lists)
}
