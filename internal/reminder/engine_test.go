package reminder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/pillbox/internal/model"
	"github.com/dukerupert/pillbox/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

var errQuantityMoved = errors.New("quantity changed since read")

type fakeStore struct {
	mu      sync.Mutex
	meds    map[string]model.Medication
	order   []string
	listErr error
	saveErr map[string]error
	saves   int
	// afterList runs once the snapshot has been taken, outside the lock.
	afterList func()
}

func newFakeStore(meds ...model.Medication) *fakeStore {
	s := &fakeStore{meds: map[string]model.Medication{}, saveErr: map[string]error{}}
	for _, m := range meds {
		s.meds[m.ID] = m
		s.order = append(s.order, m.ID)
	}
	return s
}

func (s *fakeStore) ListMedications(ctx context.Context) ([]model.Medication, error) {
	s.mu.Lock()
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	out := make([]model.Medication, 0, len(s.order))
	for _, id := range s.order {
		m := s.meds[id]
		m.ReminderTimes = maps.Clone(m.ReminderTimes)
		out = append(out, m)
	}
	hook := s.afterList
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *fakeStore) SaveQuantity(ctx context.Context, id string, previous, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveErr[id]; err != nil {
		return err
	}
	m := s.meds[id]
	if m.Quantity != previous {
		return errQuantityMoved
	}
	m.Quantity = quantity
	s.meds[id] = m
	s.saves++
	return nil
}

func (s *fakeStore) restock(id string, add int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meds[id]
	m.Quantity += add
	s.meds[id] = m
}

func (s *fakeStore) quantity(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meds[id].Quantity
}

type sentMessage struct {
	To, Subject, Body string
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]error
	block   map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: map[string]error{}, block: map[string]bool{}}
}

func (n *fakeNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	err := n.failFor[to]
	block := n.block[to]
	n.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *fakeNotifier) messagesTo(to string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.sent {
		if m.To == to {
			out = append(out, m)
		}
	}
	return out
}

func newTestEngine(store Store, notifier Notifier, opts ...Option) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, notifier, Config{Location: ist, SendTimeout: time.Second}, logger, opts...)
}

func aspirin(quantity int) model.Medication {
	return model.Medication{
		ID:            "med-aspirin",
		FamilyID:      "fam-1",
		Name:          "Aspirin",
		Quantity:      quantity,
		ReminderTimes: map[string]*schedule.TimeOfDay{"morning": schedule.At(8, 0)},
		OwnerContact:  "sharma@example.com",
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, ist)
}

func TestReminderAboveThresholdNoAlert(t *testing.T) {
	store := newFakeStore(aspirin(6))
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 1, res.Due)
	assert.Equal(t, 1, res.Reminded)
	assert.Equal(t, 1, res.Decremented)
	assert.Equal(t, 0, res.Alerts)
	assert.Equal(t, 0, res.Failures)
	assert.Equal(t, 5, store.quantity("med-aspirin"))

	msgs := notifier.messagesTo("sharma@example.com")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Medicine Reminder - Morning", msgs[0].Subject)
	assert.Equal(t, "Reminder: Take your medicine Aspirin (6 left) at 08:00.", msgs[0].Body)
}

func TestLowStockAlertOnceBelowThreshold(t *testing.T) {
	store := newFakeStore(aspirin(6))
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	engine.OnTick(context.Background(), at(1, 8, 0))
	res := engine.OnTick(context.Background(), at(2, 8, 0))

	assert.Equal(t, 4, store.quantity("med-aspirin"))
	assert.Equal(t, 1, res.Alerts)

	msgs := notifier.messagesTo("sharma@example.com")
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[1].Body, "(5 left)")
	assert.Equal(t, "Low Stock Alert - Aspirin", msgs[2].Subject)
	assert.Equal(t, "Low Stock Alert: Only 4 units of Aspirin left. Please restock soon.", msgs[2].Body)
}

func TestEmptyStockStillReminds(t *testing.T) {
	store := newFakeStore(aspirin(0))
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 1, res.Reminded)
	assert.Equal(t, 0, res.Decremented)
	assert.Equal(t, 1, res.Alerts)
	assert.Equal(t, 0, store.quantity("med-aspirin"))
	assert.Equal(t, 0, store.saves, "no write when nothing was decremented")

	msgs := notifier.messagesTo("sharma@example.com")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Body, "(0 left)")
	assert.Contains(t, msgs[1].Body, "Only 0 units")
}

func TestInactiveSlotsNeverFire(t *testing.T) {
	m := aspirin(10)
	m.ReminderTimes = map[string]*schedule.TimeOfDay{"morning": nil, "afternoon": nil, "night": nil}
	store := newFakeStore(m)
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	start := at(1, 0, 0)
	for i := 0; i < 24*60; i++ {
		res := engine.OnTick(context.Background(), start.Add(time.Duration(i)*time.Minute))
		require.Equal(t, 0, res.Due)
	}

	assert.Equal(t, 10, store.quantity(m.ID))
	assert.Empty(t, notifier.messagesTo(m.OwnerContact))
}

func TestSendFailureIsolatedPerMedication(t *testing.T) {
	failing := aspirin(6)
	failing.ID = "med-failing"
	failing.OwnerContact = "broken@example.com"

	healthy := aspirin(5)
	healthy.ID = "med-healthy"
	healthy.Name = "Metformin"
	healthy.OwnerContact = "ok@example.com"

	store := newFakeStore(failing, healthy)
	notifier := newFakeNotifier()
	notifier.failFor["broken@example.com"] = errors.New("smtp rejected")
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 2, res.Due)
	assert.Equal(t, 1, res.Reminded)
	assert.Equal(t, 1, res.Failures)

	assert.Equal(t, 6, store.quantity("med-failing"), "unsent reminder does not consume stock")
	assert.Equal(t, 4, store.quantity("med-healthy"))

	msgs := notifier.messagesTo("ok@example.com")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Subject, "Medicine Reminder")
	assert.Contains(t, msgs[1].Subject, "Low Stock Alert")
}

func TestRepeatedTicksAtSameMinuteEachDecrement(t *testing.T) {
	store := newFakeStore(aspirin(6))
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	engine.OnTick(context.Background(), at(1, 8, 0))
	engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 4, store.quantity("med-aspirin"))
	assert.Len(t, notifier.messagesTo("sharma@example.com"), 3)
}

func TestTickOutsideScheduleDoesNothing(t *testing.T) {
	store := newFakeStore(aspirin(6))
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 1))

	assert.Equal(t, 1, res.Medications)
	assert.Equal(t, 0, res.Due)
	assert.Equal(t, 6, store.quantity("med-aspirin"))
}

func TestTickTruncatesAndConvertsToConfiguredZone(t *testing.T) {
	store := newFakeStore(aspirin(6))
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	// 02:30:42 UTC is 08:00:42 IST.
	res := engine.OnTick(context.Background(), time.Date(2026, 3, 1, 2, 30, 42, 5000, time.UTC))

	assert.Equal(t, 1, res.Reminded)
	assert.Equal(t, 8, res.Minute.Hour())
	assert.Equal(t, 0, res.Minute.Second())
	assert.Equal(t, 5, store.quantity("med-aspirin"))
}

func TestCoincidingSlotsAreSeparateEvents(t *testing.T) {
	m := aspirin(6)
	m.ReminderTimes["breakfast"] = schedule.At(8, 0)
	store := newFakeStore(m)
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 2, res.Due)
	assert.Equal(t, 2, res.Reminded)
	assert.Equal(t, 2, res.Decremented)
	assert.Equal(t, 1, res.Alerts)
	assert.Equal(t, 4, store.quantity(m.ID))

	msgs := notifier.messagesTo(m.OwnerContact)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Medicine Reminder - Breakfast", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "(6 left)")
	assert.Equal(t, "Medicine Reminder - Morning", msgs[1].Subject)
	assert.Contains(t, msgs[1].Body, "(5 left)")
	assert.Contains(t, msgs[2].Body, "Only 4 units")
}

func TestSaveFailureSkipsAlertAndSelfHeals(t *testing.T) {
	store := newFakeStore(aspirin(5))
	store.saveErr["med-aspirin"] = errors.New("database is locked")
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 1, res.Reminded)
	assert.Equal(t, 0, res.Decremented)
	assert.Equal(t, 0, res.Alerts)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 5, store.quantity("med-aspirin"))

	delete(store.saveErr, "med-aspirin")
	engine.OnTick(context.Background(), at(2, 8, 0))
	assert.Equal(t, 4, store.quantity("med-aspirin"))
}

func TestRestockDuringTickIsKept(t *testing.T) {
	store := newFakeStore(aspirin(2))
	store.afterList = func() { store.restock("med-aspirin", 30) }
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 1, res.Reminded)
	assert.Equal(t, 0, res.Decremented)
	assert.Equal(t, 0, res.Alerts, "no low stock alert from a stale snapshot")
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 32, store.quantity("med-aspirin"))

	store.afterList = nil
	engine.OnTick(context.Background(), at(2, 8, 0))
	assert.Equal(t, 31, store.quantity("med-aspirin"))
}

func TestLoadFailureCompletesTick(t *testing.T) {
	store := newFakeStore(aspirin(6))
	store.listErr = errors.New("disk I/O error")
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 0, res.Medications)
	assert.Empty(t, notifier.messagesTo("sharma@example.com"))
}

func TestSendTimeoutBoundsUnresponsiveTransport(t *testing.T) {
	stuck := aspirin(6)
	stuck.ID = "med-stuck"
	stuck.OwnerContact = "stuck@example.com"
	ok := aspirin(6)
	ok.ID = "med-ok"
	ok.OwnerContact = "ok@example.com"

	store := newFakeStore(stuck, ok)
	notifier := newFakeNotifier()
	notifier.block["stuck@example.com"] = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(store, notifier, Config{Location: ist, SendTimeout: 20 * time.Millisecond, Workers: 1}, logger)

	start := time.Now()
	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 6, store.quantity("med-stuck"))
	assert.Equal(t, 5, store.quantity("med-ok"))
}

func TestMissingOwnerContactSkipsMedication(t *testing.T) {
	m := aspirin(6)
	m.OwnerContact = ""
	store := newFakeStore(m)
	engine := newTestEngine(store, newFakeNotifier())

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 6, store.quantity(m.ID))
}

func TestOnChangeCalledAfterSave(t *testing.T) {
	store := newFakeStore(aspirin(6))
	var mu sync.Mutex
	var changed []model.Medication
	engine := newTestEngine(store, newFakeNotifier(), WithOnChange(func(m model.Medication) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, m)
	}))

	engine.OnTick(context.Background(), at(1, 8, 0))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changed, 1)
	assert.Equal(t, 5, changed[0].Quantity)
	assert.Equal(t, "med-aspirin", changed[0].ID)
}

func TestConcurrentTicksAreSerialized(t *testing.T) {
	store := newFakeStore(aspirin(10))
	engine := newTestEngine(store, newFakeNotifier())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.OnTick(context.Background(), at(1, 8, 0))
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, store.quantity("med-aspirin"))
}

func TestManyMedicationsProcessedInParallel(t *testing.T) {
	var meds []model.Medication
	for i := 0; i < 20; i++ {
		m := aspirin(20)
		m.ID = "med-" + string(rune('a'+i))
		meds = append(meds, m)
	}
	store := newFakeStore(meds...)
	notifier := newFakeNotifier()
	engine := newTestEngine(store, notifier)

	res := engine.OnTick(context.Background(), at(1, 8, 0))

	assert.Equal(t, 20, res.Reminded)
	assert.Equal(t, 20, res.Decremented)
	for _, m := range meds {
		assert.Equal(t, 19, store.quantity(m.ID))
	}
}

func TestNewEngineDefaults(t *testing.T) {
	engine := NewEngine(newFakeStore(), newFakeNotifier(), Config{}, nil)

	assert.Equal(t, time.UTC, engine.Location())
	assert.Equal(t, 5, engine.policy.Threshold)
	assert.Equal(t, defaultSendTimeout, engine.timeout)
	assert.Equal(t, defaultWorkers, engine.workers)
}
