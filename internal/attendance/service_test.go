package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendguard/internal/factor"
	"attendguard/internal/identity"
	"attendguard/internal/matcher"
	"attendguard/internal/narrate"
	"attendguard/internal/presence"
	"attendguard/internal/prompt"
	"attendguard/internal/session"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type switchDiscovery struct {
	mu      sync.Mutex
	devices []string
}

func (d *switchDiscovery) set(devices ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = devices
}

func (d *switchDiscovery) Devices(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices, nil
}

type fixture struct {
	store    *MemoryStore
	registry *session.Registry
	monitor  *presence.Monitor
	disc     *switchDiscovery
	codes    *factor.CodeVerifier
	narrator *narrate.Recorder
	roster   *identity.Roster
}

func enrolled(id, name, pin string, base float32) identity.Identity {
	emb := make([]identity.Embedding, identity.MinSamples)
	for i := range emb {
		emb[i] = identity.Embedding{base, base + 0.01*float32(i), 0.5}
	}
	return identity.Identity{ID: id, Name: name, Department: "Engineering", PIN: pin, Embeddings: emb}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	roster, err := identity.NewRoster([]identity.Identity{
		enrolled("7", "Ada", "4821", 0.1),
		enrolled("8", "Bo", "1111", 0.9),
	})
	require.NoError(t, err)

	st := NewMemoryStore()
	reg := session.NewRegistry(roster, session.SinkFunc(st.Append), time.UTC)
	disc := &switchDiscovery{}
	disc.set("192.168.1.5")
	mon := presence.NewMonitor(reg, disc, nil)
	codes, err := factor.NewCodeVerifier(testSecret, 30*time.Second, mon)
	require.NoError(t, err)
	return &fixture{store: st, registry: reg, monitor: mon, disc: disc, codes: codes, narrator: &narrate.Recorder{}, roster: roster}
}

func (f *fixture) service(p prompt.Prompter) *Service {
	return f.serviceWithTimeout(p, 50*time.Millisecond)
}

func (f *fixture) serviceWithTimeout(p prompt.Prompter, factorTimeout time.Duration) *Service {
	return NewService(f.registry, factor.NewPINVerifier(f.roster), f.codes, p, f.narrator, nil, Options{FactorTimeout: factorTimeout})
}

func (f *fixture) code(t *testing.T, at time.Time) string {
	t.Helper()
	c, err := f.codes.CurrentCode(at)
	require.NoError(t, err)
	return c
}

func match(id string) matcher.Result {
	return matcher.Result{IdentityID: id, Confidence: 92, Distance: 0.05, HasDistance: true}
}

func TestAuthorize_FullDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	login := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	svc := f.service(prompt.NewScripted([]string{"4821"}, []string{f.code(t, login)}))
	d, err := svc.Authorize(ctx, "7", match("7"), login)
	require.NoError(t, err)
	assert.True(t, d.Granted())
	assert.Contains(t, f.narrator.Lines(), "Ada logged in at 09:00 AM")

	// Presence holds through the day.
	for at := login; !at.After(time.Date(2026, 3, 2, 17, 25, 0, 0, time.UTC)); at = at.Add(5 * time.Minute) {
		f.monitor.Poll(ctx, at)
	}
	f.disc.set()
	res := f.monitor.Poll(ctx, time.Date(2026, 3, 2, 17, 29, 0, 0, time.UTC))
	assert.Empty(t, res.Closed)
	res = f.monitor.Poll(ctx, time.Date(2026, 3, 2, 17, 30, 1, 0, time.UTC))
	assert.Equal(t, []string{"7"}, res.Closed)

	recs, err := f.store.List(ctx, Filter{Date: "2026-03-02"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, session.ActionLogin, recs[0].Action)
	assert.Equal(t, 0.0, recs[0].HoursWorked)
	assert.Equal(t, session.ActionLogout, recs[1].Action)
	assert.InDelta(t, 8.5, recs[1].HoursWorked, 0.01)

	// Closed for the rest of the day.
	later := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	d, err = svc.Authorize(ctx, "7", match("7"), later)
	require.NoError(t, err)
	assert.Equal(t, ReasonClosed, d.Reason)
}

func TestAuthorize_WrongPIN(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p := prompt.NewScripted([]string{"0000"}, []string{f.code(t, now)})

	d, err := f.service(p).Authorize(context.Background(), "7", match("7"), now)
	require.NoError(t, err)
	assert.Equal(t, ReasonFactorFailed, d.Reason)
	assert.Equal(t, FailureWrongPIN, d.Failure)
	assert.Equal(t, []prompt.Kind{prompt.KindPIN}, p.Asked(), "code never requested")

	recs, _ := f.store.List(context.Background(), Filter{})
	assert.Empty(t, recs)
	assert.Equal(t, 0, f.registry.OpenCount())
}

func TestAuthorize_NoPresenceSkipsCodePrompt(t *testing.T) {
	f := newFixture(t)
	f.disc.set()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p := prompt.NewScripted([]string{"4821"}, []string{f.code(t, now)})

	d, err := f.service(p).Authorize(context.Background(), "7", match("7"), now)
	require.NoError(t, err)
	assert.Equal(t, FailureNoPresence, d.Failure)
	assert.Equal(t, []prompt.Kind{prompt.KindPIN}, p.Asked())
}

func TestAuthorize_WrongCodeAndTimeout(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	d, err := f.service(prompt.NewScripted([]string{"4821"}, []string{"000000x"})).
		Authorize(context.Background(), "7", match("7"), now)
	require.NoError(t, err)
	assert.Equal(t, FailureWrongCode, d.Failure)
	recs, err := f.store.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	// The failed attempt still starts the cooldown.
	p := prompt.NewScripted([]string{"4821"}, []string{f.code(t, now.Add(119*time.Second))})
	d, err = f.service(p).Authorize(context.Background(), "7", match("7"), now.Add(119*time.Second))
	require.NoError(t, err)
	assert.Equal(t, ReasonCooldown, d.Reason)
	assert.Empty(t, p.Asked())

	d, err = f.service(prompt.NewScripted(nil, nil)).
		Authorize(context.Background(), "8", match("8"), now)
	require.NoError(t, err)
	assert.Equal(t, FailureTimeout, d.Failure)
}

func TestAuthorize_Cooldown(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	retry := now.Add(120 * time.Second)
	svc := f.service(prompt.NewScripted([]string{"0000", "4821"}, []string{f.code(t, retry)}))

	d, err := svc.Authorize(context.Background(), "7", match("7"), now)
	require.NoError(t, err)
	assert.Equal(t, ReasonFactorFailed, d.Reason)

	// A denied attempt inside the window does not extend it.
	d, err = svc.Authorize(context.Background(), "7", match("7"), now.Add(119*time.Second))
	require.NoError(t, err)
	assert.Equal(t, ReasonCooldown, d.Reason)
	assert.Contains(t, f.narrator.Lines(), "Ada, wait 2 minutes before next action.")

	d, err = svc.Authorize(context.Background(), "7", match("7"), retry)
	require.NoError(t, err)
	assert.Equal(t, ReasonGranted, d.Reason)

	d, err = svc.Authorize(context.Background(), "7", match("7"), retry.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyOpen, d.Reason)
}

func TestAuthorize_NewDayAfterTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	d, err := f.service(prompt.NewScripted([]string{"4821"}, []string{f.code(t, day1)})).
		Authorize(ctx, "7", match("7"), day1)
	require.NoError(t, err)
	require.True(t, d.Granted())

	f.disc.set()
	res := f.monitor.Poll(ctx, day1.Add(301*time.Second))
	require.Equal(t, []string{"7"}, res.Closed)

	day2 := day1.Add(24 * time.Hour)
	f.disc.set("192.168.1.5")
	d, err = f.service(prompt.NewScripted([]string{"4821"}, []string{f.code(t, day2)})).
		Authorize(ctx, "7", match("7"), day2)
	require.NoError(t, err)
	assert.Equal(t, ReasonGranted, d.Reason)

	recs, err := f.store.List(ctx, Filter{Date: "2026-03-03"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, session.ActionLogin, recs[0].Action)
	assert.Equal(t, day2, recs[0].Timestamp)
}

func TestAuthorize_PendingPromptDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	entry := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.registry.With("8", func(s *session.Session) error {
		return s.Login(context.Background(), entry)
	}))
	f.disc.set()

	// Ada never answers her PIN prompt.
	p := prompt.NewScripted(nil, nil)
	svc := f.serviceWithTimeout(p, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	attempt := make(chan Decision, 1)
	go func() {
		d, err := svc.Authorize(ctx, "7", match("7"), entry)
		assert.NoError(t, err)
		attempt <- d
	}()
	require.Eventually(t, func() bool { return len(p.Asked()) == 1 }, time.Second, 5*time.Millisecond)

	polled := make(chan presence.PollResult, 1)
	go func() { polled <- f.monitor.Poll(context.Background(), entry.Add(301*time.Second)) }()
	select {
	case res := <-polled:
		assert.Equal(t, []string{"8"}, res.Closed)
		assert.Equal(t, []string{"7"}, res.Busy)
	case <-time.After(time.Second):
		t.Fatal("poll waited on a pending prompt")
	}

	views := f.registry.Snapshot()
	require.Len(t, views, 2)
	assert.True(t, views[0].Busy)
	assert.Equal(t, "closed", views[1].State)

	cancel()
	d := <-attempt
	assert.Equal(t, FailureTimeout, d.Failure)
}

func TestAuthorize_UnknownIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.service(prompt.NewScripted(nil, nil)).
		Authorize(context.Background(), "99", match("99"), time.Now())
	assert.ErrorIs(t, err, session.ErrUnknownIdentity)
}

func TestAuthorize_ConcurrentSameIdentity(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	code := f.code(t, now)
	svc := f.service(prompt.NewScripted([]string{"4821", "4821", "4821"}, []string{code, code, code}))

	var wg sync.WaitGroup
	decisions := make([]Decision, 3)
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := svc.Authorize(context.Background(), "7", match("7"), now)
			assert.NoError(t, err)
			decisions[i] = d
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, d := range decisions {
		if d.Granted() {
			granted++
		} else {
			assert.Equal(t, ReasonCooldown, d.Reason)
		}
	}
	assert.Equal(t, 1, granted)
	recs, _ := f.store.List(context.Background(), Filter{})
	assert.Len(t, recs, 1)
}

func TestWaitText(t *testing.T) {
	assert.Equal(t, "2 minutes", waitText(2*time.Minute))
	assert.Equal(t, "1 minute", waitText(time.Minute))
	assert.Equal(t, "1m30s", waitText(90*time.Second))
}
