// Package generator synthesizes user activity for the churn training set.
//
// Churned users are distinguishable from retained users in two ways: their
// postcode remainder mod 3 (0 or 1 for churn, 0 or 2 for retained) and the
// absence of next-day return visits in their event timeline.
package generator

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/jarrod-lowe/churn-datagen/internal/event"
	"github.com/jarrod-lowe/churn-datagen/internal/profile"
)

// Base amounts that are randomized per event
const (
	purchaseBase = 50
	betBase      = 10
	winBase      = 200
)

// Generator builds synthetic events. It is not safe for concurrent use.
type Generator struct {
	rng  *rand.Rand
	fake *gofakeit.Faker
	now  func() time.Time
}

// Option configures a Generator
type Option func(*generatorOptions)

type generatorOptions struct {
	seed uint64
	now  func() time.Time
}

// WithSeed makes generation deterministic for a given seed
func WithSeed(seed uint64) Option {
	return func(o *generatorOptions) { o.seed = seed }
}

// WithClock overrides the wall clock used to anchor event times
func WithClock(now func() time.Time) Option {
	return func(o *generatorOptions) { o.now = now }
}

// New creates a Generator. Without WithSeed the seed is random.
func New(opts ...Option) *Generator {
	o := generatorOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.seed == 0 {
		o.seed = rand.Uint64()
	}

	return &Generator{
		rng:  rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15)),
		fake: gofakeit.New(o.seed),
		now:  o.now,
	}
}

// Generate produces every group's events merged into one timeline sorted by
// event time. Events with equal times keep their generation order.
func (g *Generator) Generate(set *profile.Set) []event.Event {
	total := 0
	for _, grp := range set.Groups {
		total += grp.Users * (grp.EventsPerUser + 1)
	}

	events := make([]event.Event, 0, total)
	for _, grp := range set.Groups {
		events = append(events, g.GenerateGroup(grp)...)
	}

	slices.SortStableFunc(events, func(a, b event.Event) int {
		return a.EventTime.Compare(b.EventTime)
	})
	return events
}

// GenerateGroup produces a registration followed by EventsPerUser weighted
// draws for each user in the group. Output is grouped by user, not sorted.
func (g *Generator) GenerateGroup(grp profile.Group) []event.Event {
	events := make([]event.Event, 0, grp.Users*(grp.EventsPerUser+1))

	for range grp.Users {
		userID := g.userID()

		eventTime := g.NextEventTime(grp.Churn, time.Time{})
		events = append(events, g.registration(userID, eventTime, grp.Churn))

		for range grp.EventsPerUser {
			eventType := g.draw(grp.Distribution)
			eventTime = g.NextEventTime(grp.Churn, eventTime)
			events = append(events, g.activity(eventType, userID, eventTime))
		}
	}
	return events
}

// Postcode returns a five or six digit postcode whose remainder mod 3 encodes
// the churn flag: 0 or 1 for churned users, 0 or 2 for retained users.
func (g *Generator) Postcode(churn bool) int {
	base := 3 * g.intRange(3334, 33333)
	group := g.intRange(0, 1)
	if churn {
		return base + group
	}
	return base + 2*group
}

// NextEventTime returns the time of a user's next event. A zero prev yields
// the registration time, 48 to 96 hours before now. Retained users
// occasionally come back the next day; everyone else acts again within
// seconds.
func (g *Generator) NextEventTime(churn bool, prev time.Time) time.Time {
	now := g.now().UTC()
	if prev.IsZero() {
		return now.Add(-time.Duration(g.intRange(48, 96)) * time.Hour)
	}

	if !churn && prev.Add(30*time.Hour).Before(now) && g.intRange(1, 1000) <= 5 {
		return prev.Add(time.Duration(g.intRange(15, 24)) * time.Hour)
	}
	return prev.Add(time.Duration(g.intRange(5, 100)) * time.Second)
}

func (g *Generator) registration(userID string, t time.Time, churn bool) event.Event {
	return event.Event{
		UserID:        userID,
		EventType:     event.TypeRegistration,
		EventTime:     t,
		Name:          g.fake.Name(),
		DateOfBirth:   g.fake.Date().Format(time.DateOnly),
		StreetAddress: g.fake.Street(),
		City:          g.fake.City(),
		Country:       g.fake.Country(),
		Postcode:      g.Postcode(churn),
		AffiliateURL:  g.fake.URL(),
		Campaign:      g.ean8(),
		Label:         event.LabelFor(churn),
	}
}

func (g *Generator) activity(t event.Type, userID string, at time.Time) event.Event {
	e := event.Event{UserID: userID, EventType: t, EventTime: at}
	switch t {
	case event.TypePurchase:
		e.Amount = g.randomizeAmount(purchaseBase)
	case event.TypeBet:
		e.BetAmount = g.randomizeAmount(betBase)
	case event.TypeWin:
		e.WinAmount = g.randomizeAmount(winBase)
	}
	return e
}

// draw walks the cumulative distribution. Any rounding residue above the
// final cumulative probability falls to the last entry.
func (g *Generator) draw(dist []profile.Weight) event.Type {
	r := g.rng.Float64()
	var acc float64
	for _, w := range dist {
		acc += w.Probability
		if r <= acc {
			return w.EventType
		}
	}
	return dist[len(dist)-1].EventType
}

// randomizeAmount returns base scaled by a random 60% to 140%, truncated
func (g *Generator) randomizeAmount(base int) int {
	return base * g.intRange(60, 140) / 100
}

// ean8 returns a random EAN-8 code with a valid check digit
func (g *Generator) ean8() string {
	digits := make([]byte, 0, 8)
	sum := 0
	for i := range 7 {
		d := g.intRange(0, 9)
		if i%2 == 0 {
			sum += 3 * d
		} else {
			sum += d
		}
		digits = append(digits, byte('0'+d))
	}
	check := (10 - sum%10) % 10
	return string(strconv.AppendInt(digits, int64(check), 10))
}

func (g *Generator) userID() string {
	id, err := uuid.NewRandomFromReader(randReader{g.rng})
	if err != nil {
		// randReader never fails
		return uuid.NewString()
	}
	return id.String()
}

// intRange returns a uniform integer in [lo, hi]
func (g *Generator) intRange(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

type randReader struct {
	rng *rand.Rand
}

func (r randReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}
