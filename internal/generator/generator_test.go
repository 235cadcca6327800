package generator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jarrod-lowe/churn-datagen/internal/event"
	"github.com/jarrod-lowe/churn-datagen/internal/profile"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func smallSet(users, eventsPerUser int) *profile.Set {
	return profile.Default().WithOverrides([]*int{&users, &users}, &eventsPerUser)
}

func TestGenerateGroup_RegistrationFirstPerUser(t *testing.T) {
	g := New(WithSeed(7), WithClock(fixedClock))
	grp := smallSet(3, 4).Groups[0]

	events := g.GenerateGroup(grp)
	if len(events) != 3*5 {
		t.Fatalf("expected 15 events, got %d", len(events))
	}

	for u := 0; u < 3; u++ {
		reg := events[u*5]
		if reg.EventType != event.TypeRegistration {
			t.Fatalf("user %d: expected registration first, got %s", u, reg.EventType)
		}
		if _, err := uuid.Parse(reg.UserID); err != nil {
			t.Errorf("user %d: user id %q is not a UUID: %v", u, reg.UserID, err)
		}
		for _, e := range events[u*5+1 : u*5+5] {
			if e.UserID != reg.UserID {
				t.Errorf("user %d: expected user id %s, got %s", u, reg.UserID, e.UserID)
			}
			if e.EventType == event.TypeRegistration {
				t.Errorf("user %d: unexpected second registration", u)
			}
			if e.EventTime.Before(reg.EventTime) {
				t.Errorf("user %d: event at %v precedes registration at %v", u, e.EventTime, reg.EventTime)
			}
		}
	}
}

func TestRegistration_Fields(t *testing.T) {
	g := New(WithSeed(11), WithClock(fixedClock))

	for _, churn := range []bool{true, false} {
		reg := g.registration("user-1", fixedNow, churn)

		if reg.Name == "" || reg.StreetAddress == "" || reg.City == "" || reg.Country == "" || reg.AffiliateURL == "" {
			t.Errorf("expected personal fields to be populated, got %+v", reg)
		}
		if _, err := time.Parse(time.DateOnly, reg.DateOfBirth); err != nil {
			t.Errorf("date_of_birth %q is not YYYY-MM-DD: %v", reg.DateOfBirth, err)
		}
		if reg.Label == nil {
			t.Fatal("expected label to be set on registration")
		}
		want := 0
		if churn {
			want = 1
		}
		if *reg.Label != want {
			t.Errorf("churn=%v: expected label %d, got %d", churn, want, *reg.Label)
		}
		if !validEAN8(reg.Campaign) {
			t.Errorf("campaign %q is not a valid EAN-8", reg.Campaign)
		}
	}
}

func TestActivity_AmountRanges(t *testing.T) {
	g := New(WithSeed(3), WithClock(fixedClock))

	for i := 0; i < 500; i++ {
		p := g.activity(event.TypePurchase, "u", fixedNow)
		if p.Amount < 30 || p.Amount > 70 {
			t.Fatalf("purchase amount %d outside [30, 70]", p.Amount)
		}
		b := g.activity(event.TypeBet, "u", fixedNow)
		if b.BetAmount < 6 || b.BetAmount > 14 {
			t.Fatalf("bet amount %d outside [6, 14]", b.BetAmount)
		}
		w := g.activity(event.TypeWin, "u", fixedNow)
		if w.WinAmount < 120 || w.WinAmount > 280 {
			t.Fatalf("win amount %d outside [120, 280]", w.WinAmount)
		}
	}
}

func TestActivity_OnlyOwnPayloadSerialized(t *testing.T) {
	g := New(WithSeed(5), WithClock(fixedClock))
	bet := g.activity(event.TypeBet, "u", fixedNow)

	data, err := json.Marshal(bet)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	for _, field := range []string{"user_id", "event_type", "event_time", "bet_amount"} {
		if _, ok := parsed[field]; !ok {
			t.Errorf("expected %q in bet event", field)
		}
	}
	for _, field := range []string{"amount", "win_amount", "postcode", "label"} {
		if _, ok := parsed[field]; ok {
			t.Errorf("did not expect %q in bet event", field)
		}
	}
}

func TestNextEventTime_FirstEventWindow(t *testing.T) {
	g := New(WithSeed(1), WithClock(fixedClock))

	for i := 0; i < 1000; i++ {
		first := g.NextEventTime(i%2 == 0, time.Time{})
		age := fixedNow.Sub(first)
		if age < 48*time.Hour || age > 96*time.Hour {
			t.Fatalf("first event %v ago, want between 48h and 96h", age)
		}
		if first.Location() != time.UTC {
			t.Fatalf("expected UTC event time, got %v", first.Location())
		}
	}
}

func TestNextEventTime_ChurnNeverReturnsNextDay(t *testing.T) {
	g := New(WithSeed(2), WithClock(fixedClock))
	prev := fixedNow.Add(-96 * time.Hour)

	for i := 0; i < 20000; i++ {
		next := g.NextEventTime(true, prev)
		gap := next.Sub(prev)
		if gap < 5*time.Second || gap > 100*time.Second {
			t.Fatalf("churned user gap %v outside [5s, 100s]", gap)
		}
	}
}

func TestNextEventTime_RetainedReturnsNextDay(t *testing.T) {
	g := New(WithSeed(3), WithClock(fixedClock))
	prev := fixedNow.Add(-96 * time.Hour)

	long := 0
	for i := 0; i < 20000; i++ {
		gap := g.NextEventTime(false, prev).Sub(prev)
		switch {
		case gap >= 15*time.Hour && gap <= 24*time.Hour:
			long++
		case gap < 5*time.Second || gap > 100*time.Second:
			t.Fatalf("retained user gap %v outside both windows", gap)
		}
	}

	// Expected 100 next-day returns (0.5%); allow generous tolerance
	if long < 40 || long > 200 {
		t.Errorf("expected about 100 next-day returns in 20000 draws, got %d", long)
	}
}

func TestNextEventTime_NoNextDayTooCloseToNow(t *testing.T) {
	g := New(WithSeed(4), WithClock(fixedClock))
	prev := fixedNow.Add(-29 * time.Hour)

	for i := 0; i < 20000; i++ {
		gap := g.NextEventTime(false, prev).Sub(prev)
		if gap > 100*time.Second {
			t.Fatalf("expected no next-day return within 30h of now, got gap %v", gap)
		}
	}
}

func TestDraw_ResidueFallsToLast(t *testing.T) {
	g := New(WithSeed(9))
	dist := []profile.Weight{
		{EventType: event.TypePurchase, Probability: 0},
		{EventType: event.TypeWin, Probability: 0},
	}
	for i := 0; i < 100; i++ {
		if got := g.draw(dist); got != event.TypeWin {
			t.Fatalf("expected residue draw to return last entry, got %s", got)
		}
	}
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	set := smallSet(2, 5)

	a := New(WithSeed(42), WithClock(fixedClock)).Generate(set)
	b := New(WithSeed(42), WithClock(fixedClock)).Generate(set)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Error("expected identical output for identical seeds")
	}
}

func TestGenerate_EmptyGroup(t *testing.T) {
	empty := &profile.Set{Groups: []profile.Group{{
		Name:         "none",
		Distribution: []profile.Weight{{EventType: event.TypeBet, Probability: 1}},
	}}}

	events := New(WithSeed(1)).Generate(empty)
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func validEAN8(code string) bool {
	if len(code) != 8 {
		return false
	}
	sum := 0
	for i := 0; i < 8; i++ {
		d := int(code[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if i%2 == 0 {
			sum += 3 * d
		} else {
			sum += d
		}
	}
	return sum%10 == 0
}
