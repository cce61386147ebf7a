package engine_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/seantiz/scribe/internal/engine"
	"github.com/seantiz/scribe/internal/model"
)

func drain(ch <-chan string) []string {
	var got []string
	for ev := range ch {
		got = append(got, ev)
	}
	return got
}

func TestBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("r1")
	defer unsub()

	events := []string{"e1", "e2", "e3"}
	for _, ev := range events {
		b.Publish("r1", ev)
	}
	b.Close("r1")

	got := drain(ch)
	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d", len(got), len(events))
	}
	for i, ev := range got {
		if ev != events[i] {
			t.Errorf("event[%d] = %q, want %q", i, ev, events[i])
		}
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewBroker()
	ch1, unsub1 := b.Subscribe("r1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("r1")
	defer unsub2()

	b.Publish("r1", "hello")
	b.Close("r1")

	got1, got2 := drain(ch1), drain(ch2)
	if len(got1) != 1 || got1[0] != "hello" {
		t.Errorf("subscriber 1 got %v, want [hello]", got1)
	}
	if len(got2) != 1 || got2[0] != "hello" {
		t.Errorf("subscriber 2 got %v, want [hello]", got2)
	}
}

func TestBrokerUnretainedEventsAreNotReplayed(t *testing.T) {
	b := engine.NewBroker()
	b.Publish("r1", "early")
	b.Close("r1")

	ch, unsub := b.Subscribe("r1")
	defer unsub()
	if got := drain(ch); len(got) != 0 {
		t.Errorf("late subscriber got %v, want nothing", got)
	}
}

func TestBrokerLateSubscriberGetsRetainedHistory(t *testing.T) {
	b := engine.NewBroker()
	b.PublishRetained("r1", "pending")
	b.PublishRetained("r1", "final")
	b.Close("r1")
	b.PublishRetained("r1", "after close")

	ch, unsub := b.Subscribe("r1")
	defer unsub()

	got := drain(ch)
	if len(got) != 2 || got[0] != "pending" || got[1] != "final" {
		t.Errorf("late subscriber got %v, want [pending final]", got)
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("r1")
	unsub()

	b.Publish("r1", "ignored")
	select {
	case ev := <-ch:
		t.Errorf("unsubscribed channel received %q", ev)
	default:
	}
}

func TestBrokerSlowSubscriberDropsEvents(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("r1")
	defer unsub()

	for range 1000 {
		b.Publish("r1", "x")
	}
	b.Close("r1")

	if got := drain(ch); len(got) == 0 || len(got) >= 1000 {
		t.Errorf("got %d events, want some but not all", len(got))
	}
}

func TestBrokerCloseAll(t *testing.T) {
	b := engine.NewBroker()
	ch1, _ := b.Subscribe("r1")
	ch2, _ := b.Subscribe(engine.QuotaTopic)

	b.CloseAll()

	if _, ok := <-ch1; ok {
		t.Error("r1 channel should be closed")
	}
	if _, ok := <-ch2; ok {
		t.Error("quota channel should be closed")
	}
}

func TestBrokerNotifyQuota(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe(engine.QuotaTopic)
	defer unsub()

	want := model.QuotaUpdate{MaxDurationSeconds: 60, WeeklyLimit: 10, RemainingTries: 4, CooldownUntilUnixTime: 99}
	b.NotifyQuota(want)

	var got model.QuotaUpdate
	if err := json.Unmarshal([]byte(<-ch), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("snapshot = %+v, want %+v", got, want)
	}
}

func TestBrokerOpenAndHas(t *testing.T) {
	b := engine.NewBroker()
	if b.Has("r1") {
		t.Fatal("Has(r1) before Open")
	}
	b.Open("r1")
	if !b.Has("r1") {
		t.Error("Has(r1) = false after Open")
	}
	b.Close("r2")
	if !b.Has("r2") {
		t.Error("closed topic marker not retained")
	}
}

func TestBrokerRetainsLatestEvents(t *testing.T) {
	b := engine.NewBroker()
	b.Open("rid")
	for i := range 70 {
		b.PublishRetained("rid", fmt.Sprintf("pending-%d", i))
	}
	b.PublishRetained("rid", "final")
	b.Close("rid")

	ch, unsub := b.Subscribe("rid")
	defer unsub()
	got := drain(ch)
	if len(got) != 64 {
		t.Fatalf("replayed %d events, want 64", len(got))
	}
	if got[0] != "pending-7" {
		t.Errorf("first replayed = %q, want pending-7", got[0])
	}
	if got[len(got)-1] != "final" {
		t.Errorf("last replayed = %q, want final", got[len(got)-1])
	}
}
