package state

import "testing"

func TestTransitionHappyPath(t *testing.T) {
	m := NewMachine()
	peer := "peer-1"

	steps := []State{New, Joining, WaitingForOffer, OfferReceived, AnswerCreated, Connected}
	for i, want := range steps {
		if ok := m.Transition(peer, want); !ok {
			t.Fatalf("step %d: Transition(%s) rejected", i, want)
		}
	}

	got, ok := m.Get(peer)
	if !ok || got != Connected {
		t.Fatalf("Get() = %v, %v; want Connected, true", got, ok)
	}

	hist := m.History(peer)
	if len(hist) != len(steps) {
		t.Fatalf("History() len = %d; want %d", len(hist), len(steps))
	}
}

func TestTransitionRejectsSkippedStates(t *testing.T) {
	m := NewMachine()
	peer := "peer-2"

	if !m.Transition(peer, New) {
		t.Fatal("New from nothing should be accepted")
	}
	if m.Transition(peer, OfferReceived) {
		t.Fatal("New -> OfferReceived should be rejected, skips Joining/WaitingForOffer")
	}
	got, _ := m.Get(peer)
	if got != New {
		t.Fatalf("state after rejected transition = %v; want unchanged New", got)
	}
}

func TestFailedAndClosedReachableFromAnyState(t *testing.T) {
	cases := []State{New, Joining, WaitingForOffer, OfferReceived, AnswerCreated, Connected}
	for _, from := range cases {
		m := NewMachine()
		peer := "peer"
		m.Transition(peer, New)
		// Walk forward until we reach `from`, then attempt Failed and Closed
		// from separate machines so each terminal transition starts clean.
		walk := []State{Joining, WaitingForOffer, OfferReceived, AnswerCreated, Connected}
		for _, s := range walk {
			if s == from {
				break
			}
			m.Transition(peer, s)
			if cur, _ := m.Get(peer); cur == from {
				break
			}
		}

		mFailed := NewMachine()
		mFailed.states[peer] = from
		if !mFailed.Transition(peer, Failed) {
			t.Errorf("%v -> Failed should be accepted", from)
		}

		mClosed := NewMachine()
		mClosed.states[peer] = from
		if !mClosed.Transition(peer, Closed) {
			t.Errorf("%v -> Closed should be accepted", from)
		}
	}
}

func TestTransitionFromTerminalStateRejected(t *testing.T) {
	m := NewMachine()
	peer := "peer-3"
	m.states[peer] = Closed
	if m.Transition(peer, Connected) {
		t.Fatal("Closed -> Connected should be rejected")
	}
}

func TestForgetRemovesStateAndHistory(t *testing.T) {
	m := NewMachine()
	peer := "peer-4"
	m.Transition(peer, New)
	m.Forget(peer)

	if _, ok := m.Get(peer); ok {
		t.Fatal("Get() after Forget should report no state")
	}
	if hist := m.History(peer); len(hist) != 0 {
		t.Fatalf("History() after Forget = %v; want empty", hist)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	m := NewMachine()
	ch := m.Subscribe(4)

	m.Transition("peer-5", New)
	select {
	case tr := <-ch:
		if tr.To != New || tr.PeerID != "peer-5" {
			t.Fatalf("unexpected transition: %+v", tr)
		}
	default:
		t.Fatal("expected a transition on the subscriber channel")
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	m := NewMachine()
	ch := m.Subscribe(4)
	m.Unsubscribe(ch)

	m.Transition("peer-6", New)

	if _, open := <-ch; open {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}
