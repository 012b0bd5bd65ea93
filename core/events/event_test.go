package events

import (
	"testing"

	"healthkey/crypto"
)

func TestRecorderKeepsEmissionOrder(t *testing.T) {
	var rec Recorder
	rec.Emit(TokenTransfer{Amount: 1})
	rec.Emit(nil)
	rec.Emit(UserRewarded{Amount: 2})

	got := rec.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].EventType() != TypeTokenTransfer || got[1].EventType() != TypeUserRewarded {
		t.Fatalf("unexpected order: %s, %s", got[0].EventType(), got[1].EventType())
	}
	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Fatalf("reset did not clear events")
	}
}

func TestUserRewardedAttributes(t *testing.T) {
	recipient := [20]byte{0x11}
	evt := UserRewarded{Recipient: recipient, Amount: 250, AccountCreated: true}.Event()
	if evt.Type != TypeUserRewarded {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["amount"] != "250" {
		t.Fatalf("unexpected amount %s", evt.Attributes["amount"])
	}
	if evt.Attributes["recipient"] != crypto.FromRaw(recipient).String() {
		t.Fatalf("unexpected recipient %s", evt.Attributes["recipient"])
	}
	if evt.Attributes["accountCreated"] != "true" {
		t.Fatalf("unexpected accountCreated %s", evt.Attributes["accountCreated"])
	}
}
