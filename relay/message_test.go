package relay

import (
	"encoding/json"
	"testing"

	"github.com/nostrforge/corenostr/keys"
	"github.com/nostrforge/corenostr/nostr"
)

func TestEventMessageRoundTrip(t *testing.T) {
	kp, _ := keys.New()
	ev, err := nostr.Sign(nostr.UnsignedEvent{Kind: 1, Content: "hi"}, kp)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	data, err := EventMessage{Event: ev}.MarshalClientMessage()
	if err != nil {
		t.Fatalf("MarshalClientMessage: %v", err)
	}

	parsed, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	em, ok := parsed.(EventMessage)
	if !ok {
		t.Fatalf("parsed type = %T, want EventMessage", parsed)
	}
	if em.Event.ID != ev.ID {
		t.Errorf("round-tripped event id = %q, want %q", em.Event.ID, ev.ID)
	}
}

func TestReqMessageRoundTripMultipleFilters(t *testing.T) {
	req := ReqMessage{
		SubID: "sub1",
		Filters: []nostr.Filter{
			{Kinds: []int{1}},
			{Kinds: []int{4}, Authors: []string{"abc"}},
		},
	}
	data, err := req.MarshalClientMessage()
	if err != nil {
		t.Fatalf("MarshalClientMessage: %v", err)
	}

	parsed, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	got, ok := parsed.(ReqMessage)
	if !ok {
		t.Fatalf("parsed type = %T, want ReqMessage", parsed)
	}
	if got.SubID != "sub1" {
		t.Errorf("SubID = %q, want sub1", got.SubID)
	}
	if len(got.Filters) != 2 {
		t.Fatalf("got %d filters, want 2", len(got.Filters))
	}
}

func TestCloseMessageRoundTrip(t *testing.T) {
	data, err := CloseMessage{SubID: "sub1"}.MarshalClientMessage()
	if err != nil {
		t.Fatalf("MarshalClientMessage: %v", err)
	}
	parsed, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	if cm, ok := parsed.(CloseMessage); !ok || cm.SubID != "sub1" {
		t.Fatalf("parsed = %#v, want CloseMessage{sub1}", parsed)
	}
}

func TestParseClientMessageRejectsUnrecognizedType(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`["BOGUS","x"]`)); err == nil {
		t.Fatal("expected an error for an unrecognized client message type")
	}
}

func TestParseClientMessageRejectsMalformed(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`"not an array"`)); err != ErrInvalidMessageFormat {
		t.Fatalf("err = %v, want ErrInvalidMessageFormat", err)
	}
}

func TestParseServerMessageEvent(t *testing.T) {
	kp, _ := keys.New()
	ev, _ := nostr.Sign(nostr.UnsignedEvent{Kind: 1, Content: "hi"}, kp)
	data := []byte(`["EVENT","sub1",` + mustMarshal(t, ev) + `]`)

	parsed, err := ParseServerMessage(data)
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	ef, ok := parsed.(EventFrame)
	if !ok {
		t.Fatalf("parsed type = %T, want EventFrame", parsed)
	}
	if ef.SubID != "sub1" || ef.Event.ID != ev.ID {
		t.Errorf("unexpected frame: %+v", ef)
	}
}

func TestParseServerMessageEose(t *testing.T) {
	parsed, err := ParseServerMessage([]byte(`["EOSE","sub1"]`))
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	if ef, ok := parsed.(EoseFrame); !ok || ef.SubID != "sub1" {
		t.Fatalf("parsed = %#v, want EoseFrame{sub1}", parsed)
	}
}

func TestParseServerMessageNotice(t *testing.T) {
	parsed, err := ParseServerMessage([]byte(`["NOTICE","hello"]`))
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	if nf, ok := parsed.(NoticeFrame); !ok || nf.Message != "hello" {
		t.Fatalf("parsed = %#v, want NoticeFrame{hello}", parsed)
	}
}

func TestParseServerMessageOkRequiresExactlyFourElements(t *testing.T) {
	if _, err := ParseServerMessage([]byte(`["OK","abc",true]`)); err != ErrInvalidMessageFormat {
		t.Fatalf("err = %v, want ErrInvalidMessageFormat", err)
	}

	parsed, err := ParseServerMessage([]byte(`["OK","abc",true,"stored"]`))
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	ok, isOK := parsed.(OkFrame)
	if !isOK {
		t.Fatalf("parsed type = %T, want OkFrame", parsed)
	}
	if ok.EventID != "abc" || !ok.Accepted || ok.Message != "stored" {
		t.Errorf("unexpected OK frame: %+v", ok)
	}
}

func TestParseServerMessageAuth(t *testing.T) {
	parsed, err := ParseServerMessage([]byte(`["AUTH","challenge-string"]`))
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	if af, ok := parsed.(AuthFrame); !ok || af.Challenge != "challenge-string" {
		t.Fatalf("parsed = %#v, want AuthFrame{challenge-string}", parsed)
	}
}

func TestParseServerMessageClosed(t *testing.T) {
	parsed, err := ParseServerMessage([]byte(`["CLOSED","sub1","auth-required: please authenticate"]`))
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	cf, ok := parsed.(ClosedFrame)
	if !ok || cf.SubID != "sub1" {
		t.Fatalf("parsed = %#v, want ClosedFrame{sub1, ...}", parsed)
	}
}

func TestParseServerMessageUnknownTypeIsPreserved(t *testing.T) {
	parsed, err := ParseServerMessage([]byte(`["WEIRD","x","y"]`))
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	uf, ok := parsed.(UnknownFrame)
	if !ok {
		t.Fatalf("parsed type = %T, want UnknownFrame", parsed)
	}
	if uf.Type != "WEIRD" {
		t.Errorf("Type = %q, want WEIRD", uf.Type)
	}
}

func mustMarshal(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestReqMessageExactWireForm(t *testing.T) {
	f := nostr.Filter{Kinds: []int{1}}
	f.WithLimit(10)
	data, err := (ReqMessage{SubID: "s", Filters: []nostr.Filter{f}}).MarshalClientMessage()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `["REQ","s",{"kinds":[1],"limit":10}]`
	if string(data) != want {
		t.Errorf("wire form = %s, want %s", data, want)
	}
}

func TestParseServerMessageOkRejection(t *testing.T) {
	parsed, err := ParseServerMessage([]byte(`["OK","abc",false,"duplicate: already have this event"]`))
	if err != nil {
		t.Fatalf("ParseServerMessage: %v", err)
	}
	ok, isOK := parsed.(OkFrame)
	if !isOK {
		t.Fatalf("parsed type = %T, want OkFrame", parsed)
	}
	if ok.EventID != "abc" || ok.Accepted || ok.Message != "duplicate: already have this event" {
		t.Errorf("unexpected OK frame: %+v", ok)
	}
}
