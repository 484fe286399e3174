package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
)

type fakeChannel struct {
	id        string
	available bool
	fail      bool
	sent      []string
}

func (f *fakeChannel) ID() string      { return f.id }
func (f *fakeChannel) Available() bool { return f.available }
func (f *fakeChannel) SendMessage(ctx context.Context, req channels.SendRequest) (channels.SendResult, error) {
	if f.fail {
		return channels.SendResult{}, errors.New("send failed")
	}
	f.sent = append(f.sent, req.Content)
	return channels.SendResult{Success: true}, nil
}

func newRegistry(ch *fakeChannel) *channels.Registry {
	r := channels.NewRegistry()
	r.Register(ch.id, ch)
	return r
}

func texts(ss ...string) []Payload {
	out := make([]Payload, len(ss))
	for i, s := range ss {
		out[i] = Payload{Text: s}
	}
	return out
}

func TestParseTarget(t *testing.T) {
	tgt, ok := ParseTarget("wecom:room-1", "")
	if !ok || tgt.Channel != "wecom" || tgt.To != "room-1" {
		t.Fatalf("got %+v ok=%v", tgt, ok)
	}

	tgt, ok = ParseTarget("room-1", "feishu")
	if !ok || tgt.Channel != "feishu" || tgt.To != "room-1" {
		t.Fatalf("fallback form: got %+v ok=%v", tgt, ok)
	}

	if _, ok := ParseTarget(channels.IDLast, "feishu"); ok {
		t.Fatalf("want \"last\" to return ok=false")
	}

	if _, ok := ParseTarget("room-1", ""); ok {
		t.Fatalf("want no fallback to return ok=false")
	}
}

func TestDeliverOne_ChannelNotFoundNonBestEffort(t *testing.T) {
	s := NewService(channels.NewRegistry(), 0, 0)
	_, err := s.DeliverOne(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, Payload{Text: "hi"}, Options{})
	if !errors.Is(err, cronerr.ErrChannelNotFound) {
		t.Fatalf("want ErrChannelNotFound, got %v", err)
	}
}

func TestDeliverOne_ChannelNotFoundBestEffort(t *testing.T) {
	s := NewService(channels.NewRegistry(), 0, 0)
	res, err := s.DeliverOne(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, Payload{Text: "hi"}, Options{BestEffort: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatalf("want failed result")
	}
}

func TestDeliverOne_SendFailureNonBestEffort(t *testing.T) {
	ch := &fakeChannel{id: channels.IDFeishu, available: true, fail: true}
	s := NewService(newRegistry(ch), 0, 0)
	_, err := s.DeliverOne(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, Payload{Text: "hi"}, Options{})
	if !errors.Is(err, cronerr.ErrDeliveryFailed) {
		t.Fatalf("want ErrDeliveryFailed, got %v", err)
	}
}

func TestDeliverOne_SuccessCarriesChannelAndMessageID(t *testing.T) {
	ch := &fakeChannel{id: channels.IDFeishu, available: true}
	s := NewService(newRegistry(ch), 0, 0)
	res, err := s.DeliverOne(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, Payload{Text: "hi"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Channel != channels.IDFeishu {
		t.Fatalf("got %+v", res)
	}
}

func TestDeliverMany_StopsOnFirstFailureWithoutBestEffort(t *testing.T) {
	ch := &fakeChannel{id: channels.IDFeishu, available: true, fail: true}
	s := NewService(newRegistry(ch), 0, 0)
	results, err := s.DeliverMany(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, texts("a", "b", "c"), Options{})
	if err == nil {
		t.Fatal("want error")
	}
	if len(results) != 0 {
		t.Fatalf("want no results recorded before the failing attempt propagates, got %v", results)
	}
}

func TestDeliverMany_BestEffortContinuesPastFailures(t *testing.T) {
	ch := &fakeChannel{id: channels.IDFeishu, available: true, fail: true}
	s := NewService(newRegistry(ch), 0, 0)
	results, err := s.DeliverMany(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, texts("a", "b", "c"), Options{BestEffort: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Success {
			t.Fatalf("want all failed, got %+v", r)
		}
	}
}

func TestDeliverMany_OrderingAndIndexCorrespondence(t *testing.T) {
	ch := &fakeChannel{id: channels.IDFeishu, available: true}
	s := NewService(newRegistry(ch), 0, 0)
	payloads := []string{"first", "second", "third"}
	results, err := s.DeliverMany(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, texts(payloads...), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(payloads) {
		t.Fatalf("want %d results, got %d", len(payloads), len(results))
	}
	if !reflectEqual(ch.sent, payloads) {
		t.Fatalf("want delivery order %v, got %v", payloads, ch.sent)
	}
}

func TestDeliverMany_AbortStopsImmediately(t *testing.T) {
	ch := &fakeChannel{id: channels.IDFeishu, available: true}
	s := NewService(newRegistry(ch), 0, 0)
	abort := make(chan struct{})
	close(abort)

	results, err := s.DeliverMany(context.Background(), Target{Channel: channels.IDFeishu, To: "x"}, texts("a", "b"), Options{AbortSignal: abort})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Error != "Aborted" {
		t.Fatalf("want single Aborted result, got %v", results)
	}
	if len(ch.sent) != 0 {
		t.Fatalf("want no sends after abort, got %v", ch.sent)
	}
}

func TestDeliverOutbound_EmptyPayloadsYieldsNil(t *testing.T) {
	ch := &fakeChannel{id: channels.IDFeishu, available: true}
	s := NewService(newRegistry(ch), 0, 0)
	results, err := s.DeliverOutbound(context.Background(), channels.IDFeishu, "x", nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if results != nil {
		t.Fatalf("want nil, got %v", results)
	}
}

func reflectEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
