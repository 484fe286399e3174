package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
)

type stubChannel struct {
	id        string
	available bool
	sent      []string
	fail      bool
}

func (s *stubChannel) ID() string        { return s.id }
func (s *stubChannel) Available() bool   { return s.available }
func (s *stubChannel) SendMessage(ctx context.Context, req SendRequest) (SendResult, error) {
	if s.fail {
		return SendResult{}, errors.New("boom")
	}
	s.sent = append(s.sent, req.Content)
	return SendResult{Success: true}, nil
}

func TestRegistry_RegisterRejectsUnknownID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("carrier-pigeon", &stubChannel{id: "carrier-pigeon", available: true}); !errors.Is(err, cronerr.ErrChannelNotFound) {
		t.Fatalf("want ErrChannelNotFound, got %v", err)
	}
}

func TestRegistry_GetAndAvailability(t *testing.T) {
	r := NewRegistry()
	ch := &stubChannel{id: IDWeCom, available: true}
	if err := r.Register(IDWeCom, ch); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get(IDWeCom)
	if err != nil || got != ch {
		t.Fatalf("want ch, got %v err %v", got, err)
	}
	if !r.IsAvailable(IDWeCom) {
		t.Fatalf("want available")
	}
	if r.IsAvailable(IDFeishu) {
		t.Fatalf("want unavailable for unregistered channel")
	}
}

func TestRegistry_LastResolvesToDefault(t *testing.T) {
	r := NewRegistry()
	ch := &stubChannel{id: IDWebChat, available: true}
	if err := r.Register(IDWebChat, ch); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Get(IDLast); !errors.Is(err, cronerr.ErrChannelNotFound) {
		t.Fatalf("want ErrChannelNotFound before a default is set, got %v", err)
	}

	if err := r.SetDefault(IDWebChat); err != nil {
		t.Fatal(err)
	}
	got, err := r.Get(IDLast)
	if err != nil || got != ch {
		t.Fatalf("want default channel, got %v err %v", got, err)
	}
}

func TestRegistry_ListAll(t *testing.T) {
	r := NewRegistry()
	r.Register(IDDingTalk, &stubChannel{id: IDDingTalk})
	r.Register(IDQQ, &stubChannel{id: IDQQ})

	ids := r.ListAll()
	if len(ids) != 2 {
		t.Fatalf("want 2 ids, got %v", ids)
	}
}
