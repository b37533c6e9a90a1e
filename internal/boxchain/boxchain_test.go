package boxchain

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/sequencer"
	"github.com/zulandar/panoramix/internal/testkit"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *Chain) {
	t.Helper()
	gormDB := testkit.DB(t)
	return gormDB, New(gormDB, digest.SHA256)
}

func msg(text string) Incoming {
	return Incoming{Sender: "alice", Recipient: "bob", Text: text}
}

func TestAccept_ExtendsChain(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 0)

	want := ""
	for i, text := range []string{"one", "two", "three"} {
		serial, err := c.Accept("e1", models.BoxInbox, msg(text))
		if err != nil {
			t.Fatalf("Accept(%s): %v", text, err)
		}
		if serial != int64(i+1) {
			t.Errorf("serial = %d, want %d", serial, i+1)
		}
		want = digest.SHA256.Chain(want, digest.SHA256.Hex([]byte(text)))
	}

	ep, _ := endpoint.Get(gormDB, "e1")
	if ep.InboxHash != want {
		t.Errorf("InboxHash = %s, want %s", ep.InboxHash, want)
	}
	if ep.OutboxHash != "" {
		t.Errorf("OutboxHash = %q, want empty", ep.OutboxHash)
	}

	rep, err := c.Verify("e1", models.BoxInbox)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !rep.Valid() || rep.Count != 3 {
		t.Errorf("report = %+v", rep)
	}
}

func TestAccept_Duplicate(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 0)

	if _, err := c.Accept("e1", models.BoxInbox, msg("hello")); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	before, _ := endpoint.Get(gormDB, "e1")

	_, err := c.Accept("e1", models.BoxInbox, msg("hello"))
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("err = %v, want ErrDuplicateMessage", err)
	}
	after, _ := endpoint.Get(gormDB, "e1")
	if after.InboxHash != before.InboxHash {
		t.Error("rejected duplicate changed the chain")
	}

	// The same text is a different message in another box.
	if _, err := c.Accept("e1", models.BoxOutbox, msg("hello")); err != nil {
		t.Errorf("Accept in OUTBOX: %v", err)
	}
}

func TestAccept_ConcurrentDuplicate(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 0)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Accept("e1", models.BoxInbox, msg("same"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateMessage):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Errorf("ok = %d, dup = %d; want 1 and %d", ok, dup, n-1)
	}
	if _, err := c.Verify("e1", models.BoxInbox); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestAccept_Gating(t *testing.T) {
	tests := []struct {
		status models.EndpointStatus
		box    models.Box
		ok     bool
	}{
		{models.EndpointPending, models.BoxInbox, false},
		{models.EndpointPending, models.BoxOutbox, false},
		{models.EndpointOpen, models.BoxInbox, true},
		{models.EndpointOpen, models.BoxOutbox, true},
		{models.EndpointFull, models.BoxInbox, false},
		{models.EndpointClosed, models.BoxInbox, false},
		{models.EndpointClosed, models.BoxOutbox, true},
		{models.EndpointProcessed, models.BoxOutbox, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.status, tt.box), func(t *testing.T) {
			gormDB, c := setup(t)
			testkit.Endpoint(t, gormDB, "e1", "alice", tt.status, 0, 0)

			_, err := c.Accept("e1", tt.box, msg("x"))
			if tt.ok && err != nil {
				t.Errorf("Accept: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrEndpointNotReady) {
				t.Errorf("err = %v, want ErrEndpointNotReady", err)
			}
		})
	}
}

func TestAccept_SizeMax(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 2)

	for _, text := range []string{"a", "b"} {
		if _, err := c.Accept("e1", models.BoxInbox, msg(text)); err != nil {
			t.Fatalf("Accept(%s): %v", text, err)
		}
	}
	if _, err := c.Accept("e1", models.BoxInbox, msg("c")); !errors.Is(err, ErrSizeViolation) {
		t.Errorf("err = %v, want ErrSizeViolation", err)
	}
	if n, _ := sequencer.NextSerial(gormDB, "e1", models.BoxInbox); n != 3 {
		t.Errorf("NextSerial = %d, want 3", n)
	}
}

func TestAccept_SizeMinNeverRejects(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 3, 0)

	if _, err := c.Accept("e1", models.BoxInbox, msg("first")); err != nil {
		t.Fatalf("Accept below size_min: %v", err)
	}
	ready, err := c.ReadyForProcessing("e1")
	if err != nil {
		t.Fatalf("ReadyForProcessing: %v", err)
	}
	if ready {
		t.Error("ready with 1 of size_min 3")
	}
}

func TestAccept_HashAndOrder(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 0)

	in := msg("payload")
	in.MessageHash = "deadbeef"
	if _, err := c.Accept("e1", models.BoxInbox, in); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}

	in = msg("payload")
	in.MessageHash = digest.SHA256.Hex([]byte("payload"))
	in.ExpectedSerial = 2
	if _, err := c.Accept("e1", models.BoxInbox, in); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("err = %v, want ErrOutOfOrder", err)
	}

	in.ExpectedSerial = 1
	if serial, err := c.Accept("e1", models.BoxInbox, in); err != nil || serial != 1 {
		t.Errorf("Accept = %d, %v; want 1", serial, err)
	}
}

func TestAccept_UnknownEndpoint(t *testing.T) {
	_, c := setup(t)
	if _, err := c.Accept("missing", models.BoxInbox, msg("x")); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("err = %v, want ErrEndpointNotFound", err)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(db *gorm.DB)
	}{
		{"edited text", func(db *gorm.DB) {
			db.Model(&models.Message{}).Where("serial = ?", 2).Update("text", "forged")
		}},
		{"rehashed text", func(db *gorm.DB) {
			db.Model(&models.Message{}).Where("serial = ?", 2).Updates(map[string]interface{}{
				"text":         "forged",
				"message_hash": digest.SHA256.Hex([]byte("forged")),
			})
		}},
		{"reordered", func(db *gorm.DB) {
			db.Model(&models.Message{}).Where("serial = ?", 1).Update("serial", 99)
			db.Model(&models.Message{}).Where("serial = ?", 2).Update("serial", 1)
			db.Model(&models.Message{}).Where("serial = ?", 99).Update("serial", 2)
		}},
		{"deleted", func(db *gorm.DB) {
			db.Where("serial = ?", 3).Delete(&models.Message{})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, c := setup(t)
			testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 0)
			for _, text := range []string{"one", "two", "three"} {
				if _, err := c.Accept("e1", models.BoxInbox, msg(text)); err != nil {
					t.Fatalf("Accept: %v", err)
				}
			}

			tt.tamper(gormDB)

			if _, err := c.Verify("e1", models.BoxInbox); !errors.Is(err, ErrChainBroken) {
				t.Errorf("err = %v, want ErrChainBroken", err)
			}
		})
	}
}

func TestVerify_ConcurrentAccept(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 0)
	auditor := New(gormDB, digest.SHA256)

	const n = 150
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			if _, err := c.Accept("e1", models.BoxInbox, msg(fmt.Sprintf("m%d", i))); err != nil {
				t.Errorf("Accept(%d): %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		for _, v := range []*Chain{c, auditor} {
			rep, err := v.Verify("e1", models.BoxInbox)
			if err != nil {
				t.Fatalf("Verify during traffic: %v (report %+v)", err, rep)
			}
		}
	}
	<-done

	rep, err := c.Verify("e1", models.BoxInbox)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Count != n {
		t.Errorf("Count = %d, want %d", rep.Count, n)
	}
}

func TestVerify_UnknownEndpoint(t *testing.T) {
	_, c := setup(t)
	if _, err := c.Verify("missing", models.BoxInbox); !errors.Is(err, endpoint.ErrNotFound) {
		t.Errorf("err = %v, want endpoint.ErrNotFound", err)
	}
}

func TestVerify_SerialGap(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 0, 0)
	c.Accept("e1", models.BoxInbox, msg("one"))
	c.Accept("e1", models.BoxInbox, msg("two"))
	gormDB.Model(&models.Message{}).Where("serial = ?", 2).Update("serial", 5)

	if _, err := c.Verify("e1", models.BoxInbox); !errors.Is(err, sequencer.ErrSerialGap) {
		t.Errorf("err = %v, want ErrSerialGap", err)
	}
}

func TestStatsAndReadiness(t *testing.T) {
	gormDB, c := setup(t)
	testkit.Endpoint(t, gormDB, "e1", "alice", models.EndpointOpen, 2, 0)

	ready, err := c.ReadyForProcessing("e1")
	if err != nil {
		t.Fatalf("ReadyForProcessing: %v", err)
	}
	if ready {
		t.Error("empty inbox should not be ready with size_min 2")
	}

	c.Accept("e1", models.BoxInbox, msg("a"))
	c.Accept("e1", models.BoxInbox, msg("b"))
	c.Accept("e1", models.BoxOutbox, msg("z"))

	st, err := c.Stats("e1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Boxes[models.BoxInbox].Count != 2 || st.Boxes[models.BoxOutbox].Count != 1 {
		t.Errorf("Stats = %+v", st.Boxes)
	}
	if ready, _ := c.ReadyForProcessing("e1"); !ready {
		t.Error("inbox at size_min should be ready")
	}

	gormDB.Model(&models.Endpoint{}).Where("endpoint_id = ?", "e1").Update("status", models.EndpointPending)
	if ready, _ := c.ReadyForProcessing("e1"); ready {
		t.Error("pending endpoint should not be ready")
	}
}

func TestForward(t *testing.T) {
	gormDB, c := setup(t)
	reg := endpoint.DefaultRegistry()
	testkit.Endpoint(t, gormDB, "src", "alice", models.EndpointOpen, 0, 0)
	testkit.Endpoint(t, gormDB, "dst1", "bob", models.EndpointOpen, 0, 0)
	testkit.Endpoint(t, gormDB, "dst2", "carol", models.EndpointPending, 0, 0)
	endpoint.Link(gormDB, reg, "src", models.BoxOutbox, "dst1", models.BoxInbox)
	endpoint.Link(gormDB, reg, "src", models.BoxOutbox, "dst2", models.BoxInbox)

	if _, err := c.Accept("src", models.BoxOutbox, msg("fwd")); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	msgs, _ := Messages(gormDB, "src", models.BoxOutbox)

	deliveries, err := c.Forward("src", models.BoxOutbox, msgs[0].ID)
	if !errors.Is(err, ErrEndpointNotReady) {
		t.Errorf("err = %v, want joined ErrEndpointNotReady", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(deliveries))
	}
	if deliveries[0].EndpointID != "dst1" || deliveries[0].Serial != 1 || deliveries[0].Err != nil {
		t.Errorf("dst1 delivery = %+v", deliveries[0])
	}
	if deliveries[1].Err == nil {
		t.Error("delivery into pending dst2 should fail")
	}

	got, _ := Messages(gormDB, "dst1", models.BoxInbox)
	if len(got) != 1 || got[0].Text != "fwd" || got[0].Sender != "alice" {
		t.Errorf("dst1 inbox = %+v", got)
	}
}
