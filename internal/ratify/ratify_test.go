package ratify

import (
	"errors"
	"testing"

	"github.com/zulandar/panoramix/internal/boxchain"
	"github.com/zulandar/panoramix/internal/consensus"
	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/keys"
	"github.com/zulandar/panoramix/internal/ledger"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/peer"
	"github.com/zulandar/panoramix/internal/proof"
	"github.com/zulandar/panoramix/internal/statuslog"
	"github.com/zulandar/panoramix/internal/testkit"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	resolver *consensus.Resolver
	signers  map[string]keys.Signer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gormDB := testkit.DB(t)
	ring, ss := testkit.Keys(t, "alice", "o1", "o2")
	chain := boxchain.New(gormDB, digest.SHA256)

	f := &fixture{
		db:       gormDB,
		ledger:   ledger.New(gormDB, ring),
		resolver: consensus.New(gormDB, digest.SHA256),
		signers:  ss,
	}
	New(gormDB, proof.NewIssuer(gormDB, chain, ss["alice"])).Subscribe(f.resolver)

	if _, err := peer.Register(gormDB, peer.RegisterOpts{
		PeerID:  "alice",
		KeyData: ss["alice"].PublicKey(),
		Owners:  []string{"o1", "o2"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return f
}

// agree has every required signer sign the proposal and resolves it.
func (f *fixture) agree(t *testing.T, n *models.Negotiation) consensus.Result {
	t.Helper()
	signers, _ := ledger.RequiredSigners(f.db, n.ID)
	for _, s := range signers {
		sig := testkit.Sign(t, f.signers[s], n.Text)
		if _, err := f.ledger.Submit(n.ID, s, n.Text, sig); err != nil {
			t.Fatalf("Submit(%s): %v", s, err)
		}
	}
	res, err := f.resolver.TryResolve(n.ID)
	if err != nil {
		t.Fatalf("TryResolve: %v", err)
	}
	if !res.Agreed() {
		t.Fatalf("state = %s, want agreed", res.State)
	}
	return res
}

func TestEncodeDecode(t *testing.T) {
	text, err := Encode(Transition{Action: ActionPeerStatus, SubjectID: "p1", Status: "READY"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Action != ActionPeerStatus || got.SubjectID != "p1" || got.Status != "READY" {
		t.Errorf("Decode = %+v", got)
	}

	for _, text := range []string{"plain text", `{"action":"launch","subject_id":"x"}`, `{"action":"peer_status"}`} {
		if _, err := Decode(text); !errors.Is(err, ErrNotTransition) {
			t.Errorf("Decode(%q) err = %v, want ErrNotTransition", text, err)
		}
	}
	if _, err := Encode(Transition{Action: "launch", SubjectID: "x"}); err == nil {
		t.Error("Encode with unknown action should fail")
	}
}

func TestPeerReadyByConsensus(t *testing.T) {
	f := setup(t)

	n, err := ProposeStatus(f.db, f.ledger, Transition{Action: ActionPeerStatus, SubjectID: "alice", Status: "READY"})
	if err != nil {
		t.Fatalf("ProposeStatus: %v", err)
	}
	signers, _ := ledger.RequiredSigners(f.db, n.ID)
	if len(signers) != 2 || signers[0] != "o1" || signers[1] != "o2" {
		t.Errorf("signers = %v, want owners [o1 o2]", signers)
	}

	res := f.agree(t, n)

	p, _ := peer.Get(f.db, "alice")
	if p.Status != models.PeerReady {
		t.Errorf("peer status = %s, want READY", p.Status)
	}
	id, err := statuslog.LatestConsensusID(f.db, statuslog.SubjectPeer, "alice")
	if err != nil {
		t.Fatalf("LatestConsensusID: %v", err)
	}
	if id != res.Record.ID {
		t.Errorf("logged consensus = %s, want %s", id, res.Record.ID)
	}

	// Replaying the same record changes nothing.
	r := New(f.db, nil)
	applied, err := r.Apply(*res.Record)
	if err != nil || applied {
		t.Errorf("Apply again = %v, %v; want false, nil", applied, err)
	}
	hist, _ := statuslog.History(f.db, statuslog.SubjectPeer, "alice")
	if len(hist) != 1 {
		t.Errorf("history = %d entries, want 1", len(hist))
	}
}

func TestEndpointOpenRefreshesProof(t *testing.T) {
	f := setup(t)
	ep, err := endpoint.Create(f.db, endpoint.DefaultRegistry(), endpoint.CreateOpts{
		PeerID:       "alice",
		EndpointType: "mailbox",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := ProposeStatus(f.db, f.ledger, Transition{Action: ActionEndpointStatus, SubjectID: ep.EndpointID, Status: "OPEN"})
	if err != nil {
		t.Fatalf("ProposeStatus: %v", err)
	}
	f.agree(t, n)

	got, _ := endpoint.Get(f.db, ep.EndpointID)
	if got.Status != models.EndpointOpen {
		t.Errorf("endpoint status = %s, want OPEN", got.Status)
	}
	p, err := proof.Parse(got)
	if err != nil {
		t.Fatalf("proof after open: %v", err)
	}
	if p.Status != models.EndpointOpen {
		t.Errorf("proof status = %s, want OPEN", p.Status)
	}
}

func TestApply_InvalidTransition(t *testing.T) {
	f := setup(t)
	testkit.Endpoint(t, f.db, "e1", "alice", models.EndpointPending, 0, 0)

	r := New(f.db, nil)
	text, _ := Encode(Transition{Action: ActionEndpointStatus, SubjectID: "e1", Status: "PROCESSED"})
	_, err := r.Apply(consensus.Record{ID: "c1", Text: text})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	got, _ := endpoint.Get(f.db, "e1")
	if got.Status != models.EndpointPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if _, err := statuslog.Latest(f.db, statuslog.SubjectEndpoint, "e1"); !errors.Is(err, statuslog.ErrNoHistory) {
		t.Errorf("log err = %v, want ErrNoHistory", err)
	}
}

func TestApply_UnknownSubject(t *testing.T) {
	f := setup(t)
	r := New(f.db, nil)
	text, _ := Encode(Transition{Action: ActionPeerStatus, SubjectID: "ghost", Status: "READY"})
	if _, err := r.Apply(consensus.Record{ID: "c1", Text: text}); !errors.Is(err, peer.ErrNotFound) {
		t.Errorf("err = %v, want peer.ErrNotFound", err)
	}
}

func TestProposeStatus_FallsBackToPeer(t *testing.T) {
	f := setup(t)
	testkit.Peer(t, f.db, f.signers["o1"])

	n, err := ProposeStatus(f.db, f.ledger, Transition{Action: ActionPeerStatus, SubjectID: "o1", Status: "DELETED"})
	if err != nil {
		t.Fatalf("ProposeStatus: %v", err)
	}
	signers, _ := ledger.RequiredSigners(f.db, n.ID)
	if len(signers) != 1 || signers[0] != "o1" {
		t.Errorf("signers = %v, want [o1]", signers)
	}
}

func TestNonTransitionConsensusIgnored(t *testing.T) {
	f := setup(t)
	n, err := f.ledger.Open("", "just words", []string{"o1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.agree(t, n)

	p, _ := peer.Get(f.db, "alice")
	if p.Status != models.PeerPending {
		t.Errorf("peer status = %s, want PENDING", p.Status)
	}
}
