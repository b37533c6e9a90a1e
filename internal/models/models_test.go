package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestNegotiation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Negotiation{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Text", "type:text")
	assertGormTag(t, typ, "Status", "default:OPEN")
	assertGormTag(t, typ, "Consensus", "uniqueIndex")
	assertFieldType(t, typ, "Consensus", "*string")
	assertFieldType(t, typ, "Timestamp", "*time.Time")
	assertFieldType(t, typ, "Status", "models.NegotiationStatus")
}

func TestContribution_Fields(t *testing.T) {
	typ := reflect.TypeOf(Contribution{})

	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "NegotiationID", "index:idx_contribution_signer,priority:1")
	assertGormTag(t, typ, "SignerKeyID", "index:idx_contribution_signer,priority:2")
	assertGormTag(t, typ, "Latest", "default:false")
	assertFieldType(t, typ, "Latest", "bool")
}

func TestSigning_Fields(t *testing.T) {
	typ := reflect.TypeOf(Signing{})

	assertGormTag(t, typ, "NegotiationID", "uniqueIndex:idx_signing_signer")
	assertGormTag(t, typ, "SignerKeyID", "uniqueIndex:idx_signing_signer")
}

func TestPeer_Fields(t *testing.T) {
	typ := reflect.TypeOf(Peer{})

	assertGormTag(t, typ, "PeerID", "primaryKey")
	assertGormTag(t, typ, "KeyData", "uniqueIndex")
	assertFieldType(t, typ, "KeyType", "int")
	assertFieldType(t, typ, "Status", "models.PeerStatus")
}

func TestOwner_Fields(t *testing.T) {
	typ := reflect.TypeOf(Owner{})

	assertGormTag(t, typ, "PeerID", "uniqueIndex:idx_owner_peer_key,priority:1")
	assertGormTag(t, typ, "OwnerKeyID", "uniqueIndex:idx_owner_peer_key,priority:2")
}

func TestConsensusLogs_Fields(t *testing.T) {
	peerLog := reflect.TypeOf(PeerConsensusLog{})
	assertGormTag(t, peerLog, "PeerID", "index:idx_peer_log,priority:1")
	assertGormTag(t, peerLog, "ID", "index:idx_peer_log,priority:2")
	assertFieldType(t, peerLog, "Status", "models.PeerStatus")

	endpointLog := reflect.TypeOf(EndpointConsensusLog{})
	assertGormTag(t, endpointLog, "EndpointID", "index:idx_endpoint_log,priority:1")
	assertGormTag(t, endpointLog, "ID", "index:idx_endpoint_log,priority:2")
	assertFieldType(t, endpointLog, "Status", "models.EndpointStatus")
}

func TestEndpoint_Fields(t *testing.T) {
	typ := reflect.TypeOf(Endpoint{})

	assertGormTag(t, typ, "EndpointID", "primaryKey")
	assertGormTag(t, typ, "PeerID", "index")
	assertGormTag(t, typ, "EndpointParams", "type:text")
	assertGormTag(t, typ, "ProcessProof", "type:text")
	assertGormTag(t, typ, "Status", "default:PENDING")
	assertFieldType(t, typ, "SizeMax", "int")
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "EndpointID", "uniqueIndex:idx_message_box_hash,priority:1")
	assertGormTag(t, typ, "Box", "uniqueIndex:idx_message_box_hash,priority:2")
	assertGormTag(t, typ, "MessageHash", "uniqueIndex:idx_message_box_hash,priority:3")
	assertGormTag(t, typ, "EndpointID", "index:idx_message_box_order,priority:1")
	assertGormTag(t, typ, "ID", "index:idx_message_box_order,priority:3")
	assertFieldType(t, typ, "Serial", "*int64")
	assertFieldType(t, typ, "Box", "models.Box")
}

func TestStatusEnums_Valid(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"negotiation OPEN", NegotiationOpen.Valid()},
		{"negotiation CONSENSUS", NegotiationConsensus.Valid()},
		{"negotiation ABORTED", NegotiationAborted.Valid()},
		{"peer READY", PeerReady.Valid()},
		{"peer DELETED", PeerDeleted.Valid()},
		{"endpoint OPEN", EndpointOpen.Valid()},
		{"endpoint PROCESSED", EndpointProcessed.Valid()},
		{"box INBOX", BoxInbox.Valid()},
		{"box OUTBOX", BoxOutbox.Valid()},
	}
	for _, tt := range tests {
		if !tt.valid {
			t.Errorf("%s: Valid() = false, want true", tt.name)
		}
	}

	if NegotiationStatus("DONE").Valid() {
		t.Error("NegotiationStatus(DONE) should be invalid")
	}
	if PeerStatus("").Valid() {
		t.Error("empty PeerStatus should be invalid")
	}
	if EndpointStatus("open").Valid() {
		t.Error("lowercase EndpointStatus should be invalid")
	}
	if Box("PROCESSBOX").Valid() {
		t.Error("Box(PROCESSBOX) should be invalid")
	}
}

func TestEndpointStatus_AcceptsTraffic(t *testing.T) {
	tests := []struct {
		status EndpointStatus
		box    Box
		want   bool
	}{
		{EndpointPending, BoxInbox, false},
		{EndpointPending, BoxOutbox, false},
		{EndpointOpen, BoxInbox, true},
		{EndpointOpen, BoxOutbox, true},
		{EndpointFull, BoxInbox, false},
		{EndpointClosed, BoxInbox, false},
		{EndpointClosed, BoxOutbox, true},
		{EndpointProcessed, BoxOutbox, false},
		{EndpointOpen, Box("BOGUS"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.box), func(t *testing.T) {
			if got := tt.status.AcceptsTraffic(tt.box); got != tt.want {
				t.Errorf("AcceptsTraffic = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndpoint_BoxHash(t *testing.T) {
	e := Endpoint{InboxHash: "in", OutboxHash: "out"}
	if got := e.BoxHash(BoxInbox); got != "in" {
		t.Errorf("BoxHash(INBOX) = %q, want %q", got, "in")
	}
	if got := e.BoxHash(BoxOutbox); got != "out" {
		t.Errorf("BoxHash(OUTBOX) = %q, want %q", got, "out")
	}
	if BoxHashColumn(BoxOutbox) != "outbox_hash" || BoxHashColumn(BoxInbox) != "inbox_hash" {
		t.Error("BoxHashColumn returned unexpected column")
	}
}

func TestStatus_CanTransition(t *testing.T) {
	peer := []struct {
		from, to PeerStatus
		want     bool
	}{
		{PeerPending, PeerReady, true},
		{PeerPending, PeerDeleted, true},
		{PeerReady, PeerDeleted, true},
		{PeerReady, PeerPending, false},
		{PeerDeleted, PeerReady, false},
	}
	for _, tt := range peer {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	ep := []struct {
		from, to EndpointStatus
		want     bool
	}{
		{EndpointPending, EndpointOpen, true},
		{EndpointOpen, EndpointFull, true},
		{EndpointFull, EndpointOpen, true},
		{EndpointOpen, EndpointClosed, true},
		{EndpointClosed, EndpointProcessed, true},
		{EndpointClosed, EndpointOpen, false},
		{EndpointProcessed, EndpointOpen, false},
		{EndpointPending, EndpointProcessed, false},
	}
	for _, tt := range ep {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
