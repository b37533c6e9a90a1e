package consensus

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/zulandar/panoramix/internal/digest"
)

// Record is the immutable outcome of a negotiation.
type Record struct {
	ID            string            `json:"id"`
	NegotiationID string            `json:"negotiation_id"`
	Text          string            `json:"text"`
	Signings      map[string]string `json:"signings"`
	Timestamp     time.Time         `json:"timestamp"`
}

type signingEntry struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

type canonicalAgreement struct {
	NegotiationID string         `json:"negotiation_id"`
	Text          string         `json:"text"`
	Signings      []signingEntry `json:"signings"`
}

// CanonicalBytes returns the deterministic encoding an agreement is
// identified by: negotiation id, text and signings ordered by signer.
func CanonicalBytes(negotiationID, text string, signings map[string]string) ([]byte, error) {
	entries := make([]signingEntry, 0, len(signings))
	for signer, sig := range signings {
		entries = append(entries, signingEntry{Signer: signer, Signature: sig})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Signer < entries[j].Signer })
	return json.Marshal(canonicalAgreement{
		NegotiationID: negotiationID,
		Text:          text,
		Signings:      entries,
	})
}

// ComputeID derives the content-addressed consensus id (CIDv1, raw codec)
// of an agreement.
func ComputeID(alg digest.Algorithm, negotiationID, text string, signings map[string]string) (string, error) {
	data, err := CanonicalBytes(negotiationID, text, signings)
	if err != nil {
		return "", fmt.Errorf("consensus: encode agreement: %w", err)
	}
	sum, err := multihash.Sum(data, alg.Multihash(), -1)
	if err != nil {
		return "", fmt.Errorf("consensus: hash agreement: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// VerifyID reports whether rec.ID matches its content.
func VerifyID(alg digest.Algorithm, rec *Record) bool {
	id, err := ComputeID(alg, rec.NegotiationID, rec.Text, rec.Signings)
	return err == nil && id == rec.ID
}
