package consensus

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/models"
)

// ErrCorruptLedger means the stored contributions break a ledger invariant,
// such as two latest contributions from one signer. It is an integrity
// fault, not a pending state.
var ErrCorruptLedger = errors.New("consensus: corrupt ledger state")

// State classifies a resolution attempt.
type State string

const (
	// StatePending means required signers are missing or unexpected signers contributed.
	StatePending State = "pending"
	// StateDiverged means every required signer contributed but texts differ.
	StateDiverged State = "diverged"
	// StateAgreed means consensus was reached.
	StateAgreed State = "agreed"
	// StateAborted means the negotiation was closed without consensus.
	StateAborted State = "aborted"
)

// TextGroup lists the signers whose latest contribution carries the same text.
type TextGroup struct {
	Digest  string   `json:"digest"`
	Signers []string `json:"signers"`
}

// Result is the outcome of TryResolve. Record is set only for StateAgreed.
type Result struct {
	State      State       `json:"state"`
	Record     *Record     `json:"record,omitempty"`
	Missing    []string    `json:"missing,omitempty"`
	Unexpected []string    `json:"unexpected,omitempty"`
	Groups     []TextGroup `json:"groups,omitempty"`
}

// Agreed reports whether the result carries a consensus record.
func (r Result) Agreed() bool {
	return r.State == StateAgreed && r.Record != nil
}

// Evaluate decides, without touching the store, whether the latest
// contributions satisfy the required signer set with identical text.
// On agreement it returns the agreed text and signer->signature map. More
// than one latest contribution per signer yields ErrCorruptLedger.
func Evaluate(alg digest.Algorithm, required []string, latest []models.Contribution) (Result, string, map[string]string, error) {
	var res Result

	present := make(map[string]models.Contribution, len(latest))
	for _, c := range latest {
		if prev, dup := present[c.SignerKeyID]; dup {
			return Result{}, "", nil, fmt.Errorf("%w: signer %s has latest contributions %d and %d",
				ErrCorruptLedger, c.SignerKeyID, prev.ID, c.ID)
		}
		present[c.SignerKeyID] = c
	}
	want := make(map[string]bool, len(required))
	for _, s := range required {
		want[s] = true
		if _, ok := present[s]; !ok {
			res.Missing = append(res.Missing, s)
		}
	}
	for s := range present {
		if !want[s] {
			res.Unexpected = append(res.Unexpected, s)
		}
	}
	sort.Strings(res.Missing)
	sort.Strings(res.Unexpected)

	res.Groups = groupTexts(alg, latest)

	if len(required) == 0 || len(res.Missing) > 0 || len(res.Unexpected) > 0 {
		res.State = StatePending
		return res, "", nil, nil
	}
	if len(res.Groups) != 1 {
		res.State = StateDiverged
		return res, "", nil, nil
	}

	res.State = StateAgreed
	signings := make(map[string]string, len(latest))
	for _, c := range latest {
		signings[c.SignerKeyID] = c.Signature
	}
	return res, latest[0].Text, signings, nil
}

// groupTexts buckets signers by text digest, largest group first.
func groupTexts(alg digest.Algorithm, latest []models.Contribution) []TextGroup {
	byDigest := make(map[string][]string)
	for _, c := range latest {
		d := alg.Hex([]byte(c.Text))
		byDigest[d] = append(byDigest[d], c.SignerKeyID)
	}
	groups := make([]TextGroup, 0, len(byDigest))
	for d, signers := range byDigest {
		sort.Strings(signers)
		groups = append(groups, TextGroup{Digest: d, Signers: signers})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Signers) != len(groups[j].Signers) {
			return len(groups[i].Signers) > len(groups[j].Signers)
		}
		return groups[i].Digest < groups[j].Digest
	})
	return groups
}
