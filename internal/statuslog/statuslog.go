// Package statuslog is the append-only history of ratified peer and
// endpoint status changes. Entries are ordered by row id, never by
// timestamp, since peer clocks are not trusted for ordering.
package statuslog

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
)

// Subject selects which log an entry belongs to.
type Subject string

const (
	SubjectPeer     Subject = "peer"
	SubjectEndpoint Subject = "endpoint"
)

// ErrNoHistory means the subject has no log entries.
var ErrNoHistory = errors.New("statuslog: no history")

// Entry is a subject-agnostic view of a log row.
type Entry struct {
	ID          uint      `json:"id"`
	Subject     Subject   `json:"subject"`
	SubjectID   string    `json:"subject_id"`
	ConsensusID string    `json:"consensus_id"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// Record appends a status entry for subjectID authorized by consensusID.
func Record(db *gorm.DB, subject Subject, subjectID, consensusID, status string, ts time.Time) (*Entry, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("statuslog: subject id is required")
	}
	if consensusID == "" {
		return nil, fmt.Errorf("statuslog: consensus id is required")
	}

	switch subject {
	case SubjectPeer:
		st := models.PeerStatus(status)
		if !st.Valid() {
			return nil, fmt.Errorf("statuslog: invalid peer status %q", status)
		}
		row := models.PeerConsensusLog{PeerID: subjectID, ConsensusID: consensusID, Status: st, Timestamp: ts}
		if err := db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("statuslog: record peer %s: %w", subjectID, err)
		}
		return peerEntry(row), nil
	case SubjectEndpoint:
		st := models.EndpointStatus(status)
		if !st.Valid() {
			return nil, fmt.Errorf("statuslog: invalid endpoint status %q", status)
		}
		row := models.EndpointConsensusLog{EndpointID: subjectID, ConsensusID: consensusID, Status: st, Timestamp: ts}
		if err := db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("statuslog: record endpoint %s: %w", subjectID, err)
		}
		return endpointEntry(row), nil
	}
	return nil, fmt.Errorf("statuslog: unknown subject %q", subject)
}

// Latest returns the most recently appended entry for subjectID.
func Latest(db *gorm.DB, subject Subject, subjectID string) (*Entry, error) {
	entries, err := query(db, subject, subjectID, "id DESC", 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoHistory, subject, subjectID)
	}
	return &entries[0], nil
}

// LatestStatus returns the status of the most recently appended entry.
func LatestStatus(db *gorm.DB, subject Subject, subjectID string) (string, error) {
	e, err := Latest(db, subject, subjectID)
	if err != nil {
		return "", err
	}
	return e.Status, nil
}

// LatestConsensusID returns the consensus that authorized the current status.
func LatestConsensusID(db *gorm.DB, subject Subject, subjectID string) (string, error) {
	e, err := Latest(db, subject, subjectID)
	if err != nil {
		return "", err
	}
	return e.ConsensusID, nil
}

// History returns every entry for subjectID in insertion order.
func History(db *gorm.DB, subject Subject, subjectID string) ([]Entry, error) {
	return query(db, subject, subjectID, "id ASC", 0)
}

// HasConsensus reports whether consensusID was already logged for subjectID.
func HasConsensus(db *gorm.DB, subject Subject, subjectID, consensusID string) (bool, error) {
	var (
		count int64
		err   error
	)
	switch subject {
	case SubjectPeer:
		err = db.Model(&models.PeerConsensusLog{}).
			Where("peer_id = ? AND consensus_id = ?", subjectID, consensusID).Count(&count).Error
	case SubjectEndpoint:
		err = db.Model(&models.EndpointConsensusLog{}).
			Where("endpoint_id = ? AND consensus_id = ?", subjectID, consensusID).Count(&count).Error
	default:
		return false, fmt.Errorf("statuslog: unknown subject %q", subject)
	}
	if err != nil {
		return false, fmt.Errorf("statuslog: lookup %s %s: %w", subject, subjectID, err)
	}
	return count > 0, nil
}

func query(db *gorm.DB, subject Subject, subjectID, order string, limit int) ([]Entry, error) {
	switch subject {
	case SubjectPeer:
		var rows []models.PeerConsensusLog
		q := db.Where("peer_id = ?", subjectID).Order(order)
		if limit > 0 {
			q = q.Limit(limit)
		}
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("statuslog: peer %s: %w", subjectID, err)
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, *peerEntry(r))
		}
		return out, nil
	case SubjectEndpoint:
		var rows []models.EndpointConsensusLog
		q := db.Where("endpoint_id = ?", subjectID).Order(order)
		if limit > 0 {
			q = q.Limit(limit)
		}
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("statuslog: endpoint %s: %w", subjectID, err)
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, *endpointEntry(r))
		}
		return out, nil
	}
	return nil, fmt.Errorf("statuslog: unknown subject %q", subject)
}

func peerEntry(r models.PeerConsensusLog) *Entry {
	return &Entry{
		ID:          r.ID,
		Subject:     SubjectPeer,
		SubjectID:   r.PeerID,
		ConsensusID: r.ConsensusID,
		Status:      string(r.Status),
		Timestamp:   r.Timestamp,
	}
}

func endpointEntry(r models.EndpointConsensusLog) *Entry {
	return &Entry{
		ID:          r.ID,
		Subject:     SubjectEndpoint,
		SubjectID:   r.EndpointID,
		ConsensusID: r.ConsensusID,
		Status:      string(r.Status),
		Timestamp:   r.Timestamp,
	}
}
