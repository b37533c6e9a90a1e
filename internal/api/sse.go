package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/panoramix/internal/models"
	"gorm.io/gorm"
)

// pollInterval is how often the event stream checks the status logs.
var pollInterval = 3 * time.Second

// statusEvent announces a newly ratified status.
type statusEvent struct {
	Subject     string    `json:"subject"`
	SubjectID   string    `json:"subject_id"`
	ConsensusID string    `json:"consensus_id"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// handleSSE streams status log entries appended after the client connected.
func handleSSE(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// Only entries appended from now on are streamed.
		var lastPeer, lastEndpoint uint
		var p models.PeerConsensusLog
		if err := db.Order("id DESC").Limit(1).Find(&p).Error; err == nil {
			lastPeer = p.ID
		}
		var e models.EndpointConsensusLog
		if err := db.Order("id DESC").Limit(1).Find(&e).Error; err == nil {
			lastEndpoint = e.ID
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(pollInterval)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var peers []models.PeerConsensusLog
				db.Where("id > ?", lastPeer).Order("id ASC").Find(&peers)
				for _, r := range peers {
					writeSSE(c.Writer, "status", statusEvent{
						Subject: "peer", SubjectID: r.PeerID, ConsensusID: r.ConsensusID,
						Status: string(r.Status), Timestamp: r.Timestamp,
					})
					lastPeer = r.ID
				}
				var eps []models.EndpointConsensusLog
				db.Where("id > ?", lastEndpoint).Order("id ASC").Find(&eps)
				for _, r := range eps {
					writeSSE(c.Writer, "status", statusEvent{
						Subject: "endpoint", SubjectID: r.EndpointID, ConsensusID: r.ConsensusID,
						Status: string(r.Status), Timestamp: r.Timestamp,
					})
					lastEndpoint = r.ID
				}
				if len(peers) > 0 || len(eps) > 0 {
					c.Writer.Flush()
				}
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
