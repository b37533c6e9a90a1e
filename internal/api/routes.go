package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/panoramix/internal/boxchain"
	"github.com/zulandar/panoramix/internal/consensus"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/ledger"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/peer"
	"github.com/zulandar/panoramix/internal/proof"
	"github.com/zulandar/panoramix/internal/statuslog"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	db := opts.DB
	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Negotiations and consensus.
	api.GET("/negotiations", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		rows, err := ListNegotiations(db, strings.ToUpper(c.Query("status")), limit)
		respond(c, rows, err)
	})
	api.GET("/negotiations/:id", func(c *gin.Context) {
		d, err := GetNegotiation(db, c.Param("id"))
		respond(c, d, err)
	})
	api.GET("/negotiations/:id/consensus", func(c *gin.Context) {
		rec, err := consensus.Stored(db, c.Param("id"))
		respond(c, rec, err)
	})
	api.GET("/consensus/:cid", func(c *gin.Context) {
		rec, err := consensus.FindByID(db, c.Param("cid"))
		respond(c, rec, err)
	})

	// Peers.
	api.GET("/peers", func(c *gin.Context) {
		ps, err := peer.List(db, models.PeerStatus(strings.ToUpper(c.Query("status"))))
		if err != nil {
			respond(c, nil, err)
			return
		}
		rows := make([]PeerDetail, 0, len(ps))
		for _, p := range ps {
			d, err := GetPeer(db, p.PeerID)
			if err != nil {
				respond(c, nil, err)
				return
			}
			rows = append(rows, *d)
		}
		respond(c, rows, nil)
	})
	api.GET("/peers/:id", func(c *gin.Context) {
		d, err := GetPeer(db, c.Param("id"))
		respond(c, d, err)
	})
	api.GET("/peers/:id/log", func(c *gin.Context) {
		entries, err := statuslog.History(db, statuslog.SubjectPeer, c.Param("id"))
		respond(c, entries, err)
	})

	// Endpoints.
	api.GET("/endpoints", func(c *gin.Context) {
		f := endpoint.ListFilters{
			PeerID: c.Query("peer"),
			Status: models.EndpointStatus(strings.ToUpper(c.Query("status"))),
		}
		if v, ok := c.GetQuery("public"); ok {
			b := v == "1" || strings.EqualFold(v, "true")
			f.Public = &b
		}
		eps, err := endpoint.List(db, f)
		if err != nil {
			respond(c, nil, err)
			return
		}
		rows := make([]EndpointRow, len(eps))
		for i, e := range eps {
			rows[i] = endpointRow(e)
		}
		respond(c, rows, nil)
	})
	api.GET("/endpoints/:id", func(c *gin.Context) {
		e, err := endpoint.Get(db, c.Param("id"))
		if err != nil {
			respond(c, nil, err)
			return
		}
		respond(c, endpointRow(*e), nil)
	})
	api.GET("/endpoints/:id/log", func(c *gin.Context) {
		entries, err := statuslog.History(db, statuslog.SubjectEndpoint, c.Param("id"))
		respond(c, entries, err)
	})
	api.GET("/endpoints/:id/links", func(c *gin.Context) {
		links, err := endpoint.Links(db, c.Param("id"))
		if err != nil {
			respond(c, nil, err)
			return
		}
		out := make([]gin.H, len(links))
		for i, l := range links {
			out[i] = gin.H{
				"from_endpoint_id": l.FromEndpointID,
				"from_box":         l.FromBox,
				"to_box":           l.ToBox,
			}
		}
		respond(c, out, nil)
	})
	api.GET("/endpoints/:id/stats", func(c *gin.Context) {
		st, err := opts.Chain.Stats(c.Param("id"))
		respond(c, st, err)
	})
	api.GET("/endpoints/:id/boxes/:box", func(c *gin.Context) {
		box, ok := parseBox(c)
		if !ok {
			return
		}
		if _, err := endpoint.Get(db, c.Param("id")); err != nil {
			respond(c, nil, err)
			return
		}
		msgs, err := boxchain.Messages(db, c.Param("id"), box)
		if err != nil {
			respond(c, nil, err)
			return
		}
		respond(c, messageRows(msgs), nil)
	})
	api.GET("/endpoints/:id/boxes/:box/verify", func(c *gin.Context) {
		box, ok := parseBox(c)
		if !ok {
			return
		}
		rep, err := opts.Chain.Verify(c.Param("id"), box)
		if rep == nil {
			respond(c, nil, err)
			return
		}
		body := gin.H{"report": rep, "valid": err == nil}
		if err != nil {
			body["error"] = err.Error()
		}
		c.JSON(http.StatusOK, body)
	})
	api.GET("/endpoints/:id/proof", func(c *gin.Context) {
		check, err := proof.Verify(db, opts.Chain, opts.Verifier, c.Param("id"))
		if errors.Is(err, proof.ErrInvalidProof) {
			c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
			return
		}
		if err != nil {
			respond(c, nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true, "current": check.Current, "proof": check.Proof})
	})

	api.GET("/events", handleSSE(db))
}

func parseBox(c *gin.Context) (models.Box, bool) {
	box := models.Box(strings.ToUpper(c.Param("box")))
	if !box.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown box " + c.Param("box")})
		return "", false
	}
	return box, true
}

// respond writes v as JSON, or maps err to a status code.
func respond(c *gin.Context, v any, err error) {
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, consensus.ErrNoConsensus),
		errors.Is(err, peer.ErrNotFound),
		errors.Is(err, endpoint.ErrNotFound),
		errors.Is(err, proof.ErrNoProof):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
