package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/panoramix/internal/alert"
	"github.com/zulandar/panoramix/internal/boxchain"
	"github.com/zulandar/panoramix/internal/config"
	"github.com/zulandar/panoramix/internal/consensus"
	"github.com/zulandar/panoramix/internal/db"
	"github.com/zulandar/panoramix/internal/digest"
	"github.com/zulandar/panoramix/internal/endpoint"
	"github.com/zulandar/panoramix/internal/keys"
	"github.com/zulandar/panoramix/internal/ledger"
	"github.com/zulandar/panoramix/internal/models"
	"github.com/zulandar/panoramix/internal/proof"
	"github.com/zulandar/panoramix/internal/ratify"
	"gorm.io/gorm"
)

// node bundles the services a command needs, wired from config.
type node struct {
	cfg      *config.Config
	db       *gorm.DB
	alg      digest.Algorithm
	ring     *keys.KeyRing
	ledger   *ledger.Ledger
	resolver *consensus.Resolver
	chain    *boxchain.Chain
	registry *endpoint.Registry
	signer   keys.Signer   // nil without crypto.key_file
	issuer   *proof.Issuer // nil without signer
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s store: %w", cfg.Database.Driver, err)
	}

	return cfg, gormDB, nil
}

func openNode(configPath string) (*node, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	alg, err := digest.Parse(cfg.Crypto.Hash)
	if err != nil {
		return nil, err
	}

	n := &node{
		cfg:      cfg,
		db:       gormDB,
		alg:      alg,
		ring:     keys.NewKeyRing(),
		resolver: consensus.New(gormDB, alg),
		chain:    boxchain.New(gormDB, alg),
		registry: endpoint.NewRegistry(cfg.EndpointTypes),
	}
	if _, err := n.ring.LoadPeers(gormDB); err != nil {
		return nil, err
	}
	if cfg.Crypto.KeyFile != "" {
		if n.signer, err = keys.LoadSigner(cfg.Crypto.KeyFile, cfg.Crypto.KeyID); err != nil {
			return nil, err
		}
		if !n.ring.Has(n.signer.KeyID()) {
			if err := n.ring.Add(n.signer.KeyID(), n.signer.PublicKey()); err != nil {
				return nil, err
			}
		}
		n.issuer = proof.NewIssuer(gormDB, n.chain, n.signer)
	}
	n.ledger = ledger.New(gormDB, n.ring)

	if cfg.Alerts.SlackWebhook != "" {
		a, err := alert.NewSlack(alert.SlackOpts{WebhookURL: cfg.Alerts.SlackWebhook, PeerID: cfg.PeerID})
		if err != nil {
			return nil, err
		}
		n.resolver.SetAlerter(a)
	}
	ratify.New(gormDB, n.issuer).Subscribe(n.resolver)
	return n, nil
}

func (n *node) requireSigner() error {
	if n.signer == nil {
		return fmt.Errorf("crypto.key_file is not configured")
	}
	return nil
}

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to Panoramix config file")
}

// parseBox accepts box names in any case.
func parseBox(s string) (models.Box, error) {
	b := models.Box(strings.ToUpper(s))
	if !b.Valid() {
		return "", fmt.Errorf("unknown box %q (inbox, outbox)", s)
	}
	return b, nil
}

// parseBoxRef splits "endpoint/box".
func parseBoxRef(s string) (string, models.Box, error) {
	i := strings.LastIndex(s, "/")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("expected <endpoint>/<box>, got %q", s)
	}
	b, err := parseBox(s[i+1:])
	if err != nil {
		return "", "", err
	}
	return s[:i], b, nil
}
