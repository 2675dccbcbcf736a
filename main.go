package main

import (
	"context"
	"log"

	"github.com/alexbotov/arena/internal/config"
	"github.com/alexbotov/arena/internal/journal"
	"github.com/alexbotov/arena/pkg/arena"
)

func main() {
	cfg := config.Load()

	client, err := arena.NewClient(&arena.ClientConfig{
		BaseURL:      cfg.Service.BaseURL,
		SignerKey:    cfg.Signer.Key,
		SharedSecret: cfg.Signer.SharedSecret,
		Timeout:      cfg.Service.Timeout,
		RetryCount:   cfg.Service.RetryCount,
		RequestRate:  cfg.Service.RequestRate,
	})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	if cfg.Journal.DSN != "" {
		j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer j.Close()
		if err := j.Migrate(); err != nil {
			log.Fatalf("failed to migrate journal: %v", err)
		}
		client.WithRecorder(j)
	}

	ctx := context.Background()
	log.Printf("joining as %s (kind %s)", client.Identity(), cfg.Service.Kind)

	if _, err := client.Join(ctx, cfg.Service.Kind); err != nil {
		log.Fatalf("join failed: %v", err)
	}

	sessionID, err := client.AwaitMatch(ctx, cfg.Service.MatchTimeout, cfg.Service.PollInterval)
	if err != nil {
		log.Fatalf("no match: %v", err)
	}
	log.Printf("matched: session %s", sessionID)

	final, err := client.PlayLoop(ctx, sessionID, checkOrFold, cfg.Service.PollInterval)
	if err != nil {
		log.Fatalf("session failed: %v", err)
	}
	log.Printf("session %s finished: %s (pot %d)", final.SessionID, final.Result, final.Pot)
}

// checkOrFold is a minimal decision function: check when legal, otherwise
// fold. Real strategies are supplied by the embedding application.
func checkOrFold(_ context.Context, state *arena.StateSnapshot) (*arena.Move, error) {
	if !state.OurTurn {
		return nil, nil
	}
	for _, action := range state.LegalActions {
		if action == arena.ActionCheck {
			return &arena.Move{Action: arena.ActionCheck}, nil
		}
	}
	return &arena.Move{Action: arena.ActionFold}, nil
}
