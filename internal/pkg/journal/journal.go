// Package journal is the durable record of a transaction: listing
// snapshots in redis, audit rows in postgres. The in-memory state machine
// never depends on reading these back; they exist for crash inspection and
// reporting.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
	"github.com/MrLituation/BlockBox/internal/pkg/crypto"
	"github.com/MrLituation/BlockBox/internal/pkg/postgres"
	"github.com/MrLituation/BlockBox/internal/pkg/redis"
	"github.com/MrLituation/BlockBox/internal/pkg/state"
)

// persistedListing is the snapshot written to redis. The buyer credential
// is AES-GCM sealed; everything else is the plain state.
type persistedListing struct {
	state.SystemState
	SealedBuyerCredential string `json:"sealedBuyerCredential,omitempty"`
}

type Journal struct {
	redis    redis.Client
	postgres postgres.Client
	crypto   crypto.Util
	version  string
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func New(redisClient redis.Client, postgresClient postgres.Client, cryptoUtil crypto.Util, version string, logger *zap.SugaredLogger) *Journal {
	return &Journal{
		redis:    redisClient,
		postgres: postgresClient,
		crypto:   cryptoUtil,
		version:  version,
		logger:   logger,
		now:      time.Now,
	}
}

// SaveListing persists the full state snapshot under the transaction id,
// sealing the buyer credential first.
func (j *Journal) SaveListing(ctx context.Context, snap state.SystemState) error {
	if snap.TransactionID == "" {
		return fmt.Errorf("refusing to persist snapshot without a transaction id")
	}

	p := persistedListing{SystemState: snap}
	if snap.BuyerCredential != "" {
		sealed, err := j.crypto.EncryptString(snap.BuyerCredential)
		if err != nil {
			return fmt.Errorf("sealing buyer credential: %w", err)
		}
		p.SealedBuyerCredential = sealed
	}
	p.BuyerCredential = ""

	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshalling listing snapshot: %w", err)
	}

	if err := j.redis.WriteListing(snap.TransactionID, string(b), ctx); err != nil {
		return fmt.Errorf("writing listing snapshot to redis: %w", err)
	}
	return nil
}

// RecordEvent appends one audit row for a phase change or terminal outcome.
func (j *Journal) RecordEvent(ctx context.Context, transactionID, phase, detail string) error {
	e := config.TransactionEvent{
		TransactionID: transactionID,
		Phase:         phase,
		Detail:        detail,
		Timestamp:     strconv.FormatInt(j.now().UTC().Unix(), 10),
		Version:       j.version,
	}
	if err := j.postgres.WriteTransactionEvent(e); err != nil {
		return fmt.Errorf("writing transaction event to postgres: %w", err)
	}
	return nil
}
