package engine

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

// EnsureIssued creates the genesis transaction of asset if the issuer holds
// no unspent outputs of it. It returns the new transaction id, or a zero
// hash when nothing was issued.
func (e *Engine) EnsureIssued(ctx context.Context, asset types.Asset) (types.Hash, error) {
	kp, err := e.auth.Issuer(asset)
	if err != nil {
		return types.Hash{}, err
	}

	outs, err := e.FindUnspent(ctx, kp.PublicKey, asset)
	if err != nil {
		return types.Hash{}, fmt.Errorf("ensure %s issued: %w", asset, err)
	}
	if len(outs) > 0 {
		e.logger.Debug().Str("asset", string(asset)).Msg("Asset already issued")
		return types.Hash{}, nil
	}

	key, err := kp.Signer()
	if err != nil {
		return types.Hash{}, fmt.Errorf("%s issuer key: %w", asset, err)
	}
	defer key.Zero()

	b := tx.NewCreate(asset, e.supply, kp.PublicKey, tx.Metadata{
		Description: string(asset) + "_ORIGIN",
		Datetime:    e.timestamp(),
	}).AddOutput(kp.PublicKey, e.supply)
	if err := b.Sign(key); err != nil {
		return types.Hash{}, err
	}

	res, err := e.commit(ctx, b.Build())
	if err != nil {
		return types.Hash{}, fmt.Errorf("issue %s: %w", asset, err)
	}
	e.logger.Info().
		Str("asset", string(asset)).
		Uint64("supply", e.supply).
		Str("issuer", kp.PublicKey).
		Msg("Asset issued")
	return res.ID, nil
}

// EnsureAllIssued runs EnsureIssued for every asset. Used at startup, where
// any failure is fatal.
func (e *Engine) EnsureAllIssued(ctx context.Context) (map[types.Asset]types.Hash, error) {
	issued := make(map[types.Asset]types.Hash, len(types.Assets))
	for _, asset := range types.Assets {
		id, err := e.EnsureIssued(ctx, asset)
		if err != nil {
			return issued, err
		}
		issued[asset] = id
	}
	return issued, nil
}
