package coin

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/signer"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

// AtTip selects the cursor height in balance queries.
const AtTip = ^uint32(0)

// Balance is the confirmed balance of an account per pool at one height,
// plus the unconfirmed delta tracked from the mempool.
type Balance struct {
	Height      uint32
	Pools       [types.NumPools]uint64
	Total       uint64
	Unconfirmed int64
}

// Balance returns the balance of an account at height h, or at the cursor
// when h is AtTip.
func (c *Context) Balance(account, h uint32) (*Balance, error) {
	b := &Balance{Height: h}
	err := c.view(func(r storage.Reader) error {
		if _, err := c.keys.Account(r, account); err != nil {
			return err
		}
		var err error
		b.Pools, err = store.PoolBalances(r, account, h)
		return err
	})
	if err != nil {
		return nil, err
	}
	if h == AtTip {
		if b.Height, err = c.Height(); err != nil {
			return nil, err
		}
	}
	for _, v := range b.Pools {
		b.Total += v
	}
	b.Unconfirmed = c.tracker.UnconfirmedBalance(account)
	return b, nil
}

// Spendable lists the coins a payment could select.
func (c *Context) Spendable(account uint32, mask types.PoolMask, minConf uint32) ([]store.Coin, error) {
	var out []store.Coin
	err := c.view(func(r storage.Reader) error {
		var err error
		out, err = store.Spendable(r, account, mask, AtTip, minConf)
		return err
	})
	return out, err
}

// SetExcluded excludes a coin from selection, or includes it again.
func (c *Context) SetExcluded(coin store.Coin, excluded bool) error {
	return c.update(func(rw storage.ReadWriter) error {
		return store.SetExcluded(rw, coin, excluded)
	})
}

// ReverseExcluded toggles the excluded flag of every unspent coin.
func (c *Context) ReverseExcluded(account uint32) error {
	return c.update(func(rw storage.ReadWriter) error {
		return store.ReverseExcluded(rw, account)
	})
}

// BuildPayment builds a summary against a snapshot of the spendable set.
// A zero MinConf uses the coin default.
func (c *Context) BuildPayment(req pay.Request) (*pay.Summary, error) {
	if req.MinConf == 0 {
		req.MinConf = c.cfg.MinConfirmations
	}
	var sum *pay.Summary
	err := c.view(func(r storage.Reader) error {
		var err error
		sum, err = c.builder.BuildPayment(r, req)
		return err
	})
	return sum, err
}

// Sweep builds a summary spending every candidate to one destination.
func (c *Context) Sweep(req pay.SweepRequest) (*pay.Summary, error) {
	if req.MinConf == 0 {
		req.MinConf = c.cfg.MinConfirmations
	}
	var sum *pay.Summary
	err := c.view(func(r storage.Reader) error {
		var err error
		sum, err = c.builder.Sweep(r, req)
		return err
	})
	return sum, err
}

// Sign signs a summary with the given expiry; 0 uses the summary's hint.
// It re-validates the summary against the current state.
func (c *Context) Sign(ctx context.Context, sum *pay.Summary, expiry uint32) (*signer.Signed, error) {
	if expiry == 0 {
		expiry = sum.Expiry
	}
	var signed *signer.Signed
	err := c.view(func(r storage.Reader) error {
		var err error
		signed, err = c.signer.Sign(ctx, r, sum, expiry)
		return err
	})
	return signed, err
}

// MarkPending flags the inputs of a summary as pending-spent.
func (c *Context) MarkPending(sum *pay.Summary) error {
	return c.update(func(rw storage.ReadWriter) error {
		return signer.MarkPending(rw, sum)
	})
}

// ClearPending reverses MarkPending.
func (c *Context) ClearPending(sum *pay.Summary) error {
	return c.update(func(rw storage.ReadWriter) error {
		return signer.ClearPending(rw, sum)
	})
}

// Send signs a summary, marks its inputs pending and broadcasts it. Marking
// re-checks the inputs under the mutation lock, so of two sends racing for
// the same input only one reaches the broadcaster. A rejected broadcast
// clears the marks this send set. The broadcast transaction is tracked as
// unconfirmed.
func (c *Context) Send(ctx context.Context, b Broadcaster, sum *pay.Summary, expiry uint32) (*signer.Signed, error) {
	signed, err := c.Sign(ctx, sum, expiry)
	if err != nil {
		return nil, err
	}
	if err := c.MarkPending(sum); err != nil {
		return nil, err
	}
	txid, err := b.Broadcast(ctx, signed.Raw)
	if err != nil {
		if cerr := c.ClearPending(sum); cerr != nil {
			c.logger.Error().Err(cerr).Msg("Failed to clear pending marks")
		}
		return nil, err
	}
	if txid != signed.TxID {
		c.logger.Warn().
			Str("txid", signed.TxID.String()).
			Str("reported", txid.String()).
			Msg("Broadcaster reported a different txid")
	}
	c.mu.Lock()
	_, err = c.tracker.Add(signed.Raw)
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Str("txid", signed.TxID.String()).Msg("Broadcast transaction not tracked")
	}
	c.logger.Info().
		Uint32("account", sum.Account).
		Str("txid", signed.TxID.String()).
		Uint64("fee", sum.Fee).
		Msg("Transaction sent")
	return signed, nil
}

// SaveContacts writes the dirty contacts of an account on chain in memos
// sent to itself, then clears their dirty flags.
func (c *Context) SaveContacts(ctx context.Context, b Broadcaster, account uint32) (*signer.Signed, error) {
	var sum *pay.Summary
	err := c.view(func(r storage.Reader) error {
		var err error
		sum, err = c.builder.SaveContacts(r, account, c.cfg.MinConfirmations)
		return err
	})
	if err != nil {
		return nil, err
	}
	signed, err := c.Send(ctx, b, sum, 0)
	if err != nil {
		return nil, fmt.Errorf("save contacts: %w", err)
	}
	if err := c.update(func(rw storage.ReadWriter) error {
		return store.MarkContactsSaved(rw, account)
	}); err != nil {
		return nil, err
	}
	return signed, nil
}
