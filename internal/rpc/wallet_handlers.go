package rpc

import (
	"context"
	"errors"

	"github.com/Klingon-tech/cryptoken/internal/engine"
	"github.com/Klingon-tech/cryptoken/internal/walletstore"
)

// ── Wallet endpoints ────────────────────────────────────────────────────

func (s *Server) handleWalletRegister(ctx context.Context, req *Request) (interface{}, *Error) {
	var params UserParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.UserID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "user_id is required"}
	}

	reg, err := s.engine.Register(ctx, params.UserID)
	if err != nil {
		return nil, s.engineError("register", err)
	}
	return reg, nil
}

func (s *Server) handleWalletFetch(ctx context.Context, req *Request) (interface{}, *Error) {
	var params UserParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.UserID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "user_id is required"}
	}

	w, err := s.engine.FetchWallet(ctx, params.UserID)
	if err != nil {
		return nil, s.engineError("fetch wallet", err)
	}
	return &WalletResult{
		UserID:     w.UserID,
		PublicKey:  w.PublicKey,
		Registered: w.Registered(),
		CreatedAt:  w.CreatedAt,
	}, nil
}

func (s *Server) handleWalletValidatePrivateKey(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ValidateKeyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	w, rpcErr := s.authorizedWallet(ctx, params.UserID, params.PrivateKey)
	if rpcErr != nil {
		return nil, rpcErr
	}

	ok, err := s.engine.ValidatePrivateKey(ctx, params.PrivateKey, w.PrivateKeyHash)
	if err != nil {
		return nil, s.engineError("validate private key", err)
	}
	return &ValidateKeyResult{Valid: ok}, nil
}

func (s *Server) handleWalletDeposit(ctx context.Context, req *Request) (interface{}, *Error) {
	var params WalletAmountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	w, rpcErr := s.authorizedWallet(ctx, params.UserID, params.PrivateKey, params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res, err := s.engine.Deposit(ctx, w, params.Amount, params.PrivateKey)
	if err != nil {
		return nil, s.engineError("deposit", err)
	}
	return res, nil
}

func (s *Server) handleWalletWithdraw(ctx context.Context, req *Request) (interface{}, *Error) {
	var params WalletAmountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	w, rpcErr := s.authorizedWallet(ctx, params.UserID, params.PrivateKey, params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res, err := s.engine.Withdraw(ctx, w, params.Amount, params.PrivateKey)
	if err != nil {
		return nil, s.engineError("withdraw", err)
	}
	return res, nil
}

func (s *Server) handleWalletTransferToken(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TransferTokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.ToKey == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "to_key is required"}
	}
	w, rpcErr := s.authorizedWallet(ctx, params.UserID, params.PrivateKey, params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res, err := s.engine.TransferToken(ctx, w, params.ToKey, params.Amount, params.PrivateKey)
	if err != nil {
		return nil, s.engineError("transfer token", err)
	}
	return res, nil
}

// handleWalletSellToken returns tokens to the token issuer. With myr set,
// the wallet is paid that much fiat in a second leg.
func (s *Server) handleWalletSellToken(ctx context.Context, req *Request) (interface{}, *Error) {
	var params WalletAmountParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	if params.MYR == nil {
		w, rpcErr := s.authorizedWallet(ctx, params.UserID, params.PrivateKey, params.Amount)
		if rpcErr != nil {
			return nil, rpcErr
		}
		res, err := s.engine.SellToken(ctx, w, params.Amount, params.PrivateKey)
		if err != nil {
			return nil, s.engineError("sell token", err)
		}
		return res, nil
	}

	w, rpcErr := s.authorizedWallet(ctx, params.UserID, params.PrivateKey, params.Amount, *params.MYR)
	if rpcErr != nil {
		return nil, rpcErr
	}
	trade, err := s.engine.SellTokenForFiat(ctx, w, params.Amount, params.PrivateKey, *params.MYR)
	if err != nil {
		return nil, s.engineError("sell token", err)
	}
	return trade, nil
}

func (s *Server) handleWalletBuyToken(ctx context.Context, req *Request) (interface{}, *Error) {
	var params BuyTokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	w, rpcErr := s.authorizedWallet(ctx, params.UserID, params.PrivateKey, params.Amount, params.MYR)
	if rpcErr != nil {
		return nil, rpcErr
	}

	trade, err := s.engine.BuyToken(ctx, w, params.Amount, params.PrivateKey, params.MYR)
	if err != nil {
		return nil, s.engineError("buy token", err)
	}
	return trade, nil
}

// authorizedWallet runs the request checks that precede every wallet
// operation: user id and secret present, amounts positive, wallet present
// and registered. The secret itself is checked by the engine.
func (s *Server) authorizedWallet(ctx context.Context, userID, secretKey string, amounts ...uint64) (*walletstore.Wallet, *Error) {
	if userID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "user_id is required"}
	}
	for _, a := range amounts {
		if a == 0 {
			return nil, &Error{Code: CodeInvalidParams, Message: engine.ErrInvalidAmount.Error()}
		}
	}
	if secretKey == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: engine.ErrMissingSecret.Error()}
	}
	return s.fetchRegistered(ctx, userID)
}

// fetchRegistered loads a wallet and requires it to hold a keypair.
func (s *Server) fetchRegistered(ctx context.Context, userID string) (*walletstore.Wallet, *Error) {
	w, err := s.engine.FetchWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, walletstore.ErrNotFound) {
			return nil, &Error{Code: CodeNotFound, Message: "wallet not found"}
		}
		return nil, s.engineError("fetch wallet", err)
	}
	if !w.Registered() {
		return nil, &Error{Code: CodeInvalidParams, Message: engine.ErrNotRegistered.Error()}
	}
	return w, nil
}
