package rpc

import (
	"testing"
)

// FuzzRPCRequestUnmarshal tests that arbitrary JSON does not panic
// when parsed as a JSON-RPC 2.0 request and its params decoded.
func FuzzRPCRequestUnmarshal(f *testing.F) {
	f.Add([]byte(`{"jsonrpc":"2.0","method":"balance_token","params":{"public_key":"abc"},"id":1}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"wallet_deposit","params":{"user_id":"u","private_key":"k","amount":18446744073709551615},"id":"test"}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"wallet_sellToken","params":{"amount":-1,"myr":1e400},"id":2}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"method":"","params":[]}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"token_launch","params":[1,2,3],"id":999}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		req, err := decodeRequest(data)
		if err != nil {
			return
		}
		var params WalletAmountParam
		_ = parseParams(req, &params)
		_ = req.Method
		_ = req.ID
	})
}
