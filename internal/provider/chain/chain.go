// Package chain verifies on-chain deposits through public explorers.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the explorer does not know the transaction.
var ErrNotFound = errors.New("transaction not found")

// Verification is what an explorer reports for a deposit.
type Verification struct {
	Found         bool
	Succeeded     bool    // false when the chain reverted or rejected it
	Amount        float64 // asset units paid to the destination
	Confirmations int
}

// Confirmed reports whether the deposit has at least required confirmations.
func (v Verification) Confirmed(required int) bool {
	return v.Found && v.Succeeded && v.Confirmations >= required
}

// Verifier checks that txHash paid at least expectedAmount to address.
type Verifier interface {
	Verify(ctx context.Context, txHash string, expectedAmount float64, address string) (Verification, error)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("explorer HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Bitcoin verifies BTC deposits against a blockchain.info style API.
type Bitcoin struct {
	baseURL string
	http    *http.Client
}

// NewBitcoin creates a BTC verifier.
func NewBitcoin(baseURL string, timeout time.Duration) *Bitcoin {
	return &Bitcoin{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// Verify implements Verifier.
func (b *Bitcoin) Verify(ctx context.Context, txHash string, expectedAmount float64, address string) (Verification, error) {
	var tx struct {
		Confirmations int `json:"confirmations"`
		Out           []struct {
			Addr  string `json:"addr"`
			Value int64  `json:"value"`
		} `json:"out"`
	}
	err := getJSON(ctx, b.http, b.baseURL+"/rawtx/"+txHash, &tx)
	if errors.Is(err, ErrNotFound) {
		return Verification{}, nil
	}
	if err != nil {
		return Verification{}, err
	}

	var sats int64
	for _, out := range tx.Out {
		if out.Addr == address {
			sats += out.Value
		}
	}
	return Verification{
		Found:         true,
		Succeeded:     sats > 0,
		Amount:        float64(sats) / 1e8,
		Confirmations: tx.Confirmations,
	}, nil
}

// EVM verifies native ETH deposits over Ethereum JSON-RPC.
type EVM struct {
	rpcURL string
	http   *http.Client
}

// NewEVM creates an ETH verifier.
func NewEVM(rpcURL string, timeout time.Duration) *EVM {
	return &EVM{rpcURL: rpcURL, http: &http.Client{Timeout: timeout}}
}

// Verify implements Verifier.
func (e *EVM) Verify(ctx context.Context, txHash string, expectedAmount float64, address string) (Verification, error) {
	var tx *struct {
		To    string `json:"to"`
		Value string `json:"value"`
	}
	if err := e.call(ctx, "eth_getTransactionByHash", []any{txHash}, &tx); err != nil {
		return Verification{}, err
	}
	if tx == nil {
		return Verification{}, nil
	}

	var receipt *struct {
		Status      string `json:"status"`
		BlockNumber string `json:"blockNumber"`
	}
	if err := e.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &receipt); err != nil {
		return Verification{}, err
	}
	v := Verification{Found: true}
	if receipt == nil {
		return v, nil // still in the mempool
	}

	var head string
	if err := e.call(ctx, "eth_blockNumber", []any{}, &head); err != nil {
		return Verification{}, err
	}

	v.Succeeded = receipt.Status == "0x1" && strings.EqualFold(tx.To, address)
	v.Amount = weiToEther(tx.Value)
	mined, headN := parseHex(receipt.BlockNumber), parseHex(head)
	if headN >= mined {
		v.Confirmations = int(headN-mined) + 1
	}
	return v, nil
}

func (e *EVM) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpc struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return err
	}
	if rpc.Error != nil {
		return fmt.Errorf("%s: %s", method, rpc.Error.Message)
	}
	return json.Unmarshal(rpc.Result, out)
}

// Tron verifies TRC20 token deposits (USDT) through TronGrid events.
type Tron struct {
	baseURL  string
	decimals int
	http     *http.Client
	// confirmations reported for a solidified transfer
	solid int
}

// NewTron creates a TRC20 verifier. TronGrid only reports solidified events
// when asked for confirmed data, so a found transfer counts as solid.
func NewTron(baseURL string, tokenDecimals, solidConfirmations int, timeout time.Duration) *Tron {
	return &Tron{
		baseURL:  strings.TrimRight(baseURL, "/"),
		decimals: tokenDecimals,
		solid:    solidConfirmations,
		http:     &http.Client{Timeout: timeout},
	}
}

// Verify implements Verifier.
func (t *Tron) Verify(ctx context.Context, txHash string, expectedAmount float64, address string) (Verification, error) {
	var events struct {
		Data []struct {
			EventName string            `json:"event_name"`
			Result    map[string]string `json:"result"`
		} `json:"data"`
	}
	err := getJSON(ctx, t.http, t.baseURL+"/v1/transactions/"+txHash+"/events?only_confirmed=true", &events)
	if errors.Is(err, ErrNotFound) {
		return Verification{}, nil
	}
	if err != nil {
		return Verification{}, err
	}
	if len(events.Data) == 0 {
		return Verification{}, nil
	}

	v := Verification{Found: true, Confirmations: t.solid}
	for _, ev := range events.Data {
		if ev.EventName != "Transfer" || !strings.EqualFold(ev.Result["to"], address) {
			continue
		}
		v.Succeeded = true
		v.Amount += scaleDown(ev.Result["value"], t.decimals)
	}
	return v, nil
}
