// Package rpc implements explorer.Explorer over a JSON-RPC endpoint: a
// thin HTTP POST wrapper rather than a full go-ethereum ethclient, since
// this package only ever needs a handful of read-only calls.
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/onchainlabs/proxion/explorer"
	"github.com/onchainlabs/proxion/vmerrors"
)

// Client is a JSON-RPC explorer.Explorer implementation.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewClient returns a Client posting requests to endpoint using http.DefaultClient.
func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint, HTTPClient: http.DefaultClient}
}

var _ explorer.Explorer = (*Client)(nil)

func normalizeBlock(blk string) string {
	if blk == "" || blk == explorer.BlockTagLatest {
		return "latest"
	}
	if strings.HasPrefix(blk, "0x") {
		return blk
	}
	n, err := strconv.ParseUint(blk, 10, 64)
	if err != nil {
		return "latest"
	}
	return hexutil.EncodeUint64(n)
}

func (c *Client) GetCode(addr common.Address, blk string) ([]byte, error) {
	var result string
	if err := c.call(&result, "eth_getCode", addr.Hex(), normalizeBlock(blk)); err != nil {
		return nil, err
	}
	if result == "" || result == "0x" {
		return nil, nil
	}
	return hexutil.Decode(result)
}

func (c *Client) GetStorageAt(addr common.Address, slot *uint256.Int, blk string) (*uint256.Int, error) {
	var result string
	slotHash := common.Hash(slot.Bytes32())
	if err := c.call(&result, "eth_getStorageAt", addr.Hex(), slotHash.Hex(), normalizeBlock(blk)); err != nil {
		return nil, err
	}
	if result == "" || result == "0x" {
		return uint256.NewInt(0), nil
	}
	v, ok := new(uint256.Int).SetString(result)
	if ok != nil {
		return nil, fmt.Errorf("invalid storage value %q: %w", result, ok)
	}
	return v, nil
}

func (c *Client) GetBalance(addr common.Address, blk string) (*uint256.Int, error) {
	var result string
	if err := c.call(&result, "eth_getBalance", addr.Hex(), normalizeBlock(blk)); err != nil {
		return nil, err
	}
	v, err := hexutil.DecodeBig(result)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", result, err)
	}
	bal, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("balance overflows 256 bits: %s", v)
	}
	return bal, nil
}

func (c *Client) BlockNumber() (uint64, error) {
	var result string
	if err := c.call(&result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(result)
}

func (c *Client) BlockByNumber(n uint64) (*explorer.BlockInfo, error) {
	var result struct {
		Hash       string `json:"hash"`
		Difficulty string `json:"difficulty"`
		GasLimit   string `json:"gasLimit"`
		Number     string `json:"number"`
	}
	if err := c.call(&result, "eth_getBlockByNumber", hexutil.EncodeUint64(n), false); err != nil {
		return nil, err
	}
	diff := new(uint256.Int)
	if result.Difficulty != "" {
		if v, err := hexutil.DecodeBig(result.Difficulty); err == nil {
			diff, _ = uint256.FromBig(v)
		}
	}
	gasLimit, _ := hexutil.DecodeUint64(result.GasLimit)
	return &explorer.BlockInfo{
		Hash:       common.HexToHash(result.Hash),
		Difficulty: diff,
		GasLimit:   gasLimit,
		Number:     n,
	}, nil
}

func (c *Client) GasPrice() (*uint256.Int, error) {
	var result string
	if err := c.call(&result, "eth_gasPrice"); err != nil {
		return nil, err
	}
	v, err := hexutil.DecodeBig(result)
	if err != nil {
		return nil, fmt.Errorf("invalid gas price %q: %w", result, err)
	}
	price, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("gas price overflows 256 bits: %s", v)
	}
	return price, nil
}

type request struct {
	ID      int           `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	ID      int             `json:"id"`
	JSONRpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Err     *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf(`rpc error %d: %s`, e.Code, e.Message)
}

func (c *Client) call(out interface{}, method string, params ...interface{}) error {
	httpClt := c.HTTPClient
	if httpClt == nil {
		httpClt = http.DefaultClient
	}

	payload := request{ID: 1, JSONRpc: "2.0", Method: method, Params: params}
	data, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", vmerrors.ErrExplorerUnavailable, err)
	}

	log.Debug("explorer rpc call", "method", method, "endpoint", c.Endpoint)

	resp, err := httpClt.Post(c.Endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", vmerrors.ErrExplorerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", vmerrors.ErrExplorerUnavailable, err)
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("%w: decode response: %v", vmerrors.ErrExplorerUnavailable, err)
	}
	if decoded.Err != nil {
		return fmt.Errorf("%w: %v", vmerrors.ErrExplorerUnavailable, decoded.Err)
	}

	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%w: decode result: %v", vmerrors.ErrExplorerUnavailable, err)
	}
	return nil
}
