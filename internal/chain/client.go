// Package chain предоставляет клиент JSON-RPC узла Solana для проверки платежей.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const lamportsPerSOL = 1_000_000_000

// DefaultTokenDecimals — разрядность mint USDT. Обычная инструкция
// transfer не несёт decimals, сумма в ней выражена в базовых единицах.
const DefaultTokenDecimals = 6

// ErrTransactionNotFound возвращается, пока узел не знает транзакцию с такой подписью.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrTransactionFailed возвращается, если транзакция завершилась ошибкой в сети.
	ErrTransactionFailed = errors.New("transaction failed on chain")
	// ErrTransferMismatch возвращается, если ни один перевод в транзакции не совпал с заявкой.
	ErrTransferMismatch = errors.New("transfer does not match claim")
)

// Client инкапсулирует обращения к RPC-узлу Solana.
type Client struct {
	rpcURL        string
	httpClient    *http.Client
	tokenDecimals int
}

// NewClient создаёт клиент RPC-узла по указанному адресу.
// Временные сбои узла ретраятся на уровне HTTP-клиента.
// tokenDecimals задаёт разрядность принимаемого токена для пересчёта
// сумм обычных transfer-инструкций; неположительное значение заменяется
// на DefaultTokenDecimals.
func NewClient(rpcURL string, tokenDecimals int) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	rc.HTTPClient.Timeout = 10 * time.Second

	if tokenDecimals <= 0 {
		tokenDecimals = DefaultTokenDecimals
	}

	return &Client{
		rpcURL:        strings.TrimRight(rpcURL, "/"),
		httpClient:    rc.StandardClient(),
		tokenDecimals: tokenDecimals,
	}
}

// Transfer описывает один разобранный перевод средств внутри транзакции.
// Token истинен для переводов SPL-токенов; Mint при этом может быть пуст,
// так как обычная transfer-инструкция mint не указывает. Amount выражен
// в единицах валюты (SOL либо единицы токена), не в базовых единицах.
type Transfer struct {
	Source      string
	Destination string
	Mint        string
	Token       bool
	Amount      float64
	Authority   string
}

// Transaction — подтверждённая транзакция с извлечёнными переводами.
type Transaction struct {
	Slot      uint64
	Transfers []Transfer
}

// VerifyClaim описывает заявленный клиентом перевод, подлежащий проверке.
type VerifyClaim struct {
	Signature   string
	Sender      string
	Destination string
	Mint        string
	Amount      float64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type parsedInstruction struct {
	Program string `json:"program"`
	Parsed  *struct {
		Type string          `json:"type"`
		Info json.RawMessage `json:"info"`
	} `json:"parsed"`
}

type getTransactionResult struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Err any `json:"err"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			Instructions []parsedInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type getTransactionResponse struct {
	Result *getTransactionResult `json:"result"`
	Error  *rpcError             `json:"error"`
}

type systemTransferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    uint64 `json:"lamports"`
}

type tokenTransferCheckedInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Authority   string `json:"authority"`
	Mint        string `json:"mint"`
	TokenAmount struct {
		UIAmount float64 `json:"uiAmount"`
	} `json:"tokenAmount"`
}

type tokenTransferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Authority   string `json:"authority"`
	Amount      string `json:"amount"`
}

// GetTransaction запрашивает у узла финализированную транзакцию по подписи
// и извлекает из неё переводы SOL и SPL-токенов.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	if c == nil || c.rpcURL == "" {
		return nil, fmt.Errorf("chain client not configured")
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []any{
			signature,
			map[string]any{
				"encoding":                       "jsonParsed",
				"commitment":                     "finalized",
				"maxSupportedTransactionVersion": 0,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var rpcResp getTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	// Узел отвечает result: null, пока транзакция не финализирована
	// либо неизвестна.
	if rpcResp.Result == nil {
		return nil, ErrTransactionNotFound
	}

	if rpcResp.Result.Meta != nil && rpcResp.Result.Meta.Err != nil {
		return nil, ErrTransactionFailed
	}

	tx := &Transaction{Slot: rpcResp.Result.Slot}

	for _, ins := range rpcResp.Result.Transaction.Message.Instructions {
		if ins.Parsed == nil {
			continue
		}

		switch {
		case ins.Program == "system" && ins.Parsed.Type == "transfer":
			var info systemTransferInfo
			if err := json.Unmarshal(ins.Parsed.Info, &info); err != nil {
				continue
			}
			tx.Transfers = append(tx.Transfers, Transfer{
				Source:      info.Source,
				Destination: info.Destination,
				Amount:      float64(info.Lamports) / lamportsPerSOL,
			})

		case ins.Program == "spl-token" && ins.Parsed.Type == "transferChecked":
			var info tokenTransferCheckedInfo
			if err := json.Unmarshal(ins.Parsed.Info, &info); err != nil {
				continue
			}
			tx.Transfers = append(tx.Transfers, Transfer{
				Source:      info.Source,
				Destination: info.Destination,
				Mint:        info.Mint,
				Token:       true,
				Amount:      info.TokenAmount.UIAmount,
				Authority:   info.Authority,
			})

		case ins.Program == "spl-token" && ins.Parsed.Type == "transfer":
			var info tokenTransferInfo
			if err := json.Unmarshal(ins.Parsed.Info, &info); err != nil {
				continue
			}
			raw, err := strconv.ParseUint(info.Amount, 10, 64)
			if err != nil {
				continue
			}
			tx.Transfers = append(tx.Transfers, Transfer{
				Source:      info.Source,
				Destination: info.Destination,
				Token:       true,
				Amount:      float64(raw) / math.Pow10(c.tokenDecimals),
				Authority:   info.Authority,
			})
		}
	}

	return tx, nil
}

// VerifyTransfer загружает транзакцию и сверяет её с заявкой: отправитель,
// получатель, mint и сумма (не меньше заявленной). Финансовый факт
// принимается только после этой проверки, слову клиента сервис не верит.
func (c *Client) VerifyTransfer(ctx context.Context, claim VerifyClaim) error {
	tx, err := c.GetTransaction(ctx, claim.Signature)
	if err != nil {
		return err
	}

	const epsilon = 1e-9

	for _, tr := range tx.Transfers {
		if claim.Mint == "" {
			// SOL-заявка совпадает только с переводом нативного SOL.
			if tr.Token {
				continue
			}
		} else {
			// Обычная transfer-инструкция mint не несёт, принадлежность
			// подтверждается адресом токен-аккаунта казначейства.
			if !tr.Token {
				continue
			}
			if tr.Mint != "" && tr.Mint != claim.Mint {
				continue
			}
		}

		// Для SPL-переводов кошелёк плательщика — это authority,
		// source указывает на его токен-аккаунт.
		sender := tr.Source
		if tr.Authority != "" {
			sender = tr.Authority
		}

		if sender != claim.Sender || tr.Destination != claim.Destination {
			continue
		}

		if tr.Amount+epsilon >= claim.Amount {
			return nil
		}
	}

	return ErrTransferMismatch
}
