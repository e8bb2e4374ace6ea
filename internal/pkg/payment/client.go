package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

// HTTPGateway is the JSON client for the settlement service's
// /set_transaction and /trigger_payment endpoints.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPGateway(baseURL, apiKey string) HTTPGateway {
	return HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type registerRequest struct {
	BuyerAddress string  `json:"buyer_address"`
	ItemPriceZar float64 `json:"item_price_zar"`
}

type settleRequest struct {
	BuyerPrivateKey string  `json:"buyer_private_key"`
	ItemPriceZar    float64 `json:"item_price_zar"`
}

type response struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	EthAmount float64 `json:"eth_amount"`
	TxHash    string  `json:"tx_hash"`
}

func (g HTTPGateway) RegisterTransaction(ctx context.Context, buyerAddress string, price float64) (Registration, error) {
	r, err := g.post(ctx, "/set_transaction", registerRequest{
		BuyerAddress: buyerAddress,
		ItemPriceZar: price,
	})
	if err != nil {
		return Registration{}, fmt.Errorf("registering transaction: %w", err)
	}
	return Registration{
		RequiredAmount: r.EthAmount,
		Message:        r.Message,
	}, nil
}

func (g HTTPGateway) Settle(ctx context.Context, buyerCredential string, price float64) (Settlement, error) {
	r, err := g.post(ctx, "/trigger_payment", settleRequest{
		BuyerPrivateKey: buyerCredential,
		ItemPriceZar:    price,
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("triggering payment: %w", err)
	}
	return Settlement{
		TxReference: r.TxHash,
		Amount:      r.EthAmount,
		Message:     r.Message,
	}, nil
}

func (g HTTPGateway) post(ctx context.Context, path string, payload interface{}) (response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return response{}, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return response{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("posting to payment service: %w", err)
	}
	defer resp.Body.Close()

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return response{}, fmt.Errorf("decoding payment response: %w", err)
	}

	if !r.Success {
		if r.Message == "" {
			r.Message = fmt.Sprintf("payment service returned status %d", resp.StatusCode)
		}
		return response{}, fmt.Errorf("payment service rejected request: %s", r.Message)
	}

	return r, nil
}
