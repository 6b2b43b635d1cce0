package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ridehail/internal/domain"
)

var coinIDs = map[domain.CryptoAsset]string{
	domain.AssetBTC:  "bitcoin",
	domain.AssetETH:  "ethereum",
	domain.AssetUSDT: "tether",
}

// PriceFeed quotes crypto assets in a fiat currency via a CoinGecko style API.
type PriceFeed struct {
	baseURL string
	http    *http.Client
}

// NewPriceFeed creates a PriceFeed.
func NewPriceFeed(baseURL string, timeout time.Duration) *PriceFeed {
	return &PriceFeed{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// Price returns the value of one unit of asset in currency.
func (p *PriceFeed) Price(ctx context.Context, asset domain.CryptoAsset, currency string) (float64, error) {
	id, ok := coinIDs[asset]
	if !ok {
		return 0, fmt.Errorf("unsupported asset %s", asset)
	}
	vs := strings.ToLower(currency)

	var out map[string]map[string]float64
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", p.baseURL, id, vs)
	if err := getJSON(ctx, p.http, url, &out); err != nil {
		return 0, err
	}
	price := out[id][vs]
	if price <= 0 {
		return 0, fmt.Errorf("no %s price for %s", vs, asset)
	}
	return price, nil
}

// Convert returns how many units of asset are worth fiat at price, rounded
// to 8 places.
func Convert(fiat, price float64) float64 {
	if price <= 0 {
		return 0
	}
	f, _ := decimal.NewFromFloat(fiat).Div(decimal.NewFromFloat(price)).Round(8).Float64()
	return f
}

func parseHex(s string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	return n
}

func weiToEther(hexWei string) float64 {
	wei, ok := new(big.Int).SetString(strings.TrimPrefix(hexWei, "0x"), 16)
	if !ok {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, -18).Float64()
	return f
}

func scaleDown(raw string, decimals int) float64 {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	f, _ := d.Shift(int32(-decimals)).Float64()
	return f
}
