package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/text/unicode/norm"

	"crowdsale/core"
	"crowdsale/native/sale"
	"crowdsale/native/token"
)

// PaymentValueDecimals is the precision of MinBuyValue in the manifest.
// Payment values are compared in base units of an 18-decimal asset.
const PaymentValueDecimals = 18

// Duration wraps time.Duration so that TOML strings such as "720h" decode.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Asset declares an asset deployed together with the sale. Balances are
// decimal amounts in whole units keyed by hex address.
type Asset struct {
	Address  string            `toml:"Address"`
	Symbol   string            `toml:"Symbol"`
	Name     string            `toml:"Name"`
	Decimals uint8             `toml:"Decimals"`
	Balances map[string]string `toml:"Balances"`
}

// Allowance pre-approves a spender at deployment.
type Allowance struct {
	Asset   string `toml:"Asset"`
	Owner   string `toml:"Owner"`
	Spender string `toml:"Spender"`
	Amount  string `toml:"Amount"`
}

// Sale holds the sale parameters. Token amounts are whole units of the sold
// asset, ExchangeRate is the number of tokens per whole payment unit.
type Sale struct {
	Token                    string    `toml:"Token"`
	Wallet                   string    `toml:"Wallet"`
	SaleStart                time.Time `toml:"SaleStart"`
	SaleEnd                  time.Time `toml:"SaleEnd"`
	WithdrawalStart          time.Time `toml:"WithdrawalStart"`
	WithdrawPeriodDuration   Duration  `toml:"WithdrawPeriodDuration"`
	WithdrawPeriodNumber     uint64    `toml:"WithdrawPeriodNumber"`
	MinBuyValue              string    `toml:"MinBuyValue"`
	MaxTokenAmountPerAddress string    `toml:"MaxTokenAmountPerAddress"`
	ExchangeRate             string    `toml:"ExchangeRate"`
	ReferralRewardPercentage uint64    `toml:"ReferralRewardPercentage"`
	AmountToSell             string    `toml:"AmountToSell"`
}

// Deployment is the manifest consumed by the sale daemon on first start.
type Deployment struct {
	Admin             string      `toml:"Admin"`
	Custody           string      `toml:"Custody"`
	PaymentCurrencies []string    `toml:"PaymentCurrencies"`
	Contracts         []string    `toml:"Contracts"`
	Sale              Sale        `toml:"Sale"`
	Assets            []Asset     `toml:"Assets"`
	Allowances        []Allowance `toml:"Allowances"`
}

// LoadDeployment decodes the manifest at path.
func LoadDeployment(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment: %w", err)
	}
	return ParseDeployment(string(data))
}

// ParseDeployment decodes a manifest and rejects unknown keys.
func ParseDeployment(data string) (*Deployment, error) {
	d := new(Deployment)
	meta, err := toml.Decode(data, d)
	if err != nil {
		return nil, fmt.Errorf("decode deployment: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("deployment: unknown key %s", undecoded[0].String())
	}
	return d, nil
}

// DeploySpec resolves symbols and decimal amounts into the runtime form.
func (d *Deployment) DeploySpec() (core.DeploySpec, error) {
	var spec core.DeploySpec
	var err error
	if spec.Admin, err = parseAddress("Admin", d.Admin); err != nil {
		return spec, err
	}
	if spec.Custody, err = parseAddress("Custody", d.Custody); err != nil {
		return spec, err
	}

	assets := make(map[string]Asset, len(d.Assets))
	addresses := make(map[string]common.Address, len(d.Assets))
	for _, asset := range d.Assets {
		symbol := normalizeSymbol(asset.Symbol)
		if symbol == "" {
			return spec, fmt.Errorf("deployment: asset without symbol")
		}
		if _, dup := assets[symbol]; dup {
			return spec, fmt.Errorf("deployment: duplicate asset %s", symbol)
		}
		addr, err := parseAddress("Assets."+symbol+".Address", asset.Address)
		if err != nil {
			return spec, err
		}
		assets[symbol] = asset
		addresses[symbol] = addr
		balances := make(map[common.Address]*big.Int, len(asset.Balances))
		for holder, amount := range asset.Balances {
			holderAddr, err := parseAddress("Assets."+symbol+".Balances", holder)
			if err != nil {
				return spec, err
			}
			if balances[holderAddr], err = parseUnits("Assets."+symbol+".Balances", amount, asset.Decimals); err != nil {
				return spec, err
			}
		}
		spec.Assets = append(spec.Assets, core.AssetSpec{
			Address:  addr,
			Metadata: token.Metadata{Symbol: symbol, Name: strings.TrimSpace(asset.Name), Decimals: asset.Decimals},
			Balances: balances,
		})
	}
	resolve := func(field, ref string) (common.Address, Asset, error) {
		if common.IsHexAddress(strings.TrimSpace(ref)) {
			addr := common.HexToAddress(strings.TrimSpace(ref))
			for symbol, a := range addresses {
				if a == addr {
					return addr, assets[symbol], nil
				}
			}
			return addr, Asset{Decimals: PaymentValueDecimals}, nil
		}
		symbol := normalizeSymbol(ref)
		addr, ok := addresses[symbol]
		if !ok {
			return common.Address{}, Asset{}, fmt.Errorf("deployment: %s references unknown asset %q", field, ref)
		}
		return addr, assets[symbol], nil
	}

	for _, ref := range d.PaymentCurrencies {
		addr, _, err := resolve("PaymentCurrencies", ref)
		if err != nil {
			return spec, err
		}
		spec.PaymentCurrencies = append(spec.PaymentCurrencies, addr)
	}
	for _, raw := range d.Contracts {
		addr, err := parseAddress("Contracts", raw)
		if err != nil {
			return spec, err
		}
		spec.Contracts = append(spec.Contracts, addr)
	}
	for _, allowance := range d.Allowances {
		assetAddr, asset, err := resolve("Allowances.Asset", allowance.Asset)
		if err != nil {
			return spec, err
		}
		owner, err := parseAddress("Allowances.Owner", allowance.Owner)
		if err != nil {
			return spec, err
		}
		spender, err := parseAddress("Allowances.Spender", allowance.Spender)
		if err != nil {
			return spec, err
		}
		amount, err := parseUnits("Allowances.Amount", allowance.Amount, asset.Decimals)
		if err != nil {
			return spec, err
		}
		spec.Allowances = append(spec.Allowances, core.Allowance{Asset: assetAddr, Owner: owner, Spender: spender, Amount: amount})
	}

	cfg, err := d.Sale.config(resolve)
	if err != nil {
		return spec, err
	}
	spec.Sale = cfg
	if err := ValidateDeployment(spec); err != nil {
		return spec, err
	}
	return spec, nil
}

func (s Sale) config(resolve func(field, ref string) (common.Address, Asset, error)) (*sale.Config, error) {
	tokenAddr, sold, err := resolve("Sale.Token", s.Token)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("Sale.Wallet", s.Wallet)
	if err != nil {
		return nil, err
	}
	cfg := &sale.Config{
		Token:                    tokenAddr,
		Wallet:                   wallet,
		SaleStart:                s.SaleStart.Unix(),
		SaleEnd:                  s.SaleEnd.Unix(),
		WithdrawalStart:          s.WithdrawalStart.Unix(),
		WithdrawPeriodDuration:   int64(s.WithdrawPeriodDuration.Duration / time.Second),
		WithdrawPeriodNumber:     s.WithdrawPeriodNumber,
		ReferralRewardPercentage: s.ReferralRewardPercentage,
	}
	if cfg.MinBuyValue, err = parseUnits("Sale.MinBuyValue", s.MinBuyValue, PaymentValueDecimals); err != nil {
		return nil, err
	}
	if cfg.MaxTokenAmountPerAddress, err = parseUnits("Sale.MaxTokenAmountPerAddress", s.MaxTokenAmountPerAddress, sold.Decimals); err != nil {
		return nil, err
	}
	if cfg.AmountToSell, err = parseUnits("Sale.AmountToSell", s.AmountToSell, sold.Decimals); err != nil {
		return nil, err
	}
	// The rate is applied to 18-decimal payment values and yields base units
	// of the sold asset.
	rate, err := token.ParseUnits(strings.TrimSpace(s.ExchangeRate), 18)
	if err != nil {
		return nil, fmt.Errorf("deployment: Sale.ExchangeRate: %w", err)
	}
	cfg.ExchangeRate = rescale(rate, sold.Decimals)
	return cfg, nil
}

func rescale(rate *big.Int, soldDecimals uint8) *big.Int {
	switch {
	case soldDecimals == PaymentValueDecimals:
		return rate
	case soldDecimals > PaymentValueDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(soldDecimals-PaymentValueDecimals)), nil)
		return new(big.Int).Mul(rate, factor)
	default:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(PaymentValueDecimals-soldDecimals)), nil)
		return new(big.Int).Quo(rate, factor)
	}
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("deployment: %s: malformed address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseUnits(field, raw string, decimals uint8) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	v, err := token.ParseUnits(raw, decimals)
	if err != nil {
		return nil, fmt.Errorf("deployment: %s: %w", field, err)
	}
	return v, nil
}

// normalizeSymbol folds compatibility forms (fullwidth letters, ligatures)
// so that visually equal symbols resolve to the same asset.
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(symbol)))
}
