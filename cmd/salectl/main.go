package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"crowdsale/cmd/internal/passphrase"
	deployconfig "crowdsale/config"
	"crowdsale/core"
	"crowdsale/core/state"
	"crowdsale/gateway/middleware"
	"crowdsale/storage"
)

const (
	tokenCommand    = "token"
	inspectCommand  = "inspect"
	validateCommand = "validate"

	defaultSecretEnv = "SALED_JWT_SECRET"
	defaultDataDir   = "./var/saled/state"
)

// secretSource abstracts passphrase.Source for tests.
type secretSource interface {
	Get() (string, error)
}

var newSecretSource = func(envVar string) secretSource {
	return passphrase.NewSource(envVar, "JWT signing secret")
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case tokenCommand:
		return runToken(args[1:], out)
	case inspectCommand:
		return runInspect(args[1:], out)
	case validateCommand:
		return runValidate(args[1:], out)
	default:
		return errUsage
	}
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	address := fs.String("address", "", "Caller address to embed as the token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	issuer := fs.String("issuer", "", "Issuer claim expected by the gateway")
	audience := fs.String("audience", "", "Audience claim expected by the gateway")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the HMAC signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*address) == "" {
		return errors.New("-address is required")
	}
	caller, err := core.ParseAddress(*address)
	if err != nil {
		return err
	}
	if *ttl <= 0 {
		return errors.New("-ttl must be positive")
	}
	secret, err := newSecretSource(*secretEnv).Get()
	if err != nil {
		return err
	}
	token, err := middleware.IssueToken(secret, *issuer, *audience, caller, *ttl, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

type inspectReport struct {
	Admin     string          `json:"admin"`
	Custody   string          `json:"custody"`
	Token     string          `json:"token"`
	Settings  *settingsReport `json:"settings"`
	Purchaser *purchaserEntry `json:"purchaser,omitempty"`
}

type settingsReport struct {
	Wallet                   string `json:"wallet"`
	SaleStart                string `json:"saleStart"`
	SaleEnd                  string `json:"saleEnd"`
	WithdrawalStart          string `json:"withdrawalStart"`
	WithdrawPeriodDuration   int64  `json:"withdrawPeriodDuration"`
	WithdrawPeriodNumber     uint64 `json:"withdrawPeriodNumber"`
	MinBuyValue              string `json:"minBuyValue"`
	MaxTokenAmountPerAddress string `json:"maxTokenAmountPerAddress"`
	ExchangeRate             string `json:"exchangeRate"`
	ReferralRewardPercentage uint64 `json:"referralRewardPercentage"`
	AmountToSell             string `json:"amountToSell"`
	SoldAmount               string `json:"soldAmount"`
}

type purchaserEntry struct {
	Address      string `json:"address"`
	Claimable    string `json:"claimable"`
	Withdrawn    string `json:"withdrawn"`
	Withdrawable string `json:"withdrawable"`
}

func runInspect(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(inspectCommand, flag.ContinueOnError)
	dataDir := fs.String("data", defaultDataDir, "Path to the saled state directory or bolt file")
	driver := fs.String("driver", "leveldb", "State backend: leveldb or bolt")
	address := fs.String("address", "", "Optional purchaser address to report")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dataDir) == "" {
		return errors.New("-data is required")
	}
	db, err := storage.Open(*driver, *dataDir)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	manager := state.NewManager(db)
	defer manager.Close()
	return inspect(core.NewRuntime(manager), *address, out)
}

func inspect(rt *core.Runtime, address string, out io.Writer) error {
	if err := rt.Load(); err != nil {
		return err
	}
	deployment, err := rt.Deployment()
	if err != nil {
		return err
	}
	settings, err := rt.Settings()
	if err != nil {
		return err
	}
	report := inspectReport{
		Admin:   deployment.Admin.Hex(),
		Custody: deployment.Custody.Hex(),
		Token:   deployment.Token.Hex(),
		Settings: &settingsReport{
			Wallet:                   settings.Wallet.Hex(),
			SaleStart:                formatUnix(settings.SaleStart),
			SaleEnd:                  formatUnix(settings.SaleEnd),
			WithdrawalStart:          formatUnix(settings.WithdrawalStart),
			WithdrawPeriodDuration:   settings.WithdrawPeriodDuration,
			WithdrawPeriodNumber:     settings.WithdrawPeriodNumber,
			MinBuyValue:              amountString(settings.MinBuyValue),
			MaxTokenAmountPerAddress: amountString(settings.MaxTokenAmountPerAddress),
			ExchangeRate:             amountString(settings.ExchangeRate),
			ReferralRewardPercentage: settings.ReferralRewardPercentage,
			AmountToSell:             amountString(settings.AmountToSell),
			SoldAmount:               amountString(settings.SoldAmount),
		},
	}
	if strings.TrimSpace(address) != "" {
		account, err := core.ParseAddress(address)
		if err != nil {
			return err
		}
		p, err := rt.Purchaser(account)
		if err != nil {
			return err
		}
		report.Purchaser = &purchaserEntry{
			Address:      account.Hex(),
			Claimable:    amountString(p.Claimable),
			Withdrawn:    amountString(p.Withdrawn),
			Withdrawable: amountString(p.Withdrawable),
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(validateCommand, flag.ContinueOnError)
	manifest := fs.String("manifest", "./deployment.toml", "Path to the deployment manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := deployconfig.LoadDeployment(*manifest)
	if err != nil {
		return err
	}
	spec, err := d.DeploySpec()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "manifest ok: token %s, %d payment currencies, %s tokens for sale\n",
		spec.Sale.Token.Hex(), len(spec.PaymentCurrencies), amountString(spec.Sale.AmountToSell))
	return err
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintf(os.Stderr, "  %s\tIssue a gateway bearer token for a caller address\n", tokenCommand)
	fmt.Fprintf(os.Stderr, "  %s\tPrint sale settings and an optional purchaser record from saled state\n", inspectCommand)
	fmt.Fprintf(os.Stderr, "  %s\tParse and validate a deployment manifest\n", validateCommand)
}
