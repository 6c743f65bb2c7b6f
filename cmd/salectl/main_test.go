package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	deployconfig "crowdsale/config"
	"crowdsale/core"
	"crowdsale/core/state"
	"crowdsale/storage"
)

const manifest = `
Admin = "0x00000000000000000000000000000000000000a1"
Custody = "0x00000000000000000000000000000000000000c1"
PaymentCurrencies = ["USDX"]

[Sale]
Token = "SALE"
Wallet = "0x00000000000000000000000000000000000000b1"
SaleStart = 2099-01-01T00:00:00Z
SaleEnd = 2099-02-01T00:00:00Z
WithdrawalStart = 2099-03-01T00:00:00Z
WithdrawPeriodDuration = "720h"
WithdrawPeriodNumber = 4
MinBuyValue = "1"
MaxTokenAmountPerAddress = "1000"
ExchangeRate = "2"
ReferralRewardPercentage = 5
AmountToSell = "5000"

[[Assets]]
Address = "0x0000000000000000000000000000000000000101"
Symbol = "SALE"
Name = "Sale Token"
Decimals = 6
[Assets.Balances]
"0x00000000000000000000000000000000000000c1" = "5000"

[[Assets]]
Address = "0x0000000000000000000000000000000000000102"
Symbol = "USDX"
Name = "Dollar"
Decimals = 18
`

type staticSecret struct {
	value string
	err   error
}

func (s staticSecret) Get() (string, error) { return s.value, s.err }

func withSecret(t *testing.T, src secretSource) {
	t.Helper()
	prev := newSecretSource
	newSecretSource = func(string) secretSource { return src }
	t.Cleanup(func() { newSecretSource = prev })
}

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.toml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))
	return path
}

func TestTokenCommandSignsCaller(t *testing.T) {
	withSecret(t, staticSecret{value: "top-secret"})
	var out bytes.Buffer
	err := run([]string{"token", "-address", "0x00000000000000000000000000000000000000e1", "-issuer", "saled", "-audience", "sale-api"}, &out)
	require.NoError(t, err)

	raw := strings.TrimSpace(out.String())
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("top-secret"), nil
	}, jwt.WithIssuer("saled"), jwt.WithAudience("sale-api"))
	require.NoError(t, err)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	require.True(t, strings.EqualFold(sub, "0x00000000000000000000000000000000000000e1"))
}

func TestTokenCommandErrors(t *testing.T) {
	withSecret(t, staticSecret{err: errors.New("no secret")})
	var out bytes.Buffer
	require.Error(t, run([]string{"token"}, &out))
	require.Error(t, run([]string{"token", "-address", "nope"}, &out))
	require.Error(t, run([]string{"token", "-address", "0x00000000000000000000000000000000000000e1", "-ttl", "0s"}, &out))
	require.ErrorContains(t, run([]string{"token", "-address", "0x00000000000000000000000000000000000000e1"}, &out), "no secret")
}

func TestUnknownCommand(t *testing.T) {
	require.ErrorIs(t, run(nil, &bytes.Buffer{}), errUsage)
	require.ErrorIs(t, run([]string{"bogus"}, &bytes.Buffer{}), errUsage)
}

func TestValidateCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"validate", "-manifest", writeManifest(t)}, &out))
	require.Contains(t, out.String(), "manifest ok")
	require.Contains(t, out.String(), "5000000000")
}

func TestInspectCommandReadsState(t *testing.T) {
	d, err := deployconfig.LoadDeployment(writeManifest(t))
	require.NoError(t, err)
	spec, err := d.DeploySpec()
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	manager := state.NewManager(db)
	require.NoError(t, core.NewRuntime(manager).Deploy(spec))
	require.NoError(t, manager.Close())

	var out bytes.Buffer
	require.NoError(t, run([]string{"inspect", "-data", dir, "-address", "0x00000000000000000000000000000000000000e1"}, &out))

	var report inspectReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.True(t, strings.EqualFold("0x00000000000000000000000000000000000000a1", report.Admin))
	require.Equal(t, "2099-01-01T00:00:00Z", report.Settings.SaleStart)
	require.Equal(t, "2000000", report.Settings.ExchangeRate)
	require.Equal(t, "0", report.Settings.SoldAmount)
	require.NotNil(t, report.Purchaser)
	require.Equal(t, "0", report.Purchaser.Claimable)
}
