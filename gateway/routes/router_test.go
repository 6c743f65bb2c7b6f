package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"crowdsale/core"
	"crowdsale/core/events"
	"crowdsale/core/state"
	"crowdsale/core/types"
	"crowdsale/gateway/middleware"
	"crowdsale/native/sale"
	"crowdsale/native/token"
	"crowdsale/storage"
)

func addr(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, common.AddressLength))
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), sale.RateScale)
}

var (
	admin    = addr(0x01)
	custody  = addr(0x02)
	wallet   = addr(0x03)
	totem    = addr(0x10)
	usdt     = addr(0x20)
	buyer    = addr(0xA1)
	referrer = addr(0xB1)
)

type harness struct {
	handler http.Handler
	log     *events.Log
	now     int64
}

func newHarness(t *testing.T, auth *middleware.Authenticator) *harness {
	t.Helper()
	h := &harness{log: events.NewLog()}
	manager := state.NewManager(storage.NewMemDB())
	manager.SetEmitter(h.log)
	rt := core.NewRuntime(manager)
	rt.SetNowFunc(func() int64 { return h.now })
	require.NoError(t, rt.Deploy(core.DeploySpec{
		Admin:   admin,
		Custody: custody,
		Sale: &sale.Config{
			Token:                    totem,
			Wallet:                   wallet,
			SaleStart:                1_000,
			SaleEnd:                  2_000,
			WithdrawalStart:          3_000,
			WithdrawPeriodDuration:   100,
			WithdrawPeriodNumber:     10,
			MinBuyValue:              units(1),
			MaxTokenAmountPerAddress: units(100_000),
			ExchangeRate:             units(50),
			ReferralRewardPercentage: 10,
			AmountToSell:             units(1_000_000),
		},
		Assets: []core.AssetSpec{
			{Address: totem, Metadata: token.Metadata{Symbol: "TOTM", Name: "Totem", Decimals: 18}, Balances: map[common.Address]*big.Int{custody: units(1_100_000)}},
			{Address: usdt, Metadata: token.Metadata{Symbol: "USDT", Name: "Tether", Decimals: 18}, Balances: map[common.Address]*big.Int{buyer: units(1_000)}},
		},
		PaymentCurrencies: []common.Address{usdt},
	}))
	h.handler = New(Config{Runtime: rt, Events: h.log, Authenticator: auth})
	return h
}

func (h *harness) do(t *testing.T, method, path string, as common.Address, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != (common.Address{}) {
		req.Header.Set(middleware.DevCallerHeader, as.Hex())
	}
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out
}

func TestSalePurchaseFlow(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(t, http.MethodGet, "/v1/sale/settings", common.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	settings := decode[settingsView](t, res)
	require.Equal(t, totem.Hex(), settings.Token)
	require.Equal(t, "0", settings.SoldAmount)
	require.Equal(t, units(1_000_000).String(), settings.AmountToSell)

	res = h.do(t, http.MethodPost, "/v1/assets/"+usdt.Hex()+"/approve", buyer, amountRequest{Spender: custody.Hex(), Amount: units(1_000).String()})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	// Before the sale opens.
	res = h.do(t, http.MethodPost, "/v1/sale/buy", buyer, buyRequest{Currency: usdt.Hex(), Value: units(300).String()})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "phase", decode[errorBody](t, res).Kind)

	h.now = 1_000
	res = h.do(t, http.MethodPost, "/v1/sale/buy", buyer, buyRequest{Currency: usdt.Hex(), Value: units(300).String(), Referral: referrer.Hex()})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, units(15_000).String(), decode[amountResponse](t, res).Amount)

	res = h.do(t, http.MethodPost, "/v1/sale/buy", buyer, buyRequest{Currency: totem.Hex(), Value: units(10).String()})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "validation", decode[errorBody](t, res).Kind)

	res = h.do(t, http.MethodGet, "/v1/sale/purchasers/"+referrer.Hex(), common.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, units(1_500).String(), decode[purchaserView](t, res).Claimable)

	res = h.do(t, http.MethodGet, "/v1/assets/"+usdt.Hex()+"/balances/"+wallet.Hex(), common.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, units(300).String(), decode[amountResponse](t, res).Amount)

	h.now = 3_000 + 2*100
	res = h.do(t, http.MethodPost, "/v1/sale/withdraw", buyer, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, units(3_000).String(), decode[amountResponse](t, res).Amount)

	res = h.do(t, http.MethodGet, "/v1/sale/purchasers/"+buyer.Hex(), common.Address{}, nil)
	view := decode[purchaserView](t, res)
	require.Equal(t, units(3_000).String(), view.Withdrawn)
	require.Equal(t, "0", view.Withdrawable)

	res = h.do(t, http.MethodGet, "/v1/events?since=0&limit=2", common.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	listed := decode[map[string][]types.Event](t, res)
	require.Len(t, listed["events"], 2)
	require.Equal(t, uint64(1), listed["events"][0].Sequence)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, nil)

	res := h.do(t, http.MethodPost, "/v1/admin/settings/"+sale.FieldMinBuyValue, buyer, valueRequest{Value: "5"})
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "authorization", decode[errorBody](t, res).Kind)

	res = h.do(t, http.MethodPost, "/v1/admin/settings/"+sale.FieldMinBuyValue, admin, valueRequest{Value: "5"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	settings := decode[settingsView](t, h.do(t, http.MethodGet, "/v1/sale/settings", common.Address{}, nil))
	require.Equal(t, "5", settings.MinBuyValue)

	res = h.do(t, http.MethodPost, "/v1/admin/settings/bogus", admin, valueRequest{Value: "5"})
	require.Equal(t, http.StatusBadRequest, res.Code)

	extra := addr(0x30)
	res = h.do(t, http.MethodPost, "/v1/admin/currencies", admin, currenciesRequest{Assets: []string{extra.Hex()}})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = h.do(t, http.MethodGet, "/v1/sale/currencies/"+extra.Hex(), common.Address{}, nil)
	require.Equal(t, true, decode[map[string]interface{}](t, res)["authorized"])

	res = h.do(t, http.MethodPost, "/v1/admin/burn", admin, nil)
	require.Equal(t, http.StatusConflict, res.Code)

	h.now = 2_001
	res = h.do(t, http.MethodPost, "/v1/admin/burn", admin, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, units(1_100_000).String(), decode[amountResponse](t, res).Amount)
}

func TestMinterRoutes(t *testing.T) {
	h := newHarness(t, nil)
	bridge := addr(0xC1)

	res := h.do(t, http.MethodPost, "/v1/admin/minter/launch", admin, addressRequest{Address: bridge.Hex()})
	require.Equal(t, http.StatusBadRequest, res.Code, "non-contract minter must be rejected")

	res = h.do(t, http.MethodPost, "/v1/admin/contracts", admin, addressRequest{Address: bridge.Hex()})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = h.do(t, http.MethodPost, "/v1/admin/minter/launch", admin, addressRequest{Address: bridge.Hex()})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	pending := decode[pendingUpdateView](t, res)
	require.True(t, pending.MustExecute)

	res = h.do(t, http.MethodPost, "/v1/admin/minter/execute", admin, nil)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "timelock", decode[errorBody](t, res).Kind)

	h.now = pending.EffectiveAt
	res = h.do(t, http.MethodPost, "/v1/admin/minter/execute", admin, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = h.do(t, http.MethodPost, "/v1/minter/mint", bridge, amountRequest{To: buyer.Hex(), Amount: "7"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = h.do(t, http.MethodPost, "/v1/minter/mint", buyer, amountRequest{To: buyer.Hex(), Amount: "7"})
	require.Equal(t, http.StatusForbidden, res.Code)

	ms := decode[minterView](t, h.do(t, http.MethodGet, "/v1/minter", common.Address{}, nil))
	require.Equal(t, bridge.Hex(), ms.CurrentMinter)
	require.Nil(t, ms.Pending)
}

func TestWriteRoutesRequireCaller(t *testing.T) {
	h := newHarness(t, nil)
	res := h.do(t, http.MethodPost, "/v1/sale/withdraw", common.Address{}, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = h.do(t, http.MethodPost, "/v1/sale/buy", buyer, map[string]string{"unknown": "x"})
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestJWTCaller(t *testing.T) {
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "secret"}, nil)
	h := newHarness(t, auth)
	token, err := middleware.IssueToken("secret", "", "", buyer, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/assets/"+usdt.Hex()+"/transfer", strings.NewReader(`{"to":"`+referrer.Hex()+`","amount":"10"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	balance := decode[amountResponse](t, h.do(t, http.MethodGet, "/v1/assets/"+usdt.Hex()+"/balances/"+referrer.Hex(), common.Address{}, nil))
	require.Equal(t, "10", balance.Amount)

	// The dev header is ignored once tokens are required.
	res = h.do(t, http.MethodPost, "/v1/sale/withdraw", buyer, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestToStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{sale.ErrNotAdmin, http.StatusForbidden},
		{sale.ErrStarted, http.StatusConflict},
		{sale.ErrUnderMinimum, http.StatusBadRequest},
		{token.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{core.ErrNotDeployed, http.StatusConflict},
		{errBadRequest, http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.status, httpStatus(toStatus(tc.err).Code()), tc.err.Error())
	}
}

func TestEventStream(t *testing.T) {
	h := newHarness(t, nil)
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	backlog := uint64(h.log.Len())
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events/stream?cursor=1", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test complete")

	read := func() types.Event {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt types.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	}
	first := read()
	require.Equal(t, uint64(2), first.Sequence)
	for seq := uint64(3); seq <= backlog; seq++ {
		require.Equal(t, seq, read().Sequence)
	}

	res := h.do(t, http.MethodPost, "/v1/assets/"+usdt.Hex()+"/transfer", buyer, amountRequest{To: referrer.Hex(), Amount: "1"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	live := read()
	require.Equal(t, backlog+1, live.Sequence)
	require.Equal(t, token.EventTypeTransfer, live.Type)
}
