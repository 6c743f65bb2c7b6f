package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"crowdsale/core"
	"crowdsale/gateway/middleware"
)

const maxBodyBytes = 1 << 16

type buyRequest struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
	Referral string `json:"referral,omitempty"`
}

type amountRequest struct {
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`
	Holder  string `json:"holder,omitempty"`
	Amount  string `json:"amount"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type currenciesRequest struct {
	Assets []string `json:"assets"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func caller(r *http.Request) (common.Address, error) {
	addr, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return common.Address{}, fmt.Errorf("%w: caller unknown", errBadRequest)
	}
	return addr, nil
}

func pathAddress(r *http.Request, name string) (common.Address, error) {
	return core.ParseAddress(chi.URLParam(r, name))
}

// optionalAddress parses an address that may be omitted.
func optionalAddress(value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, nil
	}
	return core.ParseAddress(value)
}

func (a *api) getDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := a.runtime.Deployment()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeploymentView(d))
}

func (a *api) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.runtime.Settings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(settings))
}

func (a *api) getSold(w http.ResponseWriter, r *http.Request) {
	sold, err := a.runtime.SoldAmount()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(sold)})
}

func (a *api) getCurrencies(w http.ResponseWriter, r *http.Request) {
	list, err := a.runtime.PaymentCurrencies()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, addr.Hex())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"currencies": out})
}

func (a *api) getCurrency(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := a.runtime.IsAuthorizedPaymentCurrency(asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"asset": asset.Hex(), "authorized": ok})
}

func (a *api) getPurchaser(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := a.runtime.Purchaser(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPurchaserView(addr, p))
}

func (a *api) getAssets(w http.ResponseWriter, r *http.Request) {
	infos, err := a.runtime.Assets()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]assetView, 0, len(infos))
	for _, info := range infos {
		out = append(out, newAssetView(info))
	}
	writeJSON(w, http.StatusOK, map[string][]assetView{"assets": out})
}

func (a *api) getBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	account, err := pathAddress(r, "address")
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := a.runtime.Balance(asset, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(balance)})
}

func (a *api) getAllowance(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := pathAddress(r, "owner")
	if err != nil {
		writeError(w, err)
		return
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		writeError(w, err)
		return
	}
	allowance, err := a.runtime.Allowance(asset, owner, spender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(allowance)})
}

func (a *api) getMinter(w http.ResponseWriter, r *http.Request) {
	st, err := a.runtime.MinterState()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMinterView(st))
}

func (a *api) buyToken(w http.ResponseWriter, r *http.Request) {
	buyer, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	currency, err := core.ParseAddress(req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	value, err := core.ParseAmount(req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	referral, err := optionalAddress(req.Referral)
	if err != nil {
		writeError(w, err)
		return
	}
	tokens, err := a.runtime.BuyToken(buyer, currency, value, referral)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(tokens)})
}

func (a *api) withdrawToken(w http.ResponseWriter, r *http.Request) {
	a.amountOp(w, r, a.runtime.WithdrawToken)
}

func (a *api) burnRemaining(w http.ResponseWriter, r *http.Request) {
	a.amountOp(w, r, a.runtime.BurnRemainingTokens)
}

func (a *api) amountOp(w http.ResponseWriter, r *http.Request, op func(common.Address) (*big.Int, error)) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := op(from)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

// decodeAmountRequest resolves the caller, the counterparty selected from the
// body and the amount of a transfer style request.
func decodeAmountRequest(r *http.Request, counterparty func(amountRequest) string) (common.Address, common.Address, *big.Int, error) {
	from, err := caller(r)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	other, err := core.ParseAddress(counterparty(req))
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return from, other, amount, nil
}

func (a *api) transfer(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	from, to, amount, err := decodeAmountRequest(r, func(req amountRequest) string { return req.To })
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.runtime.Transfer(from, asset, to, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (a *api) approve(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeError(w, err)
		return
	}
	owner, spender, amount, err := decodeAmountRequest(r, func(req amountRequest) string { return req.Spender })
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.runtime.Approve(owner, asset, spender, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (a *api) mint(w http.ResponseWriter, r *http.Request) {
	from, to, amount, err := decodeAmountRequest(r, func(req amountRequest) string { return req.To })
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.runtime.MintFromController(from, to, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (a *api) burn(w http.ResponseWriter, r *http.Request) {
	from, holder, amount, err := decodeAmountRequest(r, func(req amountRequest) string { return req.Holder })
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.runtime.BurnFromController(from, holder, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (a *api) configure(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	field := chi.URLParam(r, "field")
	if err := a.runtime.Configure(admin, field, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"field": field, "value": req.Value})
}

func (a *api) authorizeCurrencies(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req currenciesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	assets := make([]common.Address, 0, len(req.Assets))
	for _, raw := range req.Assets {
		addr, err := core.ParseAddress(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		assets = append(assets, addr)
	}
	if err := a.runtime.AuthorizePaymentCurrencies(admin, assets); err != nil {
		writeError(w, err)
		return
	}
	a.getCurrencies(w, r)
}

func (a *api) registerContract(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := core.ParseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.runtime.RegisterContract(admin, addr); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.Hex()})
}

func (a *api) launchUpdate(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	newMinter, err := core.ParseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := a.runtime.LaunchUpdate(admin, newMinter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPendingUpdateView(pending))
}

func (a *api) executeUpdate(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	current, err := a.runtime.ExecuteUpdate(admin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"currentMinter": current.Hex()})
}

func (a *api) getEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseCursor(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, err)
		return
	}
	list := a.events.Since(since)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw))
			return
		}
		if len(list) > limit {
			list = list[:limit]
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

func parseCursor(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid cursor %q", errBadRequest, raw)
	}
	return v, nil
}
