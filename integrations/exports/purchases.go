package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// Purchase is one indexed sale purchase in export form. Amounts are decimal
// strings in the smallest unit of their asset.
type Purchase struct {
	Sequence  uint64
	Buyer     string
	Currency  string
	Value     string
	Amount    string
	Referral  string
	IndexedAt time.Time
}

var purchaseHeader = []string{"sequence", "buyer", "currency", "value", "amount", "referral", "indexed_at"}

func (p Purchase) record() []string {
	return []string{
		strconv.FormatUint(p.Sequence, 10),
		p.Buyer,
		p.Currency,
		orZero(p.Value),
		orZero(p.Amount),
		p.Referral,
		p.IndexedAt.UTC().Format(time.RFC3339Nano),
	}
}

// PurchasesCSV builds a CSV export for the supplied purchases and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func PurchasesCSV(purchases []Purchase) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(purchaseHeader); err != nil {
		return nil, "", err
	}
	for _, p := range purchases {
		if err := writer.Write(p.record()); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return withChecksum(buffer.Bytes())
}

// PurchasesJSONL builds a JSON Lines export, one object per purchase.
func PurchasesJSONL(purchases []Purchase) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, p := range purchases {
		fields := p.record()
		payload := make(map[string]interface{}, len(fields))
		for i, name := range purchaseHeader {
			payload[name] = fields[i]
		}
		payload["sequence"] = p.Sequence
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	return withChecksum(buffer.Bytes())
}

func withChecksum(data []byte) ([]byte, string, error) {
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
