package order

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DomainOrder separates order fingerprints from any other hash in the system.
const DomainOrder = "barsync/order/v1"

// Fingerprint returns a content hash over every observable field of the
// order. Orders with equal fingerprints are indistinguishable to readers of
// the store.
func Fingerprint(o Order) (string, error) {
	canonical, err := marshalCanonical(canonicalOrder(o))
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", o.ID, err)
	}
	return hashWithDomain(DomainOrder, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(o Order) string {
	fp, err := Fingerprint(o)
	if err != nil {
		panic(err)
	}
	return fp
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalOrder maps an order onto canonical JSON values. Absent optional
// fields are omitted rather than encoded as null.
func canonicalOrder(o Order) map[string]any {
	items := make([]any, len(o.Items))
	for i, it := range o.Items {
		m := map[string]any{
			"id":      it.ID,
			"line_no": it.Line,
			"name":    it.Name,
			"qty":     it.Qty,
			"is_done": it.Done,
		}
		if it.Note != nil {
			m["note"] = *it.Note
		}
		items[i] = m
	}

	m := map[string]any{
		"public_id":    o.ID,
		"table_number": o.Table,
		"waiter_name":  o.Waiter,
		"covers":       o.Covers,
		"apericena":    o.Apericena,
		"status":       string(o.ServerStatus),
		"created_at":   canonicalTime(o.CreatedAt),
		"items":        items,
	}
	if o.Note != nil {
		m["note"] = *o.Note
	}
	if o.ReadyAt != nil {
		m["ready_at"] = canonicalTime(*o.ReadyAt)
	}
	return m
}

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
