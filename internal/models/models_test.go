package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMoneyJSON(t *testing.T) {
	var body struct {
		Amount Money `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount": 8.5}`), &body); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if body.Amount != 850 {
		t.Fatalf("expected 850 cents, got %d", body.Amount)
	}

	if err := json.Unmarshal([]byte(`{"amount": "25.00"}`), &body); err != nil {
		t.Fatalf("json.Unmarshal quoted: %v", err)
	}
	if body.Amount != 2500 {
		t.Fatalf("expected 2500 cents, got %d", body.Amount)
	}

	out, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if string(out) != `{"amount":25.00}` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestMoneyRejectsFractionsOfACent(t *testing.T) {
	if _, err := ParseMoney("1.005"); err == nil {
		t.Fatalf("expected an error for three decimal places")
	}
	if m, err := ParseMoney("1.500"); err != nil || m != 150 {
		t.Fatalf("trailing zeros should be accepted, got %d, %v", m, err)
	}

	for _, raw := range []string{"184467440737095524.16", "-184467440737095524.16", "10000000000.01"} {
		if m, err := ParseMoney(raw); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("ParseMoney(%s): expected ErrOutOfRange, got %d, %v", raw, m, err)
		}
	}
	if m, err := ParseMoney("10000000000.00"); err != nil || m != MaxMoney {
		t.Fatalf("the maximum amount should be accepted, got %d, %v", m, err)
	}

	var m Money
	if err := json.Unmarshal([]byte(`184467440737095524.16`), &m); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("JSON amount beyond the maximum should be rejected, got %d, %v", m, err)
	}
}

func TestComputeDaysLeft(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Campaign{EndsAt: now.Add(29*24*time.Hour + time.Hour)}
	c.ComputeDaysLeft(now)
	if c.DaysLeft != 30 {
		t.Fatalf("expected partial day to round up to 30, got %d", c.DaysLeft)
	}

	c.EndsAt = now.Add(-time.Hour)
	c.ComputeDaysLeft(now)
	if c.DaysLeft != 0 {
		t.Fatalf("expired campaign should have 0 days left, got %d", c.DaysLeft)
	}
}

func TestStringListRoundTripThroughColumn(t *testing.T) {
	v, err := StringList{"Thank-you email", "Name in credits"}.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var l StringList
	if err := l.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(l) != 2 || l[1] != "Name in credits" {
		t.Fatalf("unexpected list %#v", l)
	}

	if err := l.Scan(nil); err != nil || len(l) != 0 {
		t.Fatalf("NULL should scan to an empty list, got %#v, %v", l, err)
	}
}

func TestCategoryValid(t *testing.T) {
	if !CategoryMusic.Valid() {
		t.Fatalf("music should be valid")
	}
	if Category("sculpture").Valid() {
		t.Fatalf("unknown category should be invalid")
	}
}
