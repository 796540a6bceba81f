package models

import (
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/shopspring/decimal"
)

func TestValidateAmount_RejectsNonPositiveAmounts(t *testing.T) {
	cases := []string{"0", "0.00", "-1", "-0.01"}
	for _, in := range cases {
		err := validateAmount(decimal.RequireFromString(in))
		if err == nil {
			t.Fatalf("validateAmount(%s) expected an error", in)
		}
		if kind := utils.KindOf(err); kind != utils.ErrorKindInvalidAmount {
			t.Fatalf("validateAmount(%s) expected kind %s, got %s", in, utils.ErrorKindInvalidAmount, kind)
		}
	}
}

func TestValidateAmount_RejectsSubCentPrecision(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"10.001", false},
		{"0.001", false},
		{"9.999", false},
		{"10.10", true},
		{"0.01", true},
		// Trailing zeros beyond two places are still exact cent values.
		{"5.100", true},
		{"7", true},
	}
	for _, tc := range cases {
		err := validateAmount(decimal.RequireFromString(tc.in))
		if tc.ok && err != nil {
			t.Fatalf("validateAmount(%s) unexpected error: %v", tc.in, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("validateAmount(%s) expected an error", tc.in)
			}
			if kind := utils.KindOf(err); kind != utils.ErrorKindInvalidAmount {
				t.Fatalf("validateAmount(%s) expected kind %s, got %s", tc.in, utils.ErrorKindInvalidAmount, kind)
			}
		}
	}
}

func TestValidateAmount_RejectsValuesTheColumnCannotHold(t *testing.T) {
	if err := validateAmount(decimal.RequireFromString("99999999999.99")); err != nil {
		t.Fatalf("expected 99999999999.99 to be accepted, got %v", err)
	}
	err := validateAmount(decimal.RequireFromString("100000000000.00"))
	if err == nil {
		t.Fatalf("expected 100000000000.00 to be rejected")
	}
	if kind := utils.KindOf(err); kind != utils.ErrorKindInvalidAmount {
		t.Fatalf("expected kind %s, got %s", utils.ErrorKindInvalidAmount, kind)
	}
}

func TestTransactionFilterLimits(t *testing.T) {
	cases := []struct {
		page, pageSize         int
		wantPage, wantPageSize int
	}{
		{0, 0, 1, 20},
		{-3, -5, 1, 20},
		{2, 50, 2, 50},
		{1, 100, 1, 100},
		{1, 101, 1, 100},
		{1, 1, 1, 1},
	}
	for _, tc := range cases {
		filter := TransactionFilter{Page: tc.page, PageSize: tc.pageSize}
		page, pageSize := filter.limits()
		if page != tc.wantPage || pageSize != tc.wantPageSize {
			t.Fatalf("limits() with page=%d page_size=%d returned (%d, %d), want (%d, %d)",
				tc.page, tc.pageSize, page, pageSize, tc.wantPage, tc.wantPageSize)
		}
	}
}

func TestParseTransactionType(t *testing.T) {
	for _, in := range []string{"income", "expense"} {
		parsed, err := ParseTransactionType(in)
		if err != nil {
			t.Fatalf("ParseTransactionType(%q) error: %v", in, err)
		}
		if string(parsed) != in {
			t.Fatalf("ParseTransactionType(%q) returned %q", in, parsed)
		}
	}
	if _, err := ParseTransactionType("transfer"); err == nil {
		t.Fatalf("expected transfer to be rejected")
	} else if kind := utils.KindOf(err); kind != utils.ErrorKindInvalidArgument {
		t.Fatalf("expected kind %s, got %s", utils.ErrorKindInvalidArgument, kind)
	}
}

// Binding errors from custom unmarshalers must keep their kind so the API
// reports INVALID_ARGUMENT instead of a generic internal failure.
func TestTransactionTypeUnmarshalJSON_KeepsErrorKind(t *testing.T) {
	var tt TransactionType
	err := json.Unmarshal([]byte(`"transfer"`), &tt)
	if err == nil {
		t.Fatalf("expected unmarshal of %q to fail", "transfer")
	}
	if kind := utils.KindOf(err); kind != utils.ErrorKindInvalidArgument {
		t.Fatalf("expected kind %s, got %s", utils.ErrorKindInvalidArgument, kind)
	}
}

func TestDateOnlyUnmarshalJSON_KeepsErrorKind(t *testing.T) {
	var d DateOnly
	if err := json.Unmarshal([]byte(`"2026-02-14"`), &d); err != nil {
		t.Fatalf("unexpected error for a valid date: %v", err)
	}
	if d.String() != "2026-02-14" {
		t.Fatalf("expected 2026-02-14, got %s", d.String())
	}

	err := json.Unmarshal([]byte(`"14/02/2026"`), &d)
	if err == nil {
		t.Fatalf("expected unmarshal of a non ISO date to fail")
	}
	if kind := utils.KindOf(err); kind != utils.ErrorKindInvalidArgument {
		t.Fatalf("expected kind %s, got %s", utils.ErrorKindInvalidArgument, kind)
	}
}
