package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrNetworkNotFound,
		ErrClockBusy,
		ErrBadRequest,
		ErrNoPermission,
		ErrUnknownActor,
		ErrUnknownProperty,
		ErrInsufficientFunds,
		ErrInsufficientHoldings,
		ErrNoSupply,
		ErrPropertyUnavailable,
		ErrOwnerThreshold,
		ErrNotTenant,
		ErrNothingOwed,
		ErrTreasuryLimit,
		ErrConflict,
		ErrStaleMonth,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}
