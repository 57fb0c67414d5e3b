package domain

import "testing"

func TestCanTransition_LegalEdgesOnly(t *testing.T) {
	statuses := []PayoutStatus{StatusPending, StatusApproved, StatusRejected, StatusTransferred}
	legal := map[[2]PayoutStatus]bool{
		{StatusPending, StatusApproved}:     true,
		{StatusPending, StatusRejected}:     true,
		{StatusPending, StatusTransferred}:  true,
		{StatusApproved, StatusTransferred}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			got := CanTransition(from, to)
			want := legal[[2]PayoutStatus{from, to}]
			if got != want {
				t.Errorf("transition %s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status PayoutStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusApproved, false},
		{StatusRejected, true},
		{StatusTransferred, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal(): expected %v, got %v", tt.status, tt.want, got)
		}
	}
}

func TestParsePayoutStatus(t *testing.T) {
	tests := []struct {
		input  string
		want   PayoutStatus
		wantOK bool
	}{
		{"pending", StatusPending, true},
		{"APPROVED", StatusApproved, true},
		{" Transferred ", StatusTransferred, true},
		{"rejected", StatusRejected, true},
		{"settled", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePayoutStatus(tt.input)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("ParsePayoutStatus(%q): expected (%q, %v), got (%q, %v)", tt.input, tt.want, tt.wantOK, got, ok)
		}
	}
}
