package license

import "testing"

func TestTier_Attributes(t *testing.T) {
	tests := []struct {
		tier        Tier
		prefix      string
		maxMachines int
	}{
		{TierSolo, "SOLO", 1},
		{TierMultiple, "MULTI", 3},
		{TierEnterprise, "TEAM", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			if got := tt.tier.KeyPrefix(); got != tt.prefix {
				t.Errorf("KeyPrefix() = %q, want %q", got, tt.prefix)
			}
			if got := tt.tier.DefaultMaxMachines(); got != tt.maxMachines {
				t.Errorf("DefaultMaxMachines() = %d, want %d", got, tt.maxMachines)
			}
			if tt.tier.PriceLabel() == "" {
				t.Error("PriceLabel() is empty")
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{in: "solo", want: TierSolo},
		{in: "SOLO", want: TierSolo},
		{in: "multi", want: TierMultiple},
		{in: "Multiple", want: TierMultiple},
		{in: "team", want: TierEnterprise},
		{in: "enterprise", want: TierEnterprise},
		{in: "gold", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseTier(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
