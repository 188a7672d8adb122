package types

import "testing"

func TestPoolMask(t *testing.T) {
	m := MaskSapling | MaskTransparent
	if !m.Has(Sapling) || !m.Has(Transparent) || m.Has(Orchard) {
		t.Fatalf("Has() wrong for %v", m)
	}
	pools := m.Pools()
	if len(pools) != 2 || pools[0] != Transparent || pools[1] != Sapling {
		t.Fatalf("Pools() = %v", pools)
	}
	if m.String() != "transparent+sapling" {
		t.Fatalf("String() = %q", m.String())
	}
	if !PoolMask(0).Empty() {
		t.Fatal("zero mask should be empty")
	}
}

func TestParsePool(t *testing.T) {
	for _, p := range AllPools {
		got, err := ParsePool(p.String())
		if err != nil || got != p {
			t.Fatalf("ParsePool(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePool("sprout"); err == nil {
		t.Fatal("ParsePool(sprout) should fail")
	}
	if !Sapling.Shielded() || Transparent.Shielded() {
		t.Fatal("Shielded() wrong")
	}
}

func TestParsePoolMask(t *testing.T) {
	tests := []struct {
		in      string
		want    PoolMask
		wantErr bool
	}{
		{"all", MaskAll, false},
		{"Shielded", MaskShielded, false},
		{"sapling", MaskSapling, false},
		{"transparent+orchard", MaskTransparent | MaskOrchard, false},
		{"s,o", MaskShielded, false},
		{"transparent+sapling+orchard", MaskAll, false},
		{"", 0, true},
		{"sprout", 0, true},
		{"sapling+", MaskSapling, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePoolMask(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParsePoolMask(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParsePoolMaskRoundTrip(t *testing.T) {
	for m := PoolMask(1); m <= MaskAll; m++ {
		got, err := ParsePoolMask(m.String())
		if err != nil || got != m {
			t.Fatalf("ParsePoolMask(%q) = %v, %v", m.String(), got, err)
		}
	}
}
