package config

import "testing"

func TestDefaultConfigBrokerFromGroupRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Groups = 8
	cfg.BrokerNum = 4

	tests := []struct {
		brokerID int
		wantLow  int
		wantHigh int
	}{
		{0, 0, 1},
		{1, 2, 3},
		{2, 4, 5},
		{3, 6, 7},
	}
	for _, test := range tests {
		cfg.BrokerID = test.brokerID
		low, high := cfg.BrokerFromGroupRange()
		if low != test.wantLow || high != test.wantHigh {
			t.Errorf("broker %d: got range [%d, %d], want [%d, %d]", test.brokerID, low, high, test.wantLow, test.wantHigh)
		}
	}
}

func TestBrokerFromGroupRangeCoversEveryGroupExactlyOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Groups = 10
	cfg.BrokerNum = 3

	seen := make(map[int]int)
	for brokerID := 0; brokerID < cfg.BrokerNum; brokerID++ {
		cfg.BrokerID = brokerID
		low, high := cfg.BrokerFromGroupRange()
		for g := low; g <= high; g++ {
			seen[g]++
		}
	}
	for g := 0; g < cfg.Groups; g++ {
		if seen[g] != 1 {
			t.Errorf("group %d claimed by %d brokers, want exactly 1", g, seen[g])
		}
	}
}

func TestDefaultConfigMaxMiningTargetIsPositive(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxMiningTarget.Sign() <= 0 {
		t.Fatal("default max mining target must be a positive value")
	}
}
