package app

import "testing"

func TestShuffledBrokersIsAPermutation(t *testing.T) {
	brokers := []string{"a", "b", "c", "d", "e"}
	shuffled := shuffledBrokers(brokers)
	if len(shuffled) != len(brokers) {
		t.Fatalf("got %d brokers, want %d", len(shuffled), len(brokers))
	}
	seen := make(map[string]bool)
	for _, b := range shuffled {
		seen[b] = true
	}
	for _, b := range brokers {
		if !seen[b] {
			t.Errorf("shuffled result is missing broker %q", b)
		}
	}
}

func TestShuffledBrokersDoesNotMutateInput(t *testing.T) {
	brokers := []string{"a", "b", "c"}
	original := append([]string(nil), brokers...)
	shuffledBrokers(brokers)
	for i := range brokers {
		if brokers[i] != original[i] {
			t.Fatalf("input slice was mutated: got %v, want %v", brokers, original)
		}
	}
}

func TestTxsBroadcastVisitsEveryBroker(t *testing.T) {
	brokers := []string{"a", "b", "c"}
	visited := make(map[string]bool)
	err := TxsBroadcast(brokers, func(broker string) error {
		visited[broker] = true
		return nil
	})
	if err != nil {
		t.Fatalf("TxsBroadcast: %s", err)
	}
	for _, b := range brokers {
		if !visited[b] {
			t.Errorf("broker %q was never visited", b)
		}
	}
}

func TestTxsBroadcastStopsOnFirstError(t *testing.T) {
	brokers := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	wantErr := errTest("send failed")
	var visited int
	err := TxsBroadcast(brokers, func(broker string) error {
		visited++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("got error %v, want %v", err, wantErr)
	}
	if visited != 1 {
		t.Errorf("got %d brokers visited before stopping, want 1", visited)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
