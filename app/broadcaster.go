package app

import "math/rand"

// shuffledBrokers returns a copy of brokers in a random order via an
// in-place Fisher-Yates shuffle, the order TxsBroadcast iterates peers in
// when fanning a set of transaction hashes out to a clique. The order is
// a fairness heuristic, not a protocol invariant: nothing downstream
// depends on it being reproducible across calls or nodes.
func shuffledBrokers(brokers []string) []string {
	shuffled := make([]string, len(brokers))
	copy(shuffled, brokers)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// TxsBroadcast relays a set of transaction hashes to every broker in
// brokers using send, in a freshly shuffled order each call.
func TxsBroadcast(brokers []string, send func(broker string) error) error {
	for _, broker := range shuffledBrokers(brokers) {
		if err := send(broker); err != nil {
			return err
		}
	}
	return nil
}
