package ledger

// SeedHistory installs a wallet snapshot and its transaction history into the
// in-memory store. Test helper for fabricating past activity (e.g. previous
// month timestamps) that the operations API would never produce.
func SeedHistory(s Store, w Wallet, history []Transaction) {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.wallets[w.OwnerID] = w
	mem.history[w.OwnerID] = append([]Transaction(nil), history...)
	refs := make(map[string]int, len(history))
	for i, txn := range history {
		refs[txn.Reference] = i
	}
	mem.byRef[w.OwnerID] = refs
}
