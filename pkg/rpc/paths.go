package rpc

// REST paths, relative to each configured endpoint (e.g. http://node:8080/v1).
const (
	ledgerInfoPath   = "/"
	transactionsPath = "/transactions"
)
