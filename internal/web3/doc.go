// Package web3 houses blockchain connectivity for the agent: the chain client
// abstraction, token issuance, and multi-chain configuration helpers.
// Concrete clients live in the solana and ethereum subpackages and are
// assembled by provider.Registry.
package web3
