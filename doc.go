// Package corenostr is the root of a Nostr client library.
//
// The packages below implement the protocol core: event construction and
// Schnorr signing (nostr), key material and bech32 encoding (keys,
// bech32), deterministic key derivation (bip39, bip32), NIP-44 v2
// encryption (nip44), gift wrapping for private messages (nip59), the
// relay wire dialect and per-relay connection (relay), and the
// multi-relay pool (relaypool).
package corenostr
