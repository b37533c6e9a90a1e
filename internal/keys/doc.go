// Package keys provides the signature capability consumed by the ledger and
// process proofs: signing with a local key and verifying contributions
// against a ring of registered public keys.
//
// Keys are encoded as "<backend>:<base64>" where backend is ed25519 or
// dilithium3. Ed25519 signs sha256(text); Dilithium3 signs sha3-256(text).
// Signatures are standard base64.
package keys
