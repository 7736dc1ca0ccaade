package errorlog

import (
	"crypto/sha256"
	"fmt"
)

// SignatureHash computes the dedup identity of an error report: a sha256
// over the exact message and stack trace. No normalization or fuzzy
// matching — two reports fold together only when both strings match
// byte for byte. A missing stack trace hashes as the empty string.
//
// Each field is digested on its own before the outer hash, so no byte
// sequence in the message can masquerade as part of the stack trace (a
// flat concatenation would fold e.g. a newline-bearing message into a
// different pair with the same joined bytes).
func SignatureHash(message string, stackTrace *string) string {
	st := ""
	if stackTrace != nil {
		st = *stackTrace
	}
	mh := sha256.Sum256([]byte(message))
	sh := sha256.Sum256([]byte(st))
	hash := sha256.Sum256(append(mh[:], sh[:]...))
	return fmt.Sprintf("%x", hash)
}
