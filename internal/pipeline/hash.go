package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainProgram separates program ids from any other hash of the same text.
// The version suffix allows the algorithm to change later.
const DomainProgram = "docagg/program/v1"

// ProgramIDPrefix marks programs created by this package in the database.
const ProgramIDPrefix = "docagg_"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProgramID returns the id a program with this source text is registered
// under. It depends on the source text only, so pipelines that generate the
// same text share one registered program.
func ProgramID(source string) string {
	return ProgramIDPrefix + hashWithDomain(DomainProgram, []byte(source))
}
