package uuidutil

import (
	"encoding/base64"
	"encoding/hex"
	"github.com/google/uuid"
	"strings"
)

var escaper = strings.NewReplacer("9", "99", "-", "90", "_", "91")

// UUID returns a random uuid as 32 hex digits.
func UUID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ShortUUID refer to https://stackoverflow.com/questions/37934162/output-uuid-in-go-as-a-short-string
func ShortUUID() string {
	id := uuid.New()
	return escaper.Replace(base64.RawURLEncoding.EncodeToString(id[:]))
}

// NameUUID derives a stable id from name, so a node keeps its equipment id
// when its state directory is recreated.
func NameUUID(name string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("harnsnode:"+name))
	return hex.EncodeToString(id[:])
}
