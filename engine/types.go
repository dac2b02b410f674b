package engine

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// GID identifies one download inside a session.
type GID uint64

// Hex renders the gid as 16 lowercase hex digits.
func (g GID) Hex() string {
	return fmt.Sprintf("%016x", uint64(g))
}

func (g GID) String() string {
	return g.Hex()
}

// HexToGID parses a hex gid. Malformed input yields the zero gid, which
// never names a download.
func HexToGID(s string) GID {
	if len(s) == 0 || len(s) > 16 {
		return 0
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return GID(v)
}

func newGID() GID {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic(err)
		}
		if g := GID(binary.BigEndian.Uint64(b[:])); g != 0 {
			return g
		}
	}
}

type KeyVal struct {
	Key   string
	Value string
}

// KeyVals is an ordered option bag.
type KeyVals []KeyVal

// Get returns the last value set for key.
func (kv KeyVals) Get(key string) (string, bool) {
	for i := len(kv) - 1; i >= 0; i-- {
		if kv[i].Key == key {
			return kv[i].Value, true
		}
	}
	return "", false
}

// Merge returns a copy of kv with every pair of other applied on top.
func (kv KeyVals) Merge(other KeyVals) KeyVals {
	out := make(KeyVals, 0, len(kv)+len(other))
	out = append(out, kv...)
	for _, o := range other {
		replaced := false
		for i := range out {
			if out[i].Key == o.Key {
				out[i].Value = o.Value
				replaced = true
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

// Map converts the bag to a map; later pairs win.
func (kv KeyVals) Map() map[string]string {
	m := make(map[string]string, len(kv))
	for _, p := range kv {
		m[p.Key] = p.Value
	}
	return m
}

// Errno is a nonzero engine return code.
type Errno int

func (e Errno) Error() string {
	switch e {
	case ErrnoNotFound:
		return "engine: no such download"
	case ErrnoInvalid:
		return "engine: invalid argument"
	case ErrnoState:
		return "engine: operation not allowed in current state"
	case ErrnoIO:
		return "engine: i/o failure"
	}
	return fmt.Sprintf("engine: error %d", int(e))
}

const (
	ErrnoGeneric  Errno = -1
	ErrnoNotFound Errno = -2
	ErrnoInvalid  Errno = -3
	ErrnoState    Errno = -4
	ErrnoIO       Errno = -5
)

// Code extracts the numeric code carried by err; 0 for nil, -1 for errors
// that do not carry one.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return int(e)
	}
	return int(ErrnoGeneric)
}
