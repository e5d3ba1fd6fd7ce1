// Copyright 2024 The SKFS Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package proto implements the stdin write protocol: a stream of
// key/value records --
//
//	key \t " value " \n
//
// with backslash escapes (\\, \t, \n, \") inside both key and value,
// and a blank key marking a batch separator. Scanner is written as an
// explicit byte-at-a-time state machine, rather than a generator or
// coroutine, specifically so it can be fed one byte, one read()
// buffer, or the whole stream at once and produce the same records
// either way -- the stream must tolerate being split at an arbitrary
// byte boundary and resumed later.
package proto

import (
	"github.com/skiplabs/skfs"
	"github.com/skiplabs/skfs/internal/unsafeconv"
)

// Record is one parsed key/value pair, or a batch separator if Key is
// the zero BaseName and Separator is true.
type Record struct {
	Key       skfs.BaseName
	Value     string
	Separator bool
}

type scanState int

const (
	stateKey scanState = iota
	stateAwaitQuote
	stateValue
	stateAwaitNewline
)

// Scanner incrementally parses the stdin write protocol. It holds no
// goroutine or channel: Feed appends newly available records to an
// internal queue that Drain empties, so a caller can feed it bytes
// from however many separate reads it likes.
type Scanner struct {
	st      scanState
	escaped bool
	keyBuf  []byte
	valBuf  []byte
	records []Record
}

// NewScanner constructs an empty Scanner, ready to Feed from the start
// of a stream.
func NewScanner() *Scanner {
	return &Scanner{st: stateKey}
}

// Feed parses chunk, appending any complete records to the internal
// queue. It may be called repeatedly with successive, arbitrarily-cut
// pieces of the same logical stream.
func (s *Scanner) Feed(chunk []byte) {
	for _, b := range chunk {
		s.feedByte(b)
	}
}

// Drain removes and returns every record completed so far.
func (s *Scanner) Drain() []Record {
	out := s.records
	s.records = nil
	return out
}

func (s *Scanner) feedByte(b byte) {
	switch s.st {
	case stateKey:
		if s.escaped {
			s.keyBuf = appendEscaped(s.keyBuf, b)
			s.escaped = false
			return
		}
		switch b {
		case '\\':
			s.escaped = true
		case '\t':
			s.st = stateAwaitQuote
		default:
			s.keyBuf = append(s.keyBuf, b)
		}
	case stateAwaitQuote:
		if b == '"' {
			s.st = stateValue
		}
		// Any byte before the opening quote is discarded: a
		// well-formed stream never has one, but a scanner must not
		// jam on malformed input either.
	case stateValue:
		if s.escaped {
			s.valBuf = appendEscaped(s.valBuf, b)
			s.escaped = false
			return
		}
		switch b {
		case '\\':
			s.escaped = true
		case '"':
			s.st = stateAwaitNewline
		default:
			s.valBuf = append(s.valBuf, b)
		}
	case stateAwaitNewline:
		if b == '\n' {
			s.emit()
			return
		}
		// The closing quote wasn't immediately followed by a newline,
		// so it wasn't actually the terminator -- recover by folding
		// it back into the value literally and continuing.
		s.valBuf = append(s.valBuf, '"', b)
		s.st = stateValue
	}
}

// appendEscaped resolves one escape sequence's second byte: \\, \t,
// \n and \" map to their named character; any other character is
// literal, per the protocol, which keeps the backslash itself.
func appendEscaped(buf []byte, b byte) []byte {
	switch b {
	case '\\':
		return append(buf, '\\')
	case 't':
		return append(buf, '\t')
	case 'n':
		return append(buf, '\n')
	case '"':
		return append(buf, '"')
	default:
		return append(buf, '\\', b)
	}
}

// emit hands the accumulated key/value buffers off as a Record without
// copying them: keyBuf and valBuf are set to nil immediately after, so
// the next record's bytes always land in a freshly grown slice rather
// than mutating memory the just-emitted strings alias.
func (s *Scanner) emit() {
	key := unsafeconv.BytesToString(s.keyBuf)
	rec := Record{Value: unsafeconv.BytesToString(s.valBuf)}
	if key == "" {
		rec.Separator = true
	} else {
		rec.Key = skfs.SID(key)
	}
	s.records = append(s.records, rec)
	s.keyBuf = nil
	s.valBuf = nil
	s.st = stateKey
}
