package engine

import "sync"

// nativeLibrary is the process side of the built-in engine. Init and Deinit
// are reference counted.
type nativeLibrary struct {
	mu     sync.Mutex
	refs   int
	config Config
}

// NewLibrary returns the built-in engine configured by c. Session level
// settings come from the options passed to NewSession, see
// Config.SessionOptions.
func NewLibrary(c Config) Library {
	return &nativeLibrary{config: c}
}

func (l *nativeLibrary) Init() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs++
	if l.refs == 1 {
		log.Printf("library initialized")
	}
	return 0
}

func (l *nativeLibrary) Deinit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs == 0 {
		return int(ErrnoGeneric)
	}
	l.refs--
	if l.refs == 0 {
		log.Printf("library deinitialized")
	}
	return 0
}

func (l *nativeLibrary) NewSession(options KeyVals, config SessionConfig) Session {
	l.mu.Lock()
	refs := l.refs
	l.mu.Unlock()
	if refs == 0 {
		log.Printf("session requested before library init")
		return nil
	}
	s, err := newSession(l, options, config)
	if err != nil {
		log.Printf("session not created: %s", err)
		return nil
	}
	return s
}
