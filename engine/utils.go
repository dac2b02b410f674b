package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"golang.org/x/time/rate"
)

func rateLimiter(rstr string) (*rate.Limiter, error) {
	var rateSize int
	rstr = strings.ToLower(strings.TrimSpace(rstr))
	switch rstr {
	case "low":
		// ~50k/s
		rateSize = 50000
	case "medium":
		// ~500k/s
		rateSize = 500000
	case "high":
		// ~1500k/s
		rateSize = 1500000
	case "unlimited", "0", "":
		// unlimited
		return rate.NewLimiter(rate.Inf, 0), nil
	default:
		var v datasize.ByteSize
		err := v.UnmarshalText([]byte(rstr))
		if err != nil {
			return nil, err
		}
		if v > 2147483647 {
			// max of int, unlimited
			return nil, errors.New("excceed int val")
		}

		rateSize = int(v)
	}
	return rate.NewLimiter(rate.Limit(rateSize), rateSize*3), nil
}

// applyRate retunes l in place so transfers holding it pick up the change.
func applyRate(l *rate.Limiter, rstr string) error {
	nl, err := rateLimiter(rstr)
	if err != nil {
		return err
	}
	l.SetBurst(nl.Burst())
	l.SetLimit(nl.Limit())
	return nil
}

// waitN blocks until n bytes may pass l, splitting n into bursts.
func waitN(ctx context.Context, l *rate.Limiter, n int) error {
	if l == nil || l.Limit() == rate.Inf {
		return nil
	}
	for n > 0 {
		c := n
		if b := l.Burst(); b > 0 && c > b {
			c = b
		}
		if err := l.WaitN(ctx, c); err != nil {
			return err
		}
		n -= c
	}
	return nil
}

func mkdir(dirpath string) error {
	if st, err := os.Stat(dirpath); errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dirpath, os.ModePerm)
	} else if err != nil {
		return err
	} else if !st.IsDir() {
		return fmt.Errorf("path exists but is not a directory: %s", dirpath)
	}
	return nil
}
