//go:build linux

package evloop

import (
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// RaiseOpenFilesLimit lifts the RLIMIT_NOFILE soft limit to limit, capped by
// the hard limit. It returns the soft limit in effect afterwards.
func RaiseOpenFilesLimit(limit int) (uint64, error) {
	rLimit := &unix.Rlimit{}
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, rLimit)
	if err != nil {
		return 0, os.NewSyscallError("getrlimit", err)
	}
	want := uint64(limit)
	if want > rLimit.Max {
		log.Warn().Msgf("requested %d open files, hard limit is %d", want, rLimit.Max)
		want = rLimit.Max
	}
	if want <= rLimit.Cur {
		return rLimit.Cur, nil
	}
	err = unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{
		Cur: want,
		Max: rLimit.Max,
	})
	if err != nil {
		return rLimit.Cur, os.NewSyscallError("setrlimit", err)
	}
	log.Info().Msgf("open files limit raised from %d to %d", rLimit.Cur, want)
	return want, nil
}
