package logger

import "os"

// isTerminal reports whether fd refers to a character device. Only stdout and
// stderr are checked; anything else (files, pipes) never gets color. A false
// negative only disables color, never breaks output.
func isTerminal(fd uintptr) bool {
	var f *os.File
	switch fd {
	case os.Stdout.Fd():
		f = os.Stdout
	case os.Stderr.Fd():
		f = os.Stderr
	default:
		return false
	}

	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
