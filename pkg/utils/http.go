package utils

import "io"

// DrainAndClose drains and closes rc so the transport can reuse the connection.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}
