package media

import "os/exec"

// Tools reports whether the external binaries the adapters depend on are
// resolvable on PATH. Used by the health endpoint.
func Tools() map[string]bool {
	out := make(map[string]bool, 2)
	for _, name := range []string{"yt-dlp", "ffmpeg"} {
		_, err := exec.LookPath(name)
		out[name] = err == nil
	}
	return out
}
