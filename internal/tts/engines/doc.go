// Package engines contains the speech synthesizers a meeting can be voiced
// with: piper (offline), gTTS (online, via gtts-cli and ffmpeg) and a
// deterministic mock.
package engines
