package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"mediaFetcher/api/models"
)

// command builds the invocation for req. Output files keep the local write
// time so file age reflects when the fetch finished.
func (f *YtdlpFetcher) command(req Request) *ytdlp.Command {
	cmd := ytdlp.New().
		Paths(req.OutputDir).
		Output(req.BaseName + "_%(title)s.%(ext)s").
		RestrictFilenames().
		NoPlaylist().
		NoProgress().
		NoMtime().
		Print("after_move:filepath").
		NoSimulate()

	if f.executable != "" {
		cmd.SetExecutable(f.executable)
	}

	switch req.OutputKind {
	case models.OutputAudio:
		cmd.Format("bestaudio/best").
			ExtractAudio().
			AudioFormat("mp3").
			AudioQuality("192K")
	default:
		cmd.Format("bestvideo+bestaudio/best").
			MergeOutputFormat("mp4")
	}

	return cmd
}

// Substrings of yt-dlp errors that are caused by the submitted target.
var userFaultMarkers = []string{
	"Unsupported URL",
	"is not a valid URL",
	"Video unavailable",
	"Private video",
	"This video is not available",
	"Sign in to confirm",
	"Requested format is not available",
	"HTTP Error 404",
}

// YtdlpFetcher runs the yt-dlp executable.
type YtdlpFetcher struct {
	executable string
	logger     *zap.Logger
}

// NewYtdlpFetcher uses executable when set and yt-dlp from PATH otherwise.
func NewYtdlpFetcher(executable string, logger *zap.Logger) *YtdlpFetcher {
	return &YtdlpFetcher{executable: executable, logger: logger}
}

func (f *YtdlpFetcher) Fetch(ctx context.Context, req Request) (string, error) {
	cmd := f.command(req)

	if req.Credential != "" {
		cookiePath, cleanup, err := writeCookieFile(req.Credential)
		if err != nil {
			return "", &Error{Message: "failed to prepare credentials", Err: err}
		}
		defer cleanup()
		cmd.Cookies(cookiePath)
	}

	f.logger.Info("Starting fetch",
		zap.String("target", req.Target),
		zap.String("output_kind", string(req.OutputKind)),
		zap.String("base_name", req.BaseName),
	)

	result, err := cmd.Run(ctx, req.Target)
	if err != nil {
		stderr := ""
		if result != nil {
			stderr = result.Stderr
		}
		msg := failureMessage(stderr, err)
		return "", &Error{
			Message:   msg,
			UserFault: isUserFault(msg),
			Err:       err,
		}
	}

	path := lastLine(result.Stdout)
	if path == "" {
		return "", &Error{Message: "yt-dlp did not report an output file"}
	}

	return path, nil
}

// writeCookieFile stores the payload in a private temp file. The returned
// cleanup removes it.
func writeCookieFile(payload string) (string, func(), error) {
	file, err := os.CreateTemp("", "cookies-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("create cookie file: %w", err)
	}
	path := file.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := file.WriteString(payload); err != nil {
		file.Close()
		cleanup()
		return "", nil, fmt.Errorf("write cookie file: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close cookie file: %w", err)
	}
	return path, cleanup, nil
}

// failureMessage prefers yt-dlp's ERROR lines over the rest of stderr.
func failureMessage(stderr string, err error) string {
	var errLines []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") {
			errLines = append(errLines, line)
		}
	}
	if len(errLines) > 0 {
		return strings.Join(errLines, "\n")
	}
	if s := strings.TrimSpace(stderr); s != "" {
		return s
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "fetch interrupted: " + err.Error()
	}
	return err.Error()
}

func isUserFault(msg string) bool {
	for _, marker := range userFaultMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
