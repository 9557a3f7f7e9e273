package render

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docrender/constants"
)

// officeToPDF runs the office suite headless and returns the PDF it wrote into outDir.
// The exit status is logged but not trusted; the expected file decides.
func officeToPDF(ctx context.Context, r Runner, s Settings, src, outDir, key string, logger *slog.Logger) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	expected := filepath.Join(outDir, stem+".pdf")

	// a private profile per run; concurrent soffice processes sharing one lock each other out
	profile, err := os.MkdirTemp("", "docrender-lo-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.RemoveAll(profile); err != nil {
			logger.Warn("failed to remove office profile dir", "dir", profile, "error", err)
		}
	}()

	// soffice --headless --convert-to pdf --outdir <dir> <src>
	res, runErr := r.Run(ctx, Command{
		Name: s.Soffice,
		Args: []string{
			"-env:UserInstallation=file://" + filepath.ToSlash(profile),
			"--headless",
			"--norestore",
			"--nolockcheck",
			"--convert-to", "pdf",
			"--outdir", outDir,
			src,
		},
		Timeout: s.OfficeTimeout,
	}, logger)

	if reason := interrupted(res); reason != "" {
		return "", &ConversionError{Stage: constants.StageOfficeToPDF, Reason: reason, Key: key, Output: string(res.Output), Err: runErr}
	}
	st, err := os.Stat(expected)
	if err != nil || !st.Mode().IsRegular() || st.Size() == 0 {
		if runErr == nil {
			runErr = err
		}
		return "", &ConversionError{Stage: constants.StageOfficeToPDF, Reason: ReasonMissingOutput, Key: key, Output: string(res.Output), Err: runErr}
	}
	if runErr != nil {
		logger.Warn("office renderer reported failure but produced output", "cache_key", key, "error", runErr)
	}
	return expected, nil
}

// interrupted maps a killed run to its failure reason, or "".
func interrupted(res Result) string {
	switch {
	case res.TimedOut:
		return ReasonTimeout
	case res.Canceled:
		return ReasonCanceled
	}
	return ""
}
