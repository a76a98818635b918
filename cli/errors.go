package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	smsotperrors "github.com/byteness/smsotp/errors"
)

// FormatErrorWithSuggestion writes error to stderr with suggestion if available.
// Returns the original error for chaining.
func FormatErrorWithSuggestion(err error) error {
	return FormatErrorWithSuggestionTo(os.Stderr, err)
}

// FormatErrorWithSuggestionTo writes to a specific writer (for testing).
// Returns the original error for chaining.
func FormatErrorWithSuggestionTo(w io.Writer, err error) error {
	if err == nil {
		return nil
	}

	otpErr, ok := smsotperrors.IsSmsOtpError(err)
	if ok {
		fmt.Fprintf(w, "Error: %s\n", otpErr.Error())
		if suggestion := otpErr.Suggestion(); suggestion != "" {
			fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
		}
		if ctx := otpErr.Context(); len(ctx) > 0 {
			keys := make([]string, 0, len(ctx))
			for k := range ctx {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(w, "\nDetails:\n")
			for _, k := range keys {
				fmt.Fprintf(w, "  %s: %s\n", k, ctx[k])
			}
		}
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return err
}

// smsOtpCode returns the structured error code carried by err, if any.
func smsOtpCode(err error) (string, bool) {
	code := smsotperrors.GetCode(err)
	return code, code != ""
}
