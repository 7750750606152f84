package bot

import (
	"fmt"
	"strings"
	"time"

	"promowatch/internal/model"
)

// CompareArgs holds the parsed arguments of /compare.
type CompareArgs struct {
	Country string
	// Date is zero when no date was given.
	Date time.Time
}

// ParseCountryArg extracts a two-letter country code from a command
// argument string and upper-cases it.
func ParseCountryArg(args string) (string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", fmt.Errorf("country code is required")
	}
	return parseCountry(parts[0])
}

// ParseCompareArgs parses arguments for /compare.
// Format: <country> [YYYY-MM-DD]
func ParseCompareArgs(args string) (CompareArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 2 {
		return CompareArgs{}, fmt.Errorf("usage: /compare <country> [YYYY-MM-DD]")
	}
	cc, err := parseCountry(parts[0])
	if err != nil {
		return CompareArgs{}, err
	}
	out := CompareArgs{Country: cc}
	if len(parts) == 2 {
		d, err := time.Parse(model.DateLayout, parts[1])
		if err != nil {
			return CompareArgs{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", parts[1])
		}
		out.Date = d
	}
	return out, nil
}

func parseCountry(s string) (string, error) {
	if len(s) != 2 {
		return "", fmt.Errorf("invalid country code %q", s)
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", fmt.Errorf("invalid country code %q", s)
		}
	}
	return strings.ToUpper(s), nil
}
