package parse

import (
	"regexp"
	"strings"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// DD/MM/YYYY or DD-MM-YYYY, 2 or 4 digit year.
	datePattern = regexp.MustCompile(`(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`)
	// Money amounts like 1,234.56 or 15.00.
	moneyPattern = regexp.MustCompile(`([\d,]+\.\d{2})`)
	// Punctuation stripped from descriptions after token removal.
	punctPattern = regexp.MustCompile(`[^\w\s]`)
)

// fallbackExtract scans the text line by line for transaction candidates.
// A line qualifies only if it carries both a date-like token and at least
// one money-like token. The LAST money token on the line is taken as the
// amount so that leading reference numbers are not mistaken for it.
func fallbackExtract(rawText string) []domain.CandidateTransaction {
	var result []domain.CandidateTransaction

	for _, line := range strings.Split(rawText, "\n") {
		dateTok := datePattern.FindString(line)
		amounts := moneyPattern.FindAllString(line, -1)
		if dateTok == "" || len(amounts) == 0 {
			continue
		}

		amountTok := amounts[len(amounts)-1]
		amount, err := decimal.NewFromString(strings.ReplaceAll(amountTok, ",", ""))
		if err != nil {
			continue
		}

		desc := strings.Replace(line, dateTok, "", 1)
		desc = strings.Replace(desc, amountTok, "", 1)
		desc = strings.TrimSpace(punctPattern.ReplaceAllString(desc, ""))

		vendor := desc
		if desc == "" {
			desc = "Unknown Transaction"
			vendor = "Unknown"
		}

		result = append(result, domain.CandidateTransaction{
			Date:        normalizeDate(dateTok),
			Description: desc,
			Amount:      amount,
			Vendor:      vendor,
		})
	}

	return result
}

// normalizeDate converts a DD/MM/YYYY (or DD-MM-YYYY) token into ISO
// YYYY-MM-DD. The original token is preserved when it doesn't parse,
// e.g. two-digit years.
func normalizeDate(tok string) string {
	clean := strings.ReplaceAll(tok, "-", "/")
	d, err := time.Parse("2/1/2006", clean)
	if err != nil {
		return tok
	}
	return d.Format("2006-01-02")
}
