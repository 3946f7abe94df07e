package notifications

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
)

// FormatReport renders the plain-text email body for view. The view is
// expected to carry rebalance statuses and warnings already.
func FormatReport(view *portfolio.PortfolioView) string {
	var b strings.Builder

	b.WriteString("Permanent portfolio check (generated by the local tracker)\n\n")
	fmt.Fprintf(&b, "Total value (estimated, %s): %s\n", view.BaseCurrency, formatMoney(view.TotalValue))
	asOf := "-"
	if view.AsOf != nil {
		asOf = view.AsOf.Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "Data as of: %s\n\n", asOf)

	b.WriteString("Buckets:\n")
	for _, c := range view.Buckets {
		tag := "OK"
		if c.Status != portfolio.BucketStatusOK {
			tag = "REBALANCE"
		}
		fmt.Fprintf(&b, "- %s: value=%s weight=%.1f%% target=%.0f%% band=[%.0f%%,%.0f%%] %s\n",
			c.Name, formatMoney(c.Value), c.Weight*100, c.TargetWeight*100, c.MinWeight*100, c.MaxWeight*100, tag)
		for _, a := range c.Assets {
			b.WriteString("  ")
			writeAssetLine(&b, a)
		}
	}

	if len(view.Unassigned) > 0 {
		b.WriteString("\nUnassigned assets:\n")
		for _, a := range view.Unassigned {
			writeAssetLine(&b, a)
		}
	}

	b.WriteString("\n")
	if len(view.Warnings) == 0 {
		b.WriteString("Rebalance alerts: no threshold crossed.\n")
	} else {
		b.WriteString("Rebalance alerts:\n")
		for _, w := range view.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func writeAssetLine(b *strings.Builder, a portfolio.AssetView) {
	decimals := 4
	if a.Kind == domain.AssetKindCrypto {
		decimals = 8
	}
	price, qty, change := "-", "-", "-"
	if a.Price != nil {
		price = trimNumber(*a.Price, decimals)
	}
	if a.Quantity != nil {
		qty = trimNumber(*a.Quantity, 8)
	}
	if a.ChangePct != nil {
		change = fmt.Sprintf("%+.2f%%", *a.ChangePct)
	}
	code := a.Code
	if code == "" {
		code = string(a.Kind)
	}
	fmt.Fprintf(b, "- %s (%s) qty=%s price=%s change=%s", a.Name, code, qty, price, change)
	if a.Status == domain.QuoteStatusError && a.ErrorDetail != "" {
		fmt.Fprintf(b, " error=%s", a.ErrorDetail)
	}
	b.WriteString("\n")
}

// trimNumber formats v with up to decimals places and no trailing zeros
func trimNumber(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// formatMoney renders v with two decimals and thousands separators
func formatMoney(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var out strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	return sign + out.String() + frac
}
