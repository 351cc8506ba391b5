package investment

import (
	"fmt"
	"strings"
)

// TermSheetKey is the document store key of a deal's term sheet.
func TermSheetKey(d *Deal) string {
	return "investments/" + d.ID.String() + "/term-sheet.txt"
}

// RenderTermSheet produces the term sheet text.
func RenderTermSheet(d *Deal) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "INVESTMENT TERM SHEET\nDeal ID: %s\n\n", d.ID)
	fmt.Fprintf(&b, "Investor: %s\n", d.InvestorID)
	fmt.Fprintf(&b, "Creator: %s\n", d.CreatorID)
	fmt.Fprintf(&b, "Pitch: %s\n\n", d.PitchID)
	fmt.Fprintf(&b, "Investment amount: %d %s\n", d.Amount, strings.ToUpper(d.Currency))
	fmt.Fprintf(&b, "Target raise: %d %s\n", d.TargetRaise, strings.ToUpper(d.Currency))
	fmt.Fprintf(&b, "Funding deadline: %s\n\n", d.FundingDeadline.Format("2006-01-02"))
	b.WriteString("Funds are held in escrow until the target raise is met. If the target is not met by the ")
	b.WriteString("funding deadline the investment is refunded in full.\n")
	return []byte(b.String())
}
