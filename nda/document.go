package nda

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/CavellTopDev/pitchey-app-sub015/risk"
)

// DocumentKey is the document store key of an NDA's agreement.
func DocumentKey(n *NDA) string {
	return "ndas/" + n.ID.String() + "/agreement.txt"
}

// RenderAgreement produces the agreement text. The output depends only on
// its arguments.
func RenderAgreement(n *NDA, tpl *risk.Template) []byte {
	var b strings.Builder

	title := "Standard Mutual Non-Disclosure Agreement"
	if tpl != nil && tpl.Name != "" {
		title = tpl.Name
	}
	fmt.Fprintf(&b, "%s\n", strings.ToUpper(title))
	fmt.Fprintf(&b, "Agreement ID: %s\n\n", n.ID)

	section(&b, "PARTIES")
	fmt.Fprintf(&b, "Disclosing Party: %s (creator of pitch %s)\n", n.CreatorID, n.PitchID)
	fmt.Fprintf(&b, "Receiving Party: %s (%s)\n\n", n.RequesterID, n.RequesterType)

	section(&b, "PURPOSE")
	fmt.Fprintf(&b, "The Receiving Party wishes to evaluate pitch %s for a potential business relationship.\n\n", n.PitchID)

	section(&b, "CONFIDENTIAL INFORMATION")
	b.WriteString("All non-public material made available through the pitch, including scripts, treatments, budgets, ")
	b.WriteString("financial projections and attached media, is Confidential Information.\n\n")

	section(&b, "OBLIGATIONS")
	b.WriteString("The Receiving Party shall not disclose Confidential Information to any third party and shall use it ")
	b.WriteString("solely for the Purpose.\n")
	if len(n.TerritorialRestrictions) > 0 {
		fmt.Fprintf(&b, "Territories: %s\n", strings.Join(n.TerritorialRestrictions, ", "))
	}
	if len(n.CustomTerms) > 0 {
		b.WriteString("Additional terms:\n")
		for _, k := range slices.Sorted(maps.Keys(n.CustomTerms)) {
			fmt.Fprintf(&b, "  - %s: %s\n", k, n.CustomTerms[k])
		}
	}
	b.WriteString("\n")

	section(&b, "TERM")
	fmt.Fprintf(&b, "This Agreement remains in force for %d months from the date of signature.\n\n", n.DurationMonths)

	section(&b, "SIGNATURES")
	fmt.Fprintf(&b, "Disclosing Party: ____________________  (%s)\n", n.CreatorID)
	fmt.Fprintf(&b, "Receiving Party:  ____________________  (%s)\n", n.RequesterID)

	return []byte(b.String())
}

func section(b *strings.Builder, name string) {
	b.WriteString(name)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", len(name)))
	b.WriteString("\n")
}
