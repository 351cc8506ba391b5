package production

import (
	"fmt"
	"strings"
)

// ContractKey is the document store key of a deal's contract.
func ContractKey(d *Deal) string {
	return "productions/" + d.ID.String() + "/contract.txt"
}

// RenderContract produces the contract text from the final terms.
func RenderContract(d *Deal) []byte {
	var t Terms
	if d.FinalTerms != nil {
		t = *d.FinalTerms
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PRODUCTION AGREEMENT (%s)\nDeal ID: %s\n\n", strings.ToUpper(string(d.InterestType)), d.ID)
	fmt.Fprintf(&b, "Production company: %s\nCreator: %s\nPitch: %s\n\n", d.ProductionCompanyID, d.CreatorID, d.PitchID)
	fmt.Fprintf(&b, "Budget: %d\n", t.Budget)
	fmt.Fprintf(&b, "Timeline: %s\n", t.Timeline)
	if t.RightsStructure != "" {
		fmt.Fprintf(&b, "Rights: %s\n", t.RightsStructure)
	}
	if t.DistributionTerms != "" {
		fmt.Fprintf(&b, "Distribution: %s\n", t.DistributionTerms)
	}
	if t.BackendPoints != 0 {
		fmt.Fprintf(&b, "Backend points: %g\n", t.BackendPoints)
	}
	return []byte(b.String())
}
