package models

// Verdict is a verifier's judgment of a step's answer.
type Verdict string

const (
	// VerdictPass indicates the answer meets the acceptance criteria.
	VerdictPass Verdict = "pass"
	// VerdictFail indicates the answer does not meet the criteria.
	VerdictFail Verdict = "fail"
	// VerdictAbstain indicates the verifier could not decide; the
	// step goes to human adjudication rather than silently passing.
	VerdictAbstain Verdict = "abstain"
)

// Valid returns true if the verdict is a known value.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictPass, VerdictFail, VerdictAbstain:
		return true
	default:
		return false
	}
}
